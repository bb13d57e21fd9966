package scene

import "image"

// Header layout inside the first pixels of the position map.
const (
	// HeaderWidth and HeaderHeight give the size of the header region.
	HeaderWidth  = 3
	HeaderHeight = 1

	flagsOffset      = 2 // byte offset of the flag bits
	shineColorOffset = 4 // byte offset of the packed RGB shine colour

	flagWhiteIsTransparent = 1 << 0
	flagShineCutout        = 1 << 1
)

// UV packing: 12 bits per axis inside a 24-bit RGB value.
const (
	uvBits = 12
	uvMask = 1<<uvBits - 1

	// UVResolution is the number of addressable positions per axis.
	UVResolution = 1 << uvBits
)

// ParseHeader reads the rendering hints stored in the position map header
// and returns in with them applied.
//
// Byte 2 bit 0 sets WhiteIsTransparent, bit 1 sets ShineCutout, bytes 4-6
// hold ShineColor. A WhiteIsTransparent already set on in wins over the
// header, and a black header colour keeps the ShineColor of in. Name,
// tiles, layers, animation and crop are carried over from in unchanged. A
// position map smaller than the header leaves the header
// fields cleared.
func ParseHeader(pos *image.NRGBA, in Descriptor) Descriptor {
	out := in.Clone()
	out.WhiteIsTransparent = false
	out.ShineCutout = false
	out.ShineColor = 0

	if pos != nil && pos.Rect.Dx() >= HeaderWidth && pos.Rect.Dy() >= HeaderHeight {
		// The header spans 12 bytes starting at the top-left pixel.
		hdr := pos.Pix[pos.PixOffset(pos.Rect.Min.X, pos.Rect.Min.Y):]
		flags := hdr[flagsOffset]
		out.WhiteIsTransparent = flags&flagWhiteIsTransparent != 0
		out.ShineCutout = flags&flagShineCutout != 0
		out.ShineColor = uint32(hdr[shineColorOffset])<<16 |
			uint32(hdr[shineColorOffset+1])<<8 |
			uint32(hdr[shineColorOffset+2])
		if out.ShineColor == 0 {
			out.ShineColor = in.ShineColor
		}
	}

	if in.WhiteIsTransparent {
		out.WhiteIsTransparent = true
	}
	return out
}

// PackUV packs 12-bit u and v into the 24-bit RGB form stored in a
// position map. Values are masked to 12 bits.
func PackUV(u, v uint32) (r, g, b uint8) {
	packed := (u & uvMask) | (v&uvMask)<<uvBits
	return uint8(packed >> 16), uint8(packed >> 8), uint8(packed)
}

// UnpackUV returns the 12-bit u and v stored in a position map pixel.
func UnpackUV(r, g, b uint8) (u, v uint32) {
	packed := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	return packed & uvMask, (packed >> uvBits) & uvMask
}

// Texel maps the packed coordinate of a position pixel onto a
// width x height content raster, truncating like the integer compositor.
func Texel(r, g, b uint8, width, height int) (x, y int) {
	u, v := UnpackUV(r, g, b)
	return int((uint32(width) * u) >> uvBits), int((uint32(height) * v) >> uvBits)
}

// Normalize converts a packed position pixel to a Point in [0, 1).
func Normalize(r, g, b uint8) Point {
	u, v := UnpackUV(r, g, b)
	return Point{X: float64(u) / UVResolution, Y: float64(v) / UVResolution}
}
