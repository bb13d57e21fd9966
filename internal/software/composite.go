package software

import (
	"image"

	"github.com/gogpu/mockup/internal/parallel"
	"github.com/gogpu/mockup/scene"
)

// Reflectance map channel offsets.
const (
	specularChannel = 1 // G: additive highlight
	weightChannel   = 2 // B: blend weight, 0 leaves the base untouched
)

// LocateActiveRange returns the byte offsets of the first and last pixel
// of meta whose specular channel is non-zero. Pixels outside that range
// never change between frames, so the compositor skips them.
func LocateActiveRange(meta *image.NRGBA) (first, last int, ok bool) {
	if meta == nil {
		return -1, -1, false
	}
	first, last = -1, -1
	pix := meta.Pix
	n := 4 * meta.Rect.Dx() * meta.Rect.Dy()
	for ptr := 0; ptr < n; ptr += 4 {
		if pix[ptr+specularChannel] != 0 {
			if first < 0 {
				first = ptr
			}
			last = ptr
		}
	}
	return first, last, first >= 0
}

// frame bundles the tightly packed buffers one composite pass reads and
// writes. All of them share width and height.
type frame struct {
	width, height int
	result        []byte
	pristine      []byte
	position      []byte
	content       []byte
	meta          []byte
}

// compositeBand runs the remap-and-shade loop over the byte range
// [lo, hi) of the scene.
//
// For every pixel with a non-zero blend weight a, the packed coordinate of
// the position map selects a content texel, and each colour channel becomes
//
//	((base*(255-a) + (base*sample*a)>>8) >> 8) + s
//
// with s the specular highlight. The shifts truncate at every step; the
// sum saturates at 255. Alpha is left as in the base image.
func compositeBand(f *frame, b parallel.Band) {
	w, h := f.width, f.height
	for ptr := b.Lo; ptr < b.Hi; ptr += 4 {
		a := uint32(f.meta[ptr+weightChannel])
		if a == 0 {
			continue
		}
		s := uint32(f.meta[ptr+specularChannel])
		a2 := 255 - a

		u, v := scene.Texel(f.position[ptr], f.position[ptr+1], f.position[ptr+2], w, h)
		idx := (v*w + u) << 2

		for c := range 3 {
			base := uint32(f.pristine[ptr+c])
			sample := uint32(f.content[idx+c])
			f.result[ptr+c] = saturate(((base*a2 + ((base * sample * a) >> 8)) >> 8) + s)
		}
	}
}

func saturate(v uint32) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}
