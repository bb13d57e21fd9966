package image

import (
	"image"

	"golang.org/x/image/draw"
)

// Filter selects the resampling kernel used by Scale.
type Filter uint8

// Resampling filters.
const (
	// Nearest keeps source texels intact. Position maps must use it: a
	// blended packed coordinate decodes to an unrelated location.
	Nearest Filter = iota
	// Smooth is bilinear filtering, used for artwork and colour images.
	Smooth
)

func (f Filter) interpolator() draw.Interpolator {
	if f == Smooth {
		return draw.BiLinear
	}
	return draw.NearestNeighbor
}

// Scale resamples src to width x height. When src already has that size
// it is returned unchanged (converted to NRGBA if needed).
func Scale(src image.Image, width, height int, f Filter) *image.NRGBA {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return ToNRGBA(src)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	f.interpolator().Scale(dst, dst.Rect, src, b, draw.Src, nil)
	return dst
}

// Fit draws src into a transparent width x height raster, scaled to fit
// while keeping its aspect ratio and anchored at the top-left corner.
func Fit(src image.Image, width, height int, f Filter) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	b := src.Bounds()
	if b.Empty() {
		return dst
	}

	srcAspect := float64(b.Dx()) / float64(b.Dy())
	dstAspect := float64(width) / float64(height)

	w, h := width, height
	switch {
	case srcAspect < dstAspect:
		w = int(float64(b.Dx()) * float64(height) / float64(b.Dy()))
	case srcAspect > dstAspect:
		h = int(float64(b.Dy()) * float64(width) / float64(b.Dx()))
	}
	f.interpolator().Scale(dst, image.Rect(0, 0, w, h), src, b, draw.Src, nil)
	return dst
}
