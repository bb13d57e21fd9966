package image

import "image"

// Blit copies the sr region of src into dst, translated by delta and
// clipped to dst.
func Blit(dst *image.NRGBA, delta image.Point, src *image.NRGBA, sr image.Rectangle) {
	dr := sr.Add(delta).Intersect(dst.Rect)
	if dr.Empty() {
		return
	}
	sr = dr.Sub(delta)
	rowLen := 4 * dr.Dx()
	for y := range dr.Dy() {
		so := src.PixOffset(sr.Min.X, sr.Min.Y+y)
		do := dst.PixOffset(dr.Min.X, dr.Min.Y+y)
		copy(dst.Pix[do:do+rowLen], src.Pix[so:so+rowLen])
	}
}

// Frame returns the output frame of a width x height scene raster: the
// crop rectangle of result when crop is non-empty, otherwise result
// centered on an outerW x outerH canvas.
func Frame(result *image.NRGBA, crop image.Rectangle, outerW, outerH int) *image.NRGBA {
	if !crop.Empty() {
		out := image.NewNRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
		Blit(out, crop.Min.Mul(-1), result, crop.Intersect(result.Rect))
		return out
	}
	out := image.NewNRGBA(image.Rect(0, 0, outerW, outerH))
	Blit(out, CenterOffset(result.Rect.Dx(), result.Rect.Dy(), outerW, outerH), result, result.Rect)
	return out
}

// CenterOffset returns the position of a w x h raster centered on an
// outerW x outerH canvas.
func CenterOffset(w, h, outerW, outerH int) image.Point {
	return image.Pt((outerW-w)/2, (outerH-h)/2)
}
