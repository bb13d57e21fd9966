package software

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawLabel prints text in the top-left corner of img on a dark strip.
func drawLabel(img *image.NRGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, A: 255}),
		Face: face,
	}
	width := d.MeasureString(text).Ceil() + 8
	strip := image.Rect(0, 0, width, face.Height+6).Intersect(img.Rect)
	for y := strip.Min.Y; y < strip.Max.Y; y++ {
		for x := strip.Min.X; x < strip.Max.X; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	d.Dot = fixed.P(4, face.Ascent+3)
	d.DrawString(text)
}
