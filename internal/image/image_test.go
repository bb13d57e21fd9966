package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

func filled(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPoolReuse(t *testing.T) {
	p := NewPool(2)
	a := p.Get(4, 4)
	a.Pix[0] = 9
	p.Put(a)
	if p.Len(4, 4) != 1 {
		t.Fatalf("expected 1 pooled raster, got %d", p.Len(4, 4))
	}
	b := p.Get(4, 4)
	if b != a {
		t.Error("expected the pooled raster to be reused")
	}
	if b.Pix[0] != 0 {
		t.Error("expected reused raster to be cleared")
	}
}

func TestPoolBucketLimit(t *testing.T) {
	p := NewPool(1)
	p.Put(image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	p.Put(image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	if p.Len(2, 2) != 1 {
		t.Errorf("expected bucket capped at 1, got %d", p.Len(2, 2))
	}
}

func TestPoolIgnoresSubImages(t *testing.T) {
	p := NewPool(0)
	full := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	p.Put(full.SubImage(image.Rect(2, 2, 6, 6)).(*image.NRGBA))
	if p.Len(4, 4) != 0 || p.Len(6, 6) != 0 {
		t.Error("expected sub-images to be rejected")
	}
}

func TestPoolInvalidSize(t *testing.T) {
	if NewPool(0).Get(0, 3) != nil {
		t.Error("expected nil for zero width")
	}
}

func TestArenaStoreBase(t *testing.T) {
	a, err := NewArena(3, 2, NewPool(0))
	if err != nil {
		t.Fatal(err)
	}
	base := filled(3, 2, color.NRGBA{10, 20, 30, 255})
	if err := a.Store(Base, base); err != nil {
		t.Fatal(err)
	}
	for _, r := range []Role{Base, Pristine, Result} {
		if got := a.Buffer(r).NRGBAAt(2, 1); got != (color.NRGBA{10, 20, 30, 255}) {
			t.Errorf("%s: expected base colour, got %v", r, got)
		}
	}
	if a.Buffer(Base) == base {
		t.Error("expected the arena to copy, not alias")
	}
}

func TestArenaRestore(t *testing.T) {
	a, _ := NewArena(2, 2, NewPool(0))
	_ = a.Store(Base, filled(2, 2, color.NRGBA{1, 2, 3, 255}))
	a.Buffer(Result).Pix[0] = 200
	a.Restore()
	if a.Buffer(Result).Pix[0] != 1 {
		t.Errorf("expected result restored to 1, got %d", a.Buffer(Result).Pix[0])
	}
}

func TestArenaSizeMismatch(t *testing.T) {
	a, _ := NewArena(4, 4, NewPool(0))
	err := a.Store(Meta, image.NewNRGBA(image.Rect(0, 0, 4, 3)))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}
	if err := a.Store(roleCount, image.NewNRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestArenaStoreSubImage(t *testing.T) {
	full := filled(6, 6, color.NRGBA{0, 0, 0, 255})
	full.SetNRGBA(2, 2, color.NRGBA{255, 0, 0, 255})
	sub := full.SubImage(image.Rect(2, 2, 5, 5)).(*image.NRGBA)

	a, _ := NewArena(3, 3, NewPool(0))
	if err := a.Store(Content, sub); err != nil {
		t.Fatal(err)
	}
	if got := a.Buffer(Content).NRGBAAt(0, 0); got.R != 255 {
		t.Errorf("expected sub-image origin at (0,0), got %v", got)
	}
}

func TestArenaReset(t *testing.T) {
	pool := NewPool(0)
	a, _ := NewArena(2, 2, pool)
	a.Buffer(Meta).Pix[0] = 7

	if err := a.Reset(2, 2); err != nil {
		t.Fatal(err)
	}
	if a.Buffer(Meta).Pix[0] != 0 {
		t.Error("expected same-size reset to clear buffers")
	}

	if err := a.Reset(5, 3); err != nil {
		t.Fatal(err)
	}
	if w, h := a.Size(); w != 5 || h != 3 {
		t.Errorf("expected 5x3, got %dx%d", w, h)
	}
	if pool.Len(2, 2) != int(roleCount) {
		t.Errorf("expected %d buffers returned to the pool, got %d", roleCount, pool.Len(2, 2))
	}
	if err := a.Reset(0, 1); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestDecodeKeepsStraightAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{0x12, 0x34, 0x56, 0x01})
	src.SetNRGBA(1, 0, color.NRGBA{0xAB, 0xCD, 0xEF, 0x00})

	var buf bytes.Buffer
	if err := EncodePNG(&buf, src); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("expected pixels %v, got %v", src.Pix, got.Pix)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := DecodeBytes(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
	if _, err := DecodeBytes([]byte("not an image")); err == nil {
		t.Error("expected a decode error")
	}
}

func TestToNRGBAFromGray(t *testing.T) {
	g := image.NewGray(image.Rect(1, 1, 3, 3))
	g.SetGray(1, 1, color.Gray{Y: 128})
	got := ToNRGBA(g)
	if got.Rect.Min != (image.Point{}) {
		t.Errorf("expected zero origin, got %v", got.Rect)
	}
	if c := got.NRGBAAt(0, 0); c != (color.NRGBA{128, 128, 128, 255}) {
		t.Errorf("expected grey 128, got %v", c)
	}
}

func TestScaleNearestKeepsTexels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{0x01, 0x02, 0x03, 255})
	src.SetNRGBA(1, 1, color.NRGBA{0xF1, 0xF2, 0xF3, 255})

	got := Scale(src, 4, 4, Nearest)
	if got.Rect.Dx() != 4 || got.Rect.Dy() != 4 {
		t.Fatalf("expected 4x4, got %v", got.Rect)
	}
	if c := got.NRGBAAt(1, 1); c != (color.NRGBA{0x01, 0x02, 0x03, 255}) {
		t.Errorf("expected top-left texel, got %v", c)
	}
	if c := got.NRGBAAt(3, 3); c != (color.NRGBA{0xF1, 0xF2, 0xF3, 255}) {
		t.Errorf("expected bottom-right texel, got %v", c)
	}
}

func TestScaleSameSize(t *testing.T) {
	src := filled(3, 3, color.NRGBA{5, 5, 5, 255})
	if Scale(src, 3, 3, Smooth) != src {
		t.Error("expected same-size scale to return the source")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		wantW, wantH int
	}{
		{"wide", 200, 100, 64, 32},
		{"tall", 100, 200, 32, 64},
		{"square", 50, 50, 64, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(filled(tt.srcW, tt.srcH, color.NRGBA{255, 255, 255, 255}), 64, 64, Smooth)
			if got.Rect.Dx() != 64 || got.Rect.Dy() != 64 {
				t.Fatalf("expected 64x64 canvas, got %v", got.Rect)
			}
			if a := got.NRGBAAt(tt.wantW-1, tt.wantH-1).A; a == 0 {
				t.Errorf("expected content at (%d,%d)", tt.wantW-1, tt.wantH-1)
			}
			if tt.wantW < 64 {
				if a := got.NRGBAAt(tt.wantW+1, 0).A; a != 0 {
					t.Errorf("expected transparent right margin, got alpha %d", a)
				}
			}
			if tt.wantH < 64 {
				if a := got.NRGBAAt(0, tt.wantH+1).A; a != 0 {
					t.Errorf("expected transparent bottom margin, got alpha %d", a)
				}
			}
		})
	}
}

func TestBlitClips(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src := filled(4, 4, color.NRGBA{255, 0, 0, 255})
	Blit(dst, image.Pt(2, 2), src, src.Rect)

	if got := dst.NRGBAAt(3, 3); got.R != 255 {
		t.Errorf("expected red at (3,3), got %v", got)
	}
	if got := dst.NRGBAAt(1, 1); got.A != 0 {
		t.Errorf("expected (1,1) untouched, got %v", got)
	}
	Blit(dst, image.Pt(10, 10), src, src.Rect)
}

func TestFrame(t *testing.T) {
	result := filled(8, 4, color.NRGBA{0, 0, 255, 255})
	result.SetNRGBA(5, 1, color.NRGBA{0, 255, 0, 255})

	tests := []struct {
		name        string
		crop        image.Rectangle
		wantW       int
		wantH       int
		greenAt     image.Point
		transparent image.Point
	}{
		{"crop", image.Rect(4, 0, 8, 4), 4, 4, image.Pt(1, 1), image.Pt(-1, -1)},
		{"crop past edge", image.Rect(6, 0, 10, 4), 4, 4, image.Pt(-1, -1), image.Pt(3, 0)},
		{"centered", image.Rectangle{}, 10, 8, image.Pt(6, 3), image.Pt(0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Frame(result, tt.crop, 10, 8)
			if got.Rect.Dx() != tt.wantW || got.Rect.Dy() != tt.wantH {
				t.Fatalf("expected %dx%d, got %v", tt.wantW, tt.wantH, got.Rect)
			}
			if tt.greenAt.X >= 0 {
				if c := got.NRGBAAt(tt.greenAt.X, tt.greenAt.Y); c.G != 255 {
					t.Errorf("expected green at %v, got %v", tt.greenAt, c)
				}
			}
			if tt.transparent.X >= 0 {
				if c := got.NRGBAAt(tt.transparent.X, tt.transparent.Y); c.A != 0 {
					t.Errorf("expected transparent at %v, got %v", tt.transparent, c)
				}
			}
		})
	}
}
