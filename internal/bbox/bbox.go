// Package bbox locates the tight rectangle around saturated content in one
// channel of a raster.
//
// Scanning every pixel of a full-size scene map is too slow, so Scan
// samples a coarse grid first and only refines (by a factor of four) when
// the coarse pass finds nothing. A seed pixel only needs to exceed
// SeedThreshold rather than be fully saturated, which tolerates lossy
// compression of the source maps.
package bbox

import (
	"image"

	"github.com/gogpu/mockup/scene"
)

// Channel selects the colour channel that is scanned.
type Channel int

// Channel byte offsets within an RGBA pixel.
const (
	Red Channel = iota
	Green
	Blue
	Alpha
)

// Scan parameters.
const (
	// MaxBlockSize is the initial grid stride.
	MaxBlockSize = 256
	// MinBlockSize is the smallest stride that is still tried.
	MinBlockSize = 64
	// SeedThreshold is the value a channel must exceed to seed the edge walk.
	SeedThreshold = 250
	// EdgeThreshold ends the edge walk when the channel drops below it.
	EdgeThreshold = 50
)

// Scan searches img on a grid of blockSize and returns the rectangle
// around the first seed found. When no seed is found the stride is
// divided by four and the scan repeats, as long as the stride stays at or
// above MinBlockSize. Returns false when nothing was found.
func Scan(img *image.NRGBA, blockSize int, ch Channel) (scene.Rect, bool) {
	if img == nil || img.Rect.Empty() || ch < Red || ch > Alpha {
		return scene.Rect{}, false
	}
	if blockSize <= 0 {
		blockSize = MaxBlockSize
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	for {
		for x := 0; x < w; x += blockSize {
			for y := 0; y < h; y += blockSize {
				if value(img, x, y, ch) > SeedThreshold {
					return fromSeed(img, x, y, ch), true
				}
			}
		}
		if blockSize <= MinBlockSize {
			return scene.Rect{}, false
		}
		blockSize /= 4
		if blockSize < 1 {
			return scene.Rect{}, false
		}
	}
}

// fromSeed walks outwards from the seed along its row and column until the
// channel falls below EdgeThreshold or the raster ends.
func fromSeed(img *image.NRGBA, x, y int, ch Channel) scene.Rect {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	left := x
	for left > 0 && value(img, left-1, y, ch) >= EdgeThreshold {
		left--
	}
	right := x
	for right < w-1 && value(img, right+1, y, ch) >= EdgeThreshold {
		right++
	}
	top := y
	for top > 0 && value(img, x, top-1, ch) >= EdgeThreshold {
		top--
	}
	bottom := y
	for bottom < h-1 && value(img, x, bottom+1, ch) >= EdgeThreshold {
		bottom++
	}

	return scene.Rect{X: left, Y: top, Width: right - left + 1, Height: bottom - top + 1}
}

// value reads channel ch at raster-relative (x, y).
func value(img *image.NRGBA, x, y int, ch Channel) uint8 {
	return img.Pix[img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)+int(ch)]
}
