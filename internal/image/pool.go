// Package image holds the raster buffers the compositors work on.
//
// All rasters are *image.NRGBA: scene maps carry packed coordinates and
// header bytes in their colour channels, and premultiplying them would
// destroy those values wherever alpha is below 255.
package image

import (
	"image"
	"sync"
)

// Pool is a thread-safe pool for reusing same-sized rasters.
//
// Rasters are grouped by dimensions. Loading a new scene releases the old
// arena buffers into the pool and the next scene of the same size picks
// them up again, which keeps the GC quiet when switching between products.
type Pool struct {
	mu      sync.Mutex
	buckets map[image.Point][]*image.NRGBA
	maxSize int // max buffers per bucket
}

// NewPool creates a pool retaining at most maxPerBucket rasters of each
// size. A maxPerBucket of 0 means unlimited.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[image.Point][]*image.NRGBA),
		maxSize: maxPerBucket,
	}
}

// Get returns a cleared width x height raster, reused when possible.
// Returns nil for non-positive dimensions.
func (p *Pool) Get(width, height int) *image.NRGBA {
	if width <= 0 || height <= 0 {
		return nil
	}
	key := image.Pt(width, height)

	p.mu.Lock()
	bucket := p.buckets[key]
	if n := len(bucket); n > 0 {
		img := bucket[n-1]
		p.buckets[key] = bucket[:n-1]
		p.mu.Unlock()

		clear(img.Pix)
		return img
	}
	p.mu.Unlock()

	return image.NewNRGBA(image.Rect(0, 0, width, height))
}

// Put returns img to the pool. Sub-images and nil are ignored, as are
// rasters whose bucket is full.
func (p *Pool) Put(img *image.NRGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) || img.Stride != 4*img.Rect.Dx() {
		return
	}
	key := img.Rect.Max

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, img)
}

// Len returns the number of pooled rasters of the given size.
func (p *Pool) Len(width, height int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[image.Pt(width, height)])
}

// defaultPool backs arenas created without an explicit pool.
var defaultPool = NewPool(8)
