package image

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

// Arena errors.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrSizeMismatch is returned when a raster does not match the arena size.
	ErrSizeMismatch = errors.New("image: raster size does not match arena")

	// ErrUnknownRole is returned for a Role outside the defined set.
	ErrUnknownRole = errors.New("image: unknown buffer role")
)

// Role names one buffer of an Arena.
type Role uint8

// Buffer roles.
const (
	// Base is the scene colour image.
	Base Role = iota
	// Position is the packed UV map.
	Position
	// Content is the user's flattened artwork, resampled to the scene size.
	Content
	// Meta is the reflectance map (G specular, B blend weight).
	Meta
	// Result is the composited output, rewritten every frame.
	Result
	// Pristine is an untouched copy of Base that Result is restored from.
	Pristine

	roleCount
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case Base:
		return "base"
	case Position:
		return "position"
	case Content:
		return "content"
	case Meta:
		return "meta"
	case Result:
		return "result"
	case Pristine:
		return "pristine"
	default:
		return "unknown"
	}
}

// Arena owns one fixed-size raster per Role.
//
// Each role has exactly one buffer, so a compositor can never write its
// result into the base or read a half-updated content raster through an
// alias. Resetting the arena to a new size hands the old buffers back to
// the pool.
//
// Thread safety: Arena methods are safe for concurrent use; the returned
// rasters are not, callers serialize pixel access themselves.
type Arena struct {
	mu     sync.Mutex
	width  int
	height int
	bufs   [roleCount]*image.NRGBA
	pool   *Pool
}

// NewArena allocates all role buffers at width x height. A nil pool uses
// the package default pool.
func NewArena(width, height int, pool *Pool) (*Arena, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if pool == nil {
		pool = defaultPool
	}
	a := &Arena{pool: pool}
	a.allocate(width, height)
	return a, nil
}

func (a *Arena) allocate(width, height int) {
	a.width, a.height = width, height
	for i := range a.bufs {
		a.bufs[i] = a.pool.Get(width, height)
	}
}

// Size returns the arena dimensions.
func (a *Arena) Size() (width, height int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.width, a.height
}

// Bounds returns the arena rectangle.
func (a *Arena) Bounds() image.Rectangle {
	w, h := a.Size()
	return image.Rect(0, 0, w, h)
}

// Buffer returns the raster for role, or nil for an unknown role.
func (a *Arena) Buffer(r Role) *image.NRGBA {
	if r >= roleCount {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufs[r]
}

// Store copies src into the buffer of role r. src must have the arena
// size; use Scale first when it does not. Storing Base also refreshes
// Pristine and Result.
func (a *Arena) Store(r Role, src *image.NRGBA) error {
	if r >= roleCount {
		return fmt.Errorf("%w: %d", ErrUnknownRole, r)
	}
	if src == nil {
		return fmt.Errorf("image: store %s: nil raster", r)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if src.Rect.Dx() != a.width || src.Rect.Dy() != a.height {
		return fmt.Errorf("%w: %s is %dx%d, arena is %dx%d",
			ErrSizeMismatch, r, src.Rect.Dx(), src.Rect.Dy(), a.width, a.height)
	}
	copyPix(a.bufs[r], src)
	if r == Base {
		copyPix(a.bufs[Pristine], src)
		copyPix(a.bufs[Result], src)
	}
	return nil
}

// Restore copies Pristine back into Result.
func (a *Arena) Restore() {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.bufs[Result].Pix, a.bufs[Pristine].Pix)
}

// Reset resizes the arena. When the size changes the old buffers go back
// to the pool; otherwise the existing buffers are cleared.
func (a *Arena) Reset(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if width == a.width && height == a.height {
		for _, b := range a.bufs {
			clear(b.Pix)
		}
		return nil
	}
	for i, b := range a.bufs {
		a.pool.Put(b)
		a.bufs[i] = nil
	}
	a.allocate(width, height)
	return nil
}

// Release returns every buffer to the pool. The arena must not be used
// afterwards.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, b := range a.bufs {
		a.pool.Put(b)
		a.bufs[i] = nil
	}
	a.width, a.height = 0, 0
}

// copyPix copies src into dst row by row. Both have the same dimensions.
func copyPix(dst, src *image.NRGBA) {
	rowLen := 4 * src.Rect.Dx()
	if dst.Stride == src.Stride && src.Stride == rowLen && src.Rect.Min == (image.Point{}) {
		copy(dst.Pix, src.Pix)
		return
	}
	for y := range src.Rect.Dy() {
		so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		do := dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y)
		copy(dst.Pix[do:do+rowLen], src.Pix[so:so+rowLen])
	}
}

// Clone returns a tightly packed copy of img with a zero origin.
func Clone(img *image.NRGBA) *image.NRGBA {
	if img == nil {
		return nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	copyPix(out, img)
	return out
}
