// Package software implements the CPU compositor that projects flat
// artwork onto a pre-baked scene.
//
// The Mapper keeps its rasters in a role-indexed arena sized to the
// canvas. Loading a scene resamples every raster to that size, parses the
// rendering hints from the position map header and locates the active
// byte range of the reflectance map once; each Render then only walks
// that range, split into bands on a worker pool.
package software

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/mockup/internal/bbox"
	intImage "github.com/gogpu/mockup/internal/image"
	"github.com/gogpu/mockup/internal/parallel"
	"github.com/gogpu/mockup/scene"
)

// Mapper errors.
var (
	// ErrNotLoaded is returned by Render and UpdateContent before Load.
	ErrNotLoaded = errors.New("software: no scene loaded")

	// ErrIncompleteSet is returned by Load when a scene raster is missing.
	ErrIncompleteSet = errors.New("software: incomplete scene set")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("software: mapper closed")
)

// Config configures a Mapper.
type Config struct {
	// Width and Height are the scene canvas size every raster is resampled to.
	Width, Height int

	// OuterWidth and OuterHeight are the output canvas size when no crop is
	// active. The scene is centered on it. Zero means the scene size.
	OuterWidth, OuterHeight int

	// Workers is the number of band workers. Zero uses GOMAXPROCS, one
	// composites on the calling goroutine.
	Workers int

	// Debug draws the scene name and active range onto every frame.
	Debug bool

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a 1920x1080 configuration.
func DefaultConfig() Config {
	return Config{Width: 1920, Height: 1080}
}

// Mapper is the CPU compositor.
//
// Thread safety: all methods are safe for concurrent use; frames are
// serialized by an internal mutex.
type Mapper struct {
	mu     sync.Mutex
	cfg    Config
	log    *slog.Logger
	arena  *intImage.Arena
	pool   *parallel.WorkerPool
	desc   scene.Descriptor
	crop   scene.Rect
	crops  bool
	first  int
	last   int
	loaded bool
	closed bool
}

// New creates a Mapper.
func New(cfg Config) (*Mapper, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("software: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.OuterWidth <= 0 || cfg.OuterHeight <= 0 {
		cfg.OuterWidth, cfg.OuterHeight = cfg.Width, cfg.Height
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	arena, err := intImage.NewArena(cfg.Width, cfg.Height, nil)
	if err != nil {
		return nil, fmt.Errorf("software: create arena: %w", err)
	}

	m := &Mapper{
		cfg:   cfg,
		log:   cfg.Logger,
		arena: arena,
		first: -1,
		last:  -1,
	}
	if cfg.Workers != 1 {
		m.pool = parallel.NewWorkerPool(cfg.Workers)
	}
	return m, nil
}

// Load replaces the scene: every raster is resampled to the canvas, the
// descriptor is re-derived from the position map header and the active
// range and crop are recomputed. The content raster of set is used as the
// first artwork.
func (m *Mapper) Load(ctx context.Context, set *scene.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if set == nil || set.Base == nil || set.Position == nil || set.Meta == nil || set.Content == nil {
		return ErrIncompleteSet
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	w, h := m.cfg.Width, m.cfg.Height
	stores := []struct {
		role   intImage.Role
		img    *image.NRGBA
		filter intImage.Filter
	}{
		{intImage.Base, set.Base, intImage.Nearest},
		{intImage.Position, set.Position, intImage.Nearest},
		{intImage.Meta, set.Meta, intImage.Nearest},
		{intImage.Content, set.Content, intImage.Smooth},
	}
	for _, s := range stores {
		if err := m.arena.Store(s.role, intImage.Scale(s.img, w, h, s.filter)); err != nil {
			m.loaded = false
			return fmt.Errorf("software: load %s: %w", s.role, err)
		}
	}

	// The header is read before resampling could blend its bytes.
	m.desc = scene.ParseHeader(set.Position, set.Descriptor)
	m.first, m.last, _ = LocateActiveRange(m.arena.Buffer(intImage.Meta))

	m.crops = false
	if m.desc.UseCrop {
		m.crop, m.crops = bbox.Scan(m.arena.Buffer(intImage.Meta), bbox.MaxBlockSize, bbox.Red)
	}
	if len(m.desc.Layers) > 0 {
		m.log.Debug("software: layers are not composited on the CPU", "layers", len(m.desc.Layers))
	}

	m.loaded = true
	m.log.Info("software: scene loaded",
		"name", m.desc.Name, "first", m.first, "last", m.last, "crop", m.crop, "hasCrop", m.crops)
	return nil
}

// UpdateContent replaces only the artwork raster.
func (m *Mapper) UpdateContent(ctx context.Context, content image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("software: update content: %w", ErrIncompleteSet)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.loaded {
		return ErrNotLoaded
	}
	w, h := m.cfg.Width, m.cfg.Height
	if err := m.arena.Store(intImage.Content, intImage.Scale(content, w, h, intImage.Smooth)); err != nil {
		return fmt.Errorf("software: update content: %w", err)
	}
	return nil
}

// SetCrop fixes the output rectangle, replacing any crop found at load.
func (m *Mapper) SetCrop(r scene.Rect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crop = r
	m.crops = !r.Empty()
}

// Crop returns the active crop rectangle.
func (m *Mapper) Crop() (scene.Rect, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crop, m.crops
}

// Descriptor returns the descriptor derived at the last Load.
func (m *Mapper) Descriptor() scene.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc.Clone()
}

// ActiveRange returns the byte offsets of the first and last active pixel.
func (m *Mapper) ActiveRange() (first, last int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.first, m.last, m.first >= 0
}

// Render composites one frame and returns a new image: the crop rectangle
// when a crop is active, otherwise the scene centered on the outer canvas.
func (m *Mapper) Render(ctx context.Context) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if !m.loaded {
		return nil, ErrNotLoaded
	}

	m.arena.Restore()
	if m.first >= 0 {
		f := &frame{
			width:    m.cfg.Width,
			height:   m.cfg.Height,
			result:   m.arena.Buffer(intImage.Result).Pix,
			pristine: m.arena.Buffer(intImage.Pristine).Pix,
			position: m.arena.Buffer(intImage.Position).Pix,
			content:  m.arena.Buffer(intImage.Content).Pix,
			meta:     m.arena.Buffer(intImage.Meta).Pix,
		}
		// The last active pixel is included.
		parallel.ForEach(m.pool, m.first, m.last+4, 4, func(b parallel.Band) {
			compositeBand(f, b)
		})
	}

	out := m.output()
	if m.cfg.Debug {
		drawLabel(out, fmt.Sprintf("%s [%d..%d]", m.desc.Name, m.first, m.last))
	}
	return out, nil
}

// output copies the result into a fresh image. Must hold mu.
func (m *Mapper) output() *image.NRGBA {
	var crop image.Rectangle
	if m.crops {
		crop = image.Rect(m.crop.X, m.crop.Y, m.crop.X+m.crop.Width, m.crop.Y+m.crop.Height)
	}
	return intImage.Frame(m.arena.Buffer(intImage.Result), crop, m.cfg.OuterWidth, m.cfg.OuterHeight)
}

// offset returns the position of the scene on the outer canvas.
func (m *Mapper) offset() image.Point {
	return intImage.CenterOffset(m.cfg.Width, m.cfg.Height, m.cfg.OuterWidth, m.cfg.OuterHeight)
}

// PositionAt maps a point of the outer canvas back to the artwork
// coordinate it shows. Returns false outside the scene or where the
// position map is fully transparent.
func (m *Mapper) PositionAt(x, y int) (scene.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.closed {
		return scene.Point{}, false
	}

	off := m.offset()
	x -= off.X
	y -= off.Y
	if x < 0 || y < 0 || x >= m.cfg.Width || y >= m.cfg.Height {
		return scene.Point{}, false
	}
	pos := m.arena.Buffer(intImage.Position)
	i := pos.PixOffset(x, y)
	if pos.Pix[i+3] == 0 {
		return scene.Point{}, false
	}
	return scene.Normalize(pos.Pix[i], pos.Pix[i+1], pos.Pix[i+2]), true
}

// Close releases the arena and stops the workers.
func (m *Mapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.loaded = false
	if m.pool != nil {
		m.pool.Close()
	}
	m.arena.Release()
	return nil
}
