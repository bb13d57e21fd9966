// Package threedee renders 3D-looking product mockups: the flat preview
// image of a design remapped onto a pre-baked product scene.
//
// The Renderer loads scenes from {BaseURL}/{id}/images, keeps the last one
// on its compositor and only re-uploads the artwork while requests stay on
// the same scene. The compositor is the GPU one when an Accelerator is
// registered and requested, and the CPU one otherwise.
package threedee

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gogpu/mockup"
	"github.com/gogpu/mockup/assets"
	intImage "github.com/gogpu/mockup/internal/image"
	"github.com/gogpu/mockup/internal/software"
	"github.com/gogpu/mockup/scene"
)

// Canvas defaults.
const (
	CanvasWidth  = 1920
	CanvasHeight = 1080
)

// DefaultCrop is the square output window of the default canvas.
var DefaultCrop = scene.Rect{X: 420, Y: 0, Width: 1080, Height: 1080}

// Config configures a Renderer.
type Config struct {
	// Width and Height are the scene canvas size.
	Width, Height int

	// Crop is applied after every scene load unless the scene found its own
	// crop (RenderSettings.UseCrop). Empty disables it.
	Crop scene.Rect

	// UseGPU selects the registered Accelerator.
	UseGPU bool

	// Workers is the band worker count of the CPU compositor.
	Workers int

	// Debug makes compositors draw diagnostics.
	Debug bool

	// Loader resolves scene assets and preview images. Nil uses assets.New.
	Loader assets.Loader

	// Scenes optionally describes scenes by id, e.g. to declare layers.
	// Layer rasters are loaded from {id}_mask and {id}_content next to the
	// scene assets.
	Scenes map[int]scene.Descriptor

	// NewBackOff returns the retry policy for rebuilding a lost GPU
	// context. Nil uses an exponential policy capped at five retries.
	NewBackOff func() backoff.BackOff
}

// DefaultConfig returns the 1920x1080 configuration with the default crop.
func DefaultConfig() Config {
	return Config{
		Width:  CanvasWidth,
		Height: CanvasHeight,
		Crop:   DefaultCrop,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

// Renderer implements mockup.ThreeDeeEngine.
//
// Thread safety: Render calls are serialized; the compositor holds one
// scene at a time.
type Renderer struct {
	mu      sync.Mutex
	cfg     Config
	baseURL string
	loader  assets.Loader
	emit    func(mockup.Event)

	comp        Compositor
	accelerated bool

	loaded   bool
	sceneID  int
	settings mockup.RenderSettings
	ready    bool
	closed   bool
}

// Factory returns a mockup.ThreeDeeFactory creating Renderers from cfg.
// ThreeDeeInit.UseGPU enables the accelerator in addition to cfg.UseGPU.
func Factory(cfg Config) mockup.ThreeDeeFactory {
	return func(init mockup.ThreeDeeInit, emit func(mockup.Event)) (mockup.ThreeDeeEngine, error) {
		c := cfg
		c.UseGPU = c.UseGPU || init.UseGPU
		r, err := New(init.BaseURL, c, emit)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// New creates a Renderer loading scenes below baseURL. emit may be nil.
func New(baseURL string, cfg Config, emit func(mockup.Event)) (*Renderer, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("threedee: invalid canvas %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Loader == nil {
		cfg.Loader = assets.New(assets.DefaultConfig())
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = defaultBackOff
	}
	if emit == nil {
		emit = func(mockup.Event) {}
	}
	r := &Renderer{cfg: cfg, baseURL: baseURL, loader: cfg.Loader, emit: emit}
	if err := r.createCompositor(); err != nil {
		return nil, err
	}
	return r, nil
}

// createCompositor creates the GPU compositor when requested and
// available, and the CPU one otherwise.
func (r *Renderer) createCompositor() error {
	if r.cfg.UseGPU {
		comp, err := r.newAccelerated()
		if err == nil {
			r.comp, r.accelerated = comp, true
			return nil
		}
		mockup.Logger().Warn("threedee: GPU compositor unavailable, using CPU", "err", err)
	}
	comp, err := software.New(software.Config{
		Width:   r.cfg.Width,
		Height:  r.cfg.Height,
		Workers: r.cfg.Workers,
		Debug:   r.cfg.Debug,
		Logger:  mockup.Logger(),
	})
	if err != nil {
		return fmt.Errorf("threedee: %w", err)
	}
	r.comp, r.accelerated = comp, false
	return nil
}

func (r *Renderer) newAccelerated() (Compositor, error) {
	a := RegisteredAccelerator()
	if a == nil {
		return nil, ErrFallbackToCPU
	}
	return a.NewCompositor(CompositorConfig{Width: r.cfg.Width, Height: r.cfg.Height, Debug: r.cfg.Debug})
}

// Accelerated reports whether the GPU compositor is in use.
func (r *Renderer) Accelerated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accelerated
}

// Render implements mockup.ThreeDeeEngine.
func (r *Renderer) Render(ctx context.Context, req *mockup.RenderRequest) (image.Image, error) {
	data, ok := req.Data.(*mockup.ThreeDeeData)
	if !ok {
		return nil, fmt.Errorf("threedee: %w: %T", mockup.ErrInvalidRequest, req.Data)
	}
	content, err := r.loader.Load(ctx, data.PreviewImage)
	if err != nil {
		return nil, fmt.Errorf("threedee: preview image: %w", err)
	}
	if b := content.Rect; b.Dx() != b.Dy() {
		content = assets.FitSquare(content, max(b.Dx(), b.Dy()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, mockup.ErrClosed
	}

	out, err := r.render(ctx, data.PreviewSetID, req.Settings, content)
	if errors.Is(err, mockup.ErrGraphicsContext) && r.accelerated {
		if rerr := r.rebuild(ctx, err); rerr != nil {
			return nil, rerr
		}
		out, err = r.render(ctx, data.PreviewSetID, req.Settings, content)
	}
	if err != nil {
		return nil, err
	}

	size := data.Size
	if size == nil {
		size = req.Size
	}
	if size != nil && (size.Width != out.Rect.Dx() || size.Height != out.Rect.Dy()) {
		return intImage.Scale(out, size.Width, size.Height, intImage.Smooth), nil
	}
	return out, nil
}

// render draws content on scene id, loading the scene first when it is not
// the current one. Must hold mu.
func (r *Renderer) render(ctx context.Context, id int, settings mockup.RenderSettings, content *image.NRGBA) (*image.NRGBA, error) {
	if !r.loaded || r.sceneID != id || r.settings != settings {
		set, err := r.loadSet(ctx, id, settings, content)
		if err != nil {
			return nil, err
		}
		if err := r.comp.Load(ctx, set); err != nil {
			r.loaded = false
			return nil, fmt.Errorf("threedee: load scene %d: %w", id, err)
		}
		if _, found := r.comp.Crop(); !found && !r.cfg.Crop.Empty() {
			r.comp.SetCrop(r.cfg.Crop)
		}
		r.loaded, r.sceneID, r.settings = true, id, settings
		if !r.ready {
			r.ready = true
			r.emit(&mockup.ThreeDeeReady{BaseURL: r.baseURL, SceneID: id})
		}
	} else if err := r.comp.UpdateContent(ctx, content); err != nil {
		return nil, fmt.Errorf("threedee: update content: %w", err)
	}
	return r.comp.Render(ctx)
}

// rebuild replaces a compositor whose GPU context was lost, retrying with
// backoff, and falls back to the CPU compositor when the GPU stays
// unavailable. Must hold mu.
func (r *Renderer) rebuild(ctx context.Context, cause error) error {
	mockup.Logger().Warn("threedee: graphics context lost", "err", cause)
	r.emit(&mockup.ContextLost{Err: cause})
	_ = r.comp.Close()
	r.loaded = false

	var comp Compositor
	op := func() error {
		c, err := r.newAccelerated()
		if errors.Is(err, ErrFallbackToCPU) {
			return backoff.Permanent(err)
		}
		if err != nil {
			mockup.Logger().Debug("threedee: GPU reinit failed", "err", err)
			return err
		}
		comp = c
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(r.cfg.NewBackOff(), ctx))
	if err == nil {
		r.comp = comp
		mockup.Logger().Info("threedee: graphics context restored")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	mockup.Logger().Warn("threedee: GPU reinit gave up, using CPU", "err", err)
	r.cfg.UseGPU = false
	return r.createCompositor()
}

// Invalidate forces the next request for scene id to reload it from the
// assets.
func (r *Renderer) Invalidate(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sceneID == id {
		r.loaded = false
	}
}

// PositionAt maps a point of the last output back to the artwork
// coordinate it shows.
func (r *Renderer) PositionAt(x, y int) (scene.Point, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return scene.Point{}, false
	}
	if crop, ok := r.comp.Crop(); ok {
		// Compositors take outer canvas coordinates; the scene fills it.
		x += crop.X
		y += crop.Y
	}
	return r.comp.PositionAt(x, y)
}

// Close releases the compositor.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.loaded = false
	return r.comp.Close()
}
