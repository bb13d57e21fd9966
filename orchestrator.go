package mockup

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/barkimedes/go-deepcopy"

	"github.com/gogpu/mockup/cache"
)

// TwoDeeEngine flattens artwork into an image.
type TwoDeeEngine interface {
	Render(ctx context.Context, req *RenderRequest) (image.Image, error)
}

// ThreeDeeEngine maps a flat preview image onto a product scene.
type ThreeDeeEngine interface {
	Render(ctx context.Context, req *RenderRequest) (image.Image, error)
	Close() error
}

// ThreeDeeInit configures a 3D engine.
type ThreeDeeInit struct {
	// BaseURL is the root of the scene assets: a directory or an http(s)
	// URL holding {id}/images/{scene,uv,meta}.
	BaseURL string
	// UseGPU selects the GPU compositor when one is registered.
	UseGPU bool
}

// ThreeDeeFactory creates a 3D engine. emit delivers engine events
// (*ContextLost, *ThreeDeeReady) to the orchestrator's event stream.
type ThreeDeeFactory func(init ThreeDeeInit, emit func(Event)) (ThreeDeeEngine, error)

// Config configures an Orchestrator.
type Config struct {
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
	// CacheSize is the number of responses kept in the result cache.
	CacheSize int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		EventBuffer: 16,
		CacheSize:   cache.DefaultCapacity,
	}
}

// Option configures an Orchestrator during creation.
type Option func(*Orchestrator)

// WithTwoDee sets the 2D engine. Without it, 2D requests fail with
// ErrUnsupportedRequest.
func WithTwoDee(e TwoDeeEngine) Option {
	return func(o *Orchestrator) {
		o.twoDee = e
	}
}

// WithThreeDee sets the factory InitThreeDee uses to create the 3D engine.
func WithThreeDee(f ThreeDeeFactory) Option {
	return func(o *Orchestrator) {
		o.threeDeeFactory = f
	}
}

// Orchestrator deduplicates, caches and dispatches render requests.
//
// At most one computation runs per fingerprint: a request whose
// fingerprint is already in flight is dropped without an event. Every
// accepted request produces exactly one *PreviewResponse or *PreviewError.
type Orchestrator struct {
	cfg     Config
	twoDee  TwoDeeEngine
	results *cache.FIFO[string, *PreviewResponse]
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup

	mu              sync.Mutex
	inFlight        map[string]struct{}
	threeDeeFactory ThreeDeeFactory
	threeDee        ThreeDeeEngine
	closed          bool
}

// New creates an orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.EventBuffer < 0 {
		return nil, fmt.Errorf("mockup: negative event buffer %d", cfg.EventBuffer)
	}
	o := &Orchestrator{
		cfg:      cfg,
		results:  cache.New[string, *PreviewResponse](cfg.CacheSize),
		events:   make(chan Event, cfg.EventBuffer),
		done:     make(chan struct{}),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Events returns the event stream. It is closed by Close.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Submit validates req and starts rendering it.
//
// A request whose result is cached is answered from the cache, even while
// an identical request is being computed. Otherwise Submit returns false
// without an error when a request with the same fingerprint is already
// being computed. Validation errors are returned directly and produce no
// event. req is copied; the caller may reuse it.
func (o *Orchestrator) Submit(ctx context.Context, req *RenderRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	snap := deepcopy.MustAnything(req).(*RenderRequest)
	fp, err := Fingerprint(snap)
	if err != nil {
		return false, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, ErrClosed
	}
	if hit, ok := o.results.Get(fp); ok {
		o.wg.Add(1)
		o.mu.Unlock()
		out := hit.clone()
		out.Cached = true
		out.Silent = snap.Silent
		go func() {
			defer o.wg.Done()
			o.emit(out)
		}()
		return true, nil
	}
	if _, busy := o.inFlight[fp]; busy {
		o.mu.Unlock()
		Logger().Debug("mockup: duplicate request dropped", "type", snap.Type)
		return false, nil
	}
	o.inFlight[fp] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(ctx, snap, fp)
	return true, nil
}

func (o *Orchestrator) run(ctx context.Context, req *RenderRequest, fp string) {
	defer o.wg.Done()

	resp, err := o.compute(ctx, req, fp)

	o.mu.Lock()
	delete(o.inFlight, fp)
	o.mu.Unlock()

	if err != nil {
		Logger().Warn("mockup: preview failed", "type", req.Type, "err", err)
		o.emit(&PreviewError{Type: req.Type, Fingerprint: fp, Cause: err})
		return
	}
	out := resp.clone()
	out.Silent = req.Silent
	o.emit(out)
}

func (o *Orchestrator) compute(ctx context.Context, req *RenderRequest, fp string) (resp *PreviewResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mockup: %s engine panic: %v", req.Type, r)
		}
	}()

	img, err := o.render(ctx, req)
	if err != nil {
		return nil, err
	}
	resp = &PreviewResponse{Image: img, Type: req.Type, Fingerprint: fp}
	switch d := req.Data.(type) {
	case *TwoDeeData:
		resp.ProductPartName = d.ProductPartName
		resp.CustomerCreatedContentID = d.CustomerCreatedContentID
	case *ThreeDeeData:
		resp.CustomerCreatedContentID = d.CustomerCreatedContentID
		resp.SideName = d.SideName
	}
	o.results.Put(fp, resp)
	return resp, nil
}

func (o *Orchestrator) render(ctx context.Context, req *RenderRequest) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch req.Type {
	case TwoD:
		if o.twoDee == nil {
			return nil, fmt.Errorf("%w: no 2D engine", ErrUnsupportedRequest)
		}
		return o.twoDee.Render(ctx, req)
	case ThreeD:
		o.mu.Lock()
		e := o.threeDee
		o.mu.Unlock()
		if e == nil {
			return nil, fmt.Errorf("%w: 3D engine not initialized", ErrUnsupportedRequest)
		}
		return e.Render(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRequest, req.Type)
	}
}

// emit delivers ev unless the orchestrator is closing.
func (o *Orchestrator) emit(ev Event) {
	select {
	case <-o.done:
		return
	default:
	}
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

// InitThreeDee creates the 3D engine, replacing a previous one.
func (o *Orchestrator) InitThreeDee(init ThreeDeeInit) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.threeDeeFactory == nil {
		return fmt.Errorf("%w: no 3D engine factory", ErrUnsupportedRequest)
	}
	if o.threeDee != nil {
		if err := o.threeDee.Close(); err != nil {
			Logger().Warn("mockup: closing previous 3D engine", "err", err)
		}
		o.threeDee = nil
	}
	e, err := o.threeDeeFactory(init, o.emit)
	if err != nil {
		return fmt.Errorf("mockup: init 3D engine: %w", err)
	}
	o.threeDee = e
	Logger().Info("mockup: 3D engine initialized", "base", init.BaseURL, "gpu", init.UseGPU)
	return nil
}

// DestroyThreeDee releases the 3D engine. Later 3D requests fail with
// ErrUnsupportedRequest until InitThreeDee is called again.
func (o *Orchestrator) DestroyThreeDee() error {
	o.mu.Lock()
	e := o.threeDee
	o.threeDee = nil
	o.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.Close()
}

// ClearCache drops every cached response.
func (o *Orchestrator) ClearCache() {
	o.results.Clear()
}

// CacheStats returns the result cache statistics.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.results.Stats()
}

// Close stops accepting requests, waits for running ones, releases the
// 3D engine and closes the event stream. Events of requests still running
// when Close is called are dropped.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.done)
	o.mu.Unlock()

	o.wg.Wait()

	err := o.DestroyThreeDee()
	close(o.events)
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}
