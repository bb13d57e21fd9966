package threedee

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/gogpu/mockup"
	"github.com/gogpu/mockup/assets"
	intImage "github.com/gogpu/mockup/internal/image"
	"github.com/gogpu/mockup/internal/software"
	"github.com/gogpu/mockup/scene"
)

const testW, testH = 8, 4

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// writeScene writes a scene whose every pixel samples the content center
// with full blend weight.
func writeScene(t *testing.T, root string, id int) {
	t.Helper()
	r, g, b := scene.PackUV(2048, 2048)
	files := map[string]*image.NRGBA{
		"scene.png": solid(testW, testH, color.NRGBA{128, 128, 128, 255}),
		"uv.png":    solid(testW, testH, color.NRGBA{r, g, b, 255}),
		"meta.png":  solid(testW, testH, color.NRGBA{0, 1, 255, 255}),
	}
	dir := filepath.Join(root, fmt.Sprint(id), "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, img := range files {
		if err := intImage.SavePNG(filepath.Join(dir, name), img); err != nil {
			t.Fatal(err)
		}
	}
}

func previewURI(t *testing.T, c color.NRGBA) string {
	t.Helper()
	uri, err := assets.EncodeDataURI(solid(4, 4, c))
	if err != nil {
		t.Fatal(err)
	}
	return uri
}

// countingLoader counts scene asset loads.
type countingLoader struct {
	inner assets.Loader

	mu     sync.Mutex
	scenes int
}

func (l *countingLoader) Load(ctx context.Context, ref string) (*image.NRGBA, error) {
	if !strings.HasPrefix(ref, "data:") {
		l.mu.Lock()
		l.scenes++
		l.mu.Unlock()
	}
	return l.inner.Load(ctx, ref)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scenes
}

type harness struct {
	r      *Renderer
	loader *countingLoader
	events []mockup.Event
}

func newHarness(t *testing.T, root string, cfg Config) *harness {
	t.Helper()
	h := &harness{loader: &countingLoader{inner: assets.New(assets.Config{})}}
	cfg.Loader = h.loader
	r, err := New(root, cfg, func(ev mockup.Event) { h.events = append(h.events, ev) })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	h.r = r
	return h
}

func testConfig() Config {
	return Config{
		Width:   testW,
		Height:  testH,
		Workers: 1,
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		},
	}
}

func threeDeeRequest(id int, preview string) *mockup.RenderRequest {
	return &mockup.RenderRequest{
		Type: mockup.ThreeD,
		Data: &mockup.ThreeDeeData{PreviewImage: preview, PreviewSetID: id},
	}
}

func render(t *testing.T, h *harness, req *mockup.RenderRequest) *image.NRGBA {
	t.Helper()
	img, err := h.r.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("expected *image.NRGBA, got %T", img)
	}
	return out
}

func TestRenderLoadThenUpdateContent(t *testing.T) {
	root := t.TempDir()
	writeScene(t, root, 1)
	h := newHarness(t, root, testConfig())

	red := render(t, h, threeDeeRequest(1, previewURI(t, color.NRGBA{255, 0, 0, 255})))
	if c := red.NRGBAAt(3, 2); c.R < 100 || c.B > 10 {
		t.Errorf("expected red tint, got %v", c)
	}
	if got := h.loader.count(); got != 3 {
		t.Errorf("expected 3 scene asset loads, got %d", got)
	}

	blue := render(t, h, threeDeeRequest(1, previewURI(t, color.NRGBA{0, 0, 255, 255})))
	if c := blue.NRGBAAt(3, 2); c.B < 100 || c.R > 10 {
		t.Errorf("expected blue tint, got %v", c)
	}
	if got := h.loader.count(); got != 3 {
		t.Errorf("expected the scene not to be reloaded, got %d loads", got)
	}

	var ready int
	for _, ev := range h.events {
		if r, ok := ev.(*mockup.ThreeDeeReady); ok {
			ready++
			if r.SceneID != 1 || r.BaseURL != root {
				t.Errorf("unexpected ready event %+v", r)
			}
		}
	}
	if ready != 1 {
		t.Errorf("expected 1 ready event, got %d", ready)
	}
}

func TestRenderReloads(t *testing.T) {
	root := t.TempDir()
	writeScene(t, root, 1)
	writeScene(t, root, 2)
	h := newHarness(t, root, testConfig())
	preview := previewURI(t, color.NRGBA{255, 0, 0, 255})

	render(t, h, threeDeeRequest(1, preview))
	render(t, h, threeDeeRequest(2, preview))
	if got := h.loader.count(); got != 6 {
		t.Errorf("expected scene switch to reload, got %d loads", got)
	}

	req := threeDeeRequest(2, preview)
	req.Settings.FakeWhite = true
	render(t, h, req)
	if got := h.loader.count(); got != 9 {
		t.Errorf("expected settings change to reload, got %d loads", got)
	}

	h.r.Invalidate(2)
	render(t, h, req)
	if got := h.loader.count(); got != 12 {
		t.Errorf("expected invalidated scene to reload, got %d loads", got)
	}
}

func TestRenderCropAndSize(t *testing.T) {
	root := t.TempDir()
	writeScene(t, root, 1)
	preview := previewURI(t, color.NRGBA{255, 0, 0, 255})

	tests := []struct {
		name string
		crop scene.Rect
		size *mockup.Size
		want image.Rectangle
	}{
		{"full", scene.Rect{}, nil, image.Rect(0, 0, testW, testH)},
		{"fixed crop", scene.Rect{X: 2, Y: 0, Width: 4, Height: 4}, nil, image.Rect(0, 0, 4, 4)},
		{"sized", scene.Rect{}, &mockup.Size{Width: 16, Height: 8}, image.Rect(0, 0, 16, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Crop = tt.crop
			h := newHarness(t, root, cfg)
			req := threeDeeRequest(1, preview)
			req.Data.(*mockup.ThreeDeeData).Size = tt.size
			if out := render(t, h, req); out.Rect != tt.want {
				t.Errorf("expected %v, got %v", tt.want, out.Rect)
			}
		})
	}
}

func TestRenderMissingScene(t *testing.T) {
	h := newHarness(t, t.TempDir(), testConfig())
	_, err := h.r.Render(context.Background(), threeDeeRequest(5, previewURI(t, color.NRGBA{A: 255})))
	if !errors.Is(err, mockup.ErrLoad) {
		t.Errorf("expected ErrLoad, got %v", err)
	}
	if len(h.events) != 0 {
		t.Errorf("expected no events, got %d", len(h.events))
	}
}

func TestRenderWrongData(t *testing.T) {
	h := newHarness(t, t.TempDir(), testConfig())
	req := &mockup.RenderRequest{Type: mockup.TwoD, Data: &mockup.TwoDeeData{}}
	if _, err := h.r.Render(context.Background(), req); !errors.Is(err, mockup.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

// lossyCompositor reports a lost context on every Render.
type lossyCompositor struct {
	Compositor
}

func (lossyCompositor) Render(context.Context) (*image.NRGBA, error) {
	return nil, fmt.Errorf("%w: device lost", mockup.ErrGraphicsContext)
}

// fakeAccelerator hands out CPU compositors standing in for GPU ones.
type fakeAccelerator struct {
	mu      sync.Mutex
	created int
	// lossy makes the first compositor lose its context.
	lossy bool
	// failFrom makes creations from this count on fail.
	failFrom int
}

func (*fakeAccelerator) Name() string { return "fake" }

func (a *fakeAccelerator) NewCompositor(cfg CompositorConfig) (Compositor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
	if a.failFrom > 0 && a.created >= a.failFrom {
		return nil, fmt.Errorf("%w: no device", mockup.ErrGraphicsContext)
	}
	comp, err := software.New(software.Config{Width: cfg.Width, Height: cfg.Height, Workers: 1})
	if err != nil {
		return nil, err
	}
	if a.lossy && a.created == 1 {
		return lossyCompositor{comp}, nil
	}
	return comp, nil
}

func registerFake(t *testing.T, a Accelerator) {
	t.Helper()
	old := RegisteredAccelerator()
	t.Cleanup(func() {
		accelMu.Lock()
		accel = old
		accelMu.Unlock()
	})
	if err := RegisterAccelerator(a); err != nil {
		t.Fatal(err)
	}
}

func countContextLost(events []mockup.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(*mockup.ContextLost); ok {
			n++
		}
	}
	return n
}

func TestContextLostRecovers(t *testing.T) {
	root := t.TempDir()
	writeScene(t, root, 1)
	a := &fakeAccelerator{lossy: true}
	registerFake(t, a)

	cfg := testConfig()
	cfg.UseGPU = true
	h := newHarness(t, root, cfg)
	if !h.r.Accelerated() {
		t.Fatal("expected the accelerated compositor")
	}

	out := render(t, h, threeDeeRequest(1, previewURI(t, color.NRGBA{255, 0, 0, 255})))
	if c := out.NRGBAAt(3, 2); c.R < 100 {
		t.Errorf("expected the re-issued render, got %v", c)
	}
	if got := countContextLost(h.events); got != 1 {
		t.Errorf("expected 1 ContextLost event, got %d", got)
	}
	if !h.r.Accelerated() {
		t.Error("expected the GPU compositor to be rebuilt")
	}
	if a.created != 2 {
		t.Errorf("expected 2 compositors, got %d", a.created)
	}
}

func TestContextLostFallsBackToCPU(t *testing.T) {
	root := t.TempDir()
	writeScene(t, root, 1)
	a := &fakeAccelerator{lossy: true, failFrom: 2}
	registerFake(t, a)

	cfg := testConfig()
	cfg.UseGPU = true
	h := newHarness(t, root, cfg)

	render(t, h, threeDeeRequest(1, previewURI(t, color.NRGBA{255, 0, 0, 255})))
	if h.r.Accelerated() {
		t.Error("expected the CPU compositor after retries gave up")
	}
	// One initial creation plus the first attempt and three retries.
	if a.created != 5 {
		t.Errorf("expected 5 creation attempts, got %d", a.created)
	}
}

func TestUseGPUFallsBackWhenUnavailable(t *testing.T) {
	registerFake(t, &fakeAccelerator{failFrom: 1})
	cfg := testConfig()
	cfg.UseGPU = true
	h := newHarness(t, t.TempDir(), cfg)
	if h.r.Accelerated() {
		t.Error("expected CPU fallback")
	}
}

func TestFactory(t *testing.T) {
	root := t.TempDir()
	writeScene(t, root, 3)
	var events []mockup.Event
	engine, err := Factory(testConfig())(mockup.ThreeDeeInit{BaseURL: root}, func(ev mockup.Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Render(context.Background(), threeDeeRequest(3, previewURI(t, color.NRGBA{A: 255}))); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Render(context.Background(), threeDeeRequest(3, previewURI(t, color.NRGBA{A: 255}))); !errors.Is(err, mockup.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSetAcceleratorDeviceProvider(t *testing.T) {
	registerFake(t, &fakeAccelerator{})
	if err := SetAcceleratorDeviceProvider(struct{}{}); err != nil {
		t.Errorf("expected no-op for an accelerator without device sharing, got %v", err)
	}
	if err := RegisterAccelerator(nil); err == nil {
		t.Error("expected error for nil accelerator")
	}
}
