//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/mockup/scene"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// testSet builds an 8x4 scene whose pixel (2,1) maps to artwork texel
// (5,3) of an 8x4 content raster.
func testSet() *scene.Set {
	pos := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	r, g, b := scene.PackUV(2560, 3072)
	pos.SetNRGBA(2, 1, color.NRGBA{r, g, b, 255})

	meta := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	meta.SetNRGBA(2, 1, color.NRGBA{0, 10, 128, 255})

	return &scene.Set{
		Descriptor: scene.Descriptor{Name: "mug"},
		Base:       fill(8, 4, color.NRGBA{100, 150, 200, 255}),
		Position:   pos,
		Meta:       meta,
		Content:    fill(8, 4, color.NRGBA{200, 100, 50, 255}),
	}
}

func newTestMapper(t *testing.T, cfg Config) *Mapper {
	t.Helper()
	device, queue := createNoopDevice(t)
	m, err := NewWithDevice(device, queue, cfg)
	if err != nil {
		t.Fatalf("NewWithDevice: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewWithDeviceValidation(t *testing.T) {
	device, queue := createNoopDevice(t)
	if _, err := NewWithDevice(nil, queue, DefaultConfig()); err == nil {
		t.Error("expected error for nil device")
	}
	if _, err := NewWithDevice(device, queue, Config{}); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestRenderSize(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		wantW int
		wantH int
	}{
		{"scene size", Config{Width: 8, Height: 4}, 8, 4},
		{"outer canvas", Config{Width: 8, Height: 4, OuterWidth: 12, OuterHeight: 8}, 12, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMapper(t, tt.cfg)
			if err := m.Load(context.Background(), testSet()); err != nil {
				t.Fatalf("Load: %v", err)
			}
			out, err := m.Render(context.Background())
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if out.Rect.Dx() != tt.wantW || out.Rect.Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, out.Rect.Dx(), out.Rect.Dy())
			}
		})
	}
}

func TestRenderCrop(t *testing.T) {
	m := newTestMapper(t, Config{Width: 8, Height: 4})
	if err := m.Load(context.Background(), testSet()); err != nil {
		t.Fatal(err)
	}
	m.SetCrop(scene.Rect{X: 2, Y: 1, Width: 4, Height: 2})
	out, err := m.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Rect.Dx() != 4 || out.Rect.Dy() != 2 {
		t.Errorf("expected 4x2, got %v", out.Rect)
	}

	m.SetCrop(scene.Rect{})
	if _, ok := m.Crop(); ok {
		t.Error("expected an empty crop to disable cropping")
	}
}

func TestLoadCropFromMeta(t *testing.T) {
	set := testSet()
	set.Descriptor.UseCrop = true
	for y := range 3 {
		for x := range 5 {
			set.Meta.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
		}
	}

	m := newTestMapper(t, Config{Width: 8, Height: 4})
	if err := m.Load(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	crop, ok := m.Crop()
	if !ok {
		t.Fatal("expected a crop")
	}
	if want := (scene.Rect{X: 0, Y: 0, Width: 5, Height: 3}); crop != want {
		t.Errorf("expected %v, got %v", want, crop)
	}
}

func TestProgramCache(t *testing.T) {
	m := newTestMapper(t, Config{Width: 8, Height: 4})
	ctx := context.Background()

	if err := m.Load(ctx, testSet()); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(ctx, testSet()); err != nil {
		t.Fatal(err)
	}
	if got := m.Programs(); got != 1 {
		t.Errorf("expected 1 cached program, got %d", got)
	}

	white := testSet()
	white.Descriptor.WhiteIsTransparent = true
	if err := m.Load(ctx, white); err != nil {
		t.Fatal(err)
	}
	if got := m.Programs(); got != 2 {
		t.Errorf("expected 2 cached programs, got %d", got)
	}
	if !m.Descriptor().WhiteIsTransparent {
		t.Error("expected the loaded descriptor to be white is transparent")
	}
}

func TestLoadLayers(t *testing.T) {
	set := testSet()
	set.Descriptor.Layers = []scene.Layer{{ID: "cap", Blend: scene.AlphaCutout}}

	m := newTestMapper(t, Config{Width: 8, Height: 4})
	if err := m.Load(context.Background(), set); !errors.Is(err, ErrIncompleteSet) {
		t.Errorf("expected ErrIncompleteSet without layer rasters, got %v", err)
	}

	set.Layers = []scene.LayerImages{{
		Mask:    fill(8, 4, color.NRGBA{0, 0, 0, 128}),
		Content: fill(2, 2, color.NRGBA{255, 0, 0, 255}),
	}}
	if err := m.Load(context.Background(), set); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := m.Render(context.Background()); err != nil {
		t.Errorf("Render: %v", err)
	}
}

func TestPositionAt(t *testing.T) {
	m := newTestMapper(t, Config{Width: 8, Height: 4, OuterWidth: 12, OuterHeight: 8})
	if _, ok := m.PositionAt(4, 3); ok {
		t.Error("expected no position before Load")
	}
	if err := m.Load(context.Background(), testSet()); err != nil {
		t.Fatal(err)
	}

	p, ok := m.PositionAt(4, 3) // (2,1) on the scene
	if !ok {
		t.Fatal("expected a position")
	}
	if p.X != 0.625 || p.Y != 0.75 {
		t.Errorf("expected (0.625, 0.75), got (%v, %v)", p.X, p.Y)
	}
	for _, pt := range []image.Point{{0, 0}, {2, 2}, {11, 7}} {
		if _, ok := m.PositionAt(pt.X, pt.Y); ok {
			t.Errorf("expected no position at %v", pt)
		}
	}
}

func TestLifecycleErrors(t *testing.T) {
	m := newTestMapper(t, Config{Width: 8, Height: 4})
	ctx := context.Background()

	if _, err := m.Render(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
	if err := m.UpdateContent(ctx, fill(4, 4, color.NRGBA{})); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
	if err := m.Load(ctx, &scene.Set{}); !errors.Is(err, ErrIncompleteSet) {
		t.Errorf("expected ErrIncompleteSet, got %v", err)
	}

	if err := m.Load(ctx, testSet()); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateContent(ctx, fill(16, 16, color.NRGBA{0, 0, 0, 255})); err != nil {
		t.Errorf("UpdateContent: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Render(canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("expected a second Close to succeed, got %v", err)
	}
	if _, err := m.Render(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// lostDevice reports a lost device on WaitIdle.
type lostDevice struct {
	hal.Device
}

func (lostDevice) WaitIdle() error { return hal.ErrDeviceLost }

func TestDeviceLost(t *testing.T) {
	device, queue := createNoopDevice(t)
	m, err := NewWithDevice(lostDevice{device}, queue, Config{Width: 8, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	ctx := context.Background()
	if err := m.Load(ctx, testSet()); err != nil {
		t.Fatal(err)
	}
	_, err = m.Render(ctx)
	if !errors.Is(err, ErrContextLost) || !errors.Is(err, hal.ErrDeviceLost) {
		t.Fatalf("expected ErrContextLost wrapping the device loss, got %v", err)
	}
	if !m.Lost() {
		t.Error("expected the mapper to be lost")
	}
	if err := m.Load(ctx, testSet()); !errors.Is(err, ErrContextLost) {
		t.Errorf("expected ErrContextLost after loss, got %v", err)
	}
	if m.Programs() != 0 {
		t.Error("expected the program cache to be released")
	}
}

type halProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p halProvider) HalDevice() any { return p.device }
func (p halProvider) HalQueue() any  { return p.queue }

// softwareProvider is a DeviceProvider backed by a CPU adapter.
type softwareProvider struct {
	halProvider
}

func (softwareProvider) Device() gpucontext.Device             { return nil }
func (softwareProvider) Queue() gpucontext.Queue               { return nil }
func (softwareProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (softwareProvider) Adapter() gpucontext.Adapter           { return nil }
func (softwareProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "llvmpipe", Type: gpucontext.AdapterTypeSoftware}
}

func TestNewWithProvider(t *testing.T) {
	device, queue := createNoopDevice(t)

	m, err := NewWithProvider(halProvider{device, queue}, Config{Width: 8, Height: 4})
	if err != nil {
		t.Fatalf("NewWithProvider: %v", err)
	}
	_ = m.Close()

	if _, err := NewWithProvider(softwareProvider{halProvider{device, queue}}, DefaultConfig()); !errors.Is(err, ErrSoftwareAdapter) {
		t.Errorf("expected ErrSoftwareAdapter, got %v", err)
	}
	if _, err := NewWithProvider(struct{}{}, DefaultConfig()); err == nil {
		t.Error("expected error for a provider without HAL types")
	}
}

func TestAlignedRow(t *testing.T) {
	tests := []struct {
		width uint32
		want  uint32
	}{
		{1, 256},
		{64, 256},
		{65, 512},
		{1920, 7680},
	}
	for _, tt := range tests {
		if got := alignedRow(tt.width); got != tt.want {
			t.Errorf("alignedRow(%d): expected %d, got %d", tt.width, tt.want, got)
		}
	}
}

func TestTightPix(t *testing.T) {
	img := fill(4, 4, color.NRGBA{1, 2, 3, 4})
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.NRGBA)
	pix := tightPix(sub)
	if len(pix) != 2*2*4 {
		t.Fatalf("expected 16 bytes, got %d", len(pix))
	}
	if pix[0] != 1 || pix[15] != 4 {
		t.Errorf("unexpected pixels %v", pix)
	}
}
