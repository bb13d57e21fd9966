//go:build !nogpu

// Package gpu registers the wgpu compositor for 3D mockups.
//
// Import this package to let threedee render on the GPU when a Renderer is
// created with UseGPU (or ThreeDeeInit.UseGPU). The compositor synthesizes
// a WGSL program per scene configuration and draws with wgpu/hal.
//
// If no suitable adapter is available (no Vulkan device, or only a
// software adapter), compositor creation fails and threedee falls back to
// the CPU compositor.
//
// Usage:
//
//	import _ "github.com/gogpu/mockup/gpu" // enable the GPU compositor
package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/mockup"
	gpuimpl "github.com/gogpu/mockup/internal/gpu"
	"github.com/gogpu/mockup/scene"
	"github.com/gogpu/mockup/threedee"
)

func init() {
	mockup.RegisterLoggerSink(gpuimpl.SetLogger)
	if err := threedee.RegisterAccelerator(&accelerator{}); err != nil {
		mockup.Logger().Warn("GPU compositor not available", "err", err)
	}
}

// SetDeviceProvider makes GPU compositors created afterwards use a shared
// GPU device from an external provider (e.g., gogpu) instead of opening
// their own. Nil restores private devices.
//
// The provider should be a gpucontext.DeviceProvider that also exposes
// HalDevice() any and HalQueue() any.
func SetDeviceProvider(provider any) error {
	return threedee.SetAcceleratorDeviceProvider(provider)
}

// accelerator implements threedee.Accelerator on internal/gpu.
type accelerator struct {
	mu       sync.Mutex
	provider any
}

func (*accelerator) Name() string { return "wgpu" }

func (a *accelerator) NewCompositor(cfg threedee.CompositorConfig) (threedee.Compositor, error) {
	a.mu.Lock()
	provider := a.provider
	a.mu.Unlock()

	gc := gpuimpl.Config{Width: cfg.Width, Height: cfg.Height, Debug: cfg.Debug}
	var (
		m   *gpuimpl.Mapper
		err error
	)
	if provider != nil {
		m, err = gpuimpl.NewWithProvider(provider, gc)
	} else {
		m, err = gpuimpl.New(gc)
	}
	switch {
	case errors.Is(err, gpuimpl.ErrSoftwareAdapter):
		return nil, fmt.Errorf("%w: %w", threedee.ErrFallbackToCPU, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", mockup.ErrGraphicsContext, err)
	}
	return compositor{m}, nil
}

func (a *accelerator) SetDeviceProvider(provider any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provider = provider
	return nil
}

// compositor reports device loss as mockup.ErrGraphicsContext.
type compositor struct {
	*gpuimpl.Mapper
}

func (c compositor) Load(ctx context.Context, set *scene.Set) error {
	return wrapLost(c.Mapper.Load(ctx, set))
}

func (c compositor) UpdateContent(ctx context.Context, content image.Image) error {
	return wrapLost(c.Mapper.UpdateContent(ctx, content))
}

func (c compositor) Render(ctx context.Context) (*image.NRGBA, error) {
	out, err := c.Mapper.Render(ctx)
	return out, wrapLost(err)
}

func wrapLost(err error) error {
	if errors.Is(err, gpuimpl.ErrContextLost) {
		return fmt.Errorf("%w: %w", mockup.ErrGraphicsContext, err)
	}
	return err
}
