package threedee

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/gogpu/mockup/scene"
)

// ErrFallbackToCPU indicates the accelerator cannot create a compositor.
// The renderer falls back to the CPU compositor.
var ErrFallbackToCPU = errors.New("threedee: falling back to CPU compositor")

// Compositor projects artwork onto a loaded scene. Both the CPU and the
// GPU compositors implement it.
type Compositor interface {
	// Load replaces the scene. Every raster is uploaded.
	Load(ctx context.Context, set *scene.Set) error
	// UpdateContent replaces only the artwork of the loaded scene.
	UpdateContent(ctx context.Context, content image.Image) error
	// Render draws one frame.
	Render(ctx context.Context) (*image.NRGBA, error)
	// PositionAt maps an output point back to the artwork coordinate.
	PositionAt(x, y int) (scene.Point, bool)
	// Descriptor returns the descriptor of the loaded scene.
	Descriptor() scene.Descriptor
	SetCrop(r scene.Rect)
	Crop() (scene.Rect, bool)
	Close() error
}

// CompositorConfig is passed to an Accelerator for every compositor it
// creates.
type CompositorConfig struct {
	Width, Height int
	Debug         bool
}

// Accelerator creates GPU compositors.
//
// Implementations are provided by GPU backend packages. Users opt in via
// blank import:
//
//	import _ "github.com/gogpu/mockup/gpu" // enables the GPU compositor
type Accelerator interface {
	// Name returns the accelerator name (e.g., "wgpu").
	Name() string
	// NewCompositor creates a compositor. Errors caused by a missing or
	// lost device wrap mockup.ErrGraphicsContext.
	NewCompositor(cfg CompositorConfig) (Compositor, error)
}

// DeviceProviderAware is an optional interface for accelerators that can
// share a GPU device with an external provider.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	accelMu sync.RWMutex
	accel   Accelerator
)

// RegisterAccelerator registers the GPU accelerator. Subsequent calls
// replace the previous one.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("threedee: accelerator must not be nil")
	}
	accelMu.Lock()
	accel = a
	accelMu.Unlock()
	return nil
}

// RegisteredAccelerator returns the registered accelerator, or nil.
func RegisteredAccelerator() Accelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// SetAcceleratorDeviceProvider passes a device provider to the registered
// accelerator. It is a no-op without an accelerator or when the
// accelerator cannot share devices.
func SetAcceleratorDeviceProvider(provider any) error {
	a := RegisteredAccelerator()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
