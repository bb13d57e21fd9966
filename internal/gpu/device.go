//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// ErrSoftwareAdapter is returned when a shared device runs on a CPU
// adapter. The software compositor is faster than a shader interpreter.
var ErrSoftwareAdapter = errors.New("gpu: shared device is a software adapter")

// openDevice creates a Vulkan instance and opens the first hardware
// adapter, falling back to whatever adapter is listed first.
func openDevice() (hal.Instance, hal.OpenDevice, string, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, hal.OpenDevice{}, "", fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, hal.OpenDevice{}, "", fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, hal.OpenDevice{}, "", fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, hal.OpenDevice{}, "", fmt.Errorf("open device: %w", err)
	}
	return instance, openDev, selected.Info.Name, nil
}

// providerDevice extracts the HAL device and queue of an external
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. Providers that also implement
// gpucontext.DeviceProvider and report a software adapter are refused.
func providerDevice(provider any) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		if dp.AdapterInfo().Type == gpucontext.AdapterTypeSoftware {
			return nil, nil, ErrSoftwareAdapter
		}
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	return device, queue, nil
}
