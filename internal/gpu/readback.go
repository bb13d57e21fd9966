//go:build !nogpu

package gpu

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyRowAlignment is the required BytesPerRow alignment of
// texture-to-buffer copies.
const copyRowAlignment = 256

// alignedRow returns the padded byte length of a row of width pixels.
func alignedRow(width uint32) uint32 {
	row := width * 4
	return (row + copyRowAlignment - 1) &^ (copyRowAlignment - 1)
}

// renderTarget is the offscreen color attachment and its staging buffer.
type renderTarget struct {
	tex           hal.Texture
	view          hal.TextureView
	staging       hal.Buffer
	width, height uint32
	bytesPerRow   uint32
}

func newRenderTarget(device hal.Device, w, h uint32) (*renderTarget, error) {
	t := &renderTarget{width: w, height: h, bytesPerRow: alignedRow(w)}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "remap_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        targetFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create target texture: %w", err)
	}
	t.tex = tex

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "remap_target_view",
		Format:        targetFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("create target view: %w", err)
	}
	t.view = view

	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "remap_staging",
		Size:  uint64(t.bytesPerRow) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	t.staging = staging
	return t, nil
}

// encodeCopy records the copy of the target into the staging buffer.
func (t *renderTarget) encodeCopy(encoder hal.CommandEncoder) {
	// After the render pass the target is in attachment layout. The copy
	// needs it as a transfer source. No-op on backends without layouts.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.tex, t.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: t.bytesPerRow, RowsPerImage: t.height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	}})
}

// read maps the staging buffer and copies it into a new image, dropping
// the row padding.
func (t *renderTarget) read(device hal.Device) (*image.NRGBA, error) {
	size := uint64(t.bytesPerRow) * uint64(t.height)
	mapping, err := device.MapBuffer(t.staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	defer func() { _ = device.UnmapBuffer(t.staging) }()

	src := unsafe.Slice((*byte)(mapping.Ptr), size)
	out := image.NewNRGBA(image.Rect(0, 0, int(t.width), int(t.height)))
	row := int(t.width) * 4
	for y := range int(t.height) {
		so := y * int(t.bytesPerRow)
		copy(out.Pix[y*out.Stride:y*out.Stride+row], src[so:so+row])
	}
	return out, nil
}

func (t *renderTarget) destroy(device hal.Device) {
	if t == nil {
		return
	}
	if t.staging != nil {
		device.DestroyBuffer(t.staging)
		t.staging = nil
	}
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		device.DestroyTexture(t.tex)
		t.tex = nil
	}
}
