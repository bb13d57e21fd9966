//go:build !nogpu

package gpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// texture is a sampled RGBA8 texture and its view.
type texture struct {
	tex           hal.Texture
	view          hal.TextureView
	width, height uint32
}

// newTexture creates a sampled texture the size of img and uploads it.
func newTexture(device hal.Device, queue hal.Queue, label string, img *image.NRGBA) (*texture, error) {
	w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy()) //nolint:gosec // raster dimensions fit uint32
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s texture: %w", label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("create %s view: %w", label, err)
	}
	t := &texture{tex: tex, view: view, width: w, height: h}
	if err := t.upload(queue, img); err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("upload %s: %w", label, err)
	}
	return t, nil
}

// upload writes img into the texture. img must have the texture's size.
func (t *texture) upload(queue hal.Queue, img *image.NRGBA) error {
	if uint32(img.Rect.Dx()) != t.width || uint32(img.Rect.Dy()) != t.height { //nolint:gosec // raster dimensions fit uint32
		return fmt.Errorf("size %dx%d, texture is %dx%d", img.Rect.Dx(), img.Rect.Dy(), t.width, t.height)
	}
	return queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		tightPix(img),
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: t.width * 4, RowsPerImage: t.height},
		&hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	)
}

func (t *texture) destroy(device hal.Device) {
	if t == nil {
		return
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

// tightPix returns the pixels of img with rows packed back to back.
func tightPix(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == w*4 {
		o := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y)
		return img.Pix[o : o+w*h*4]
	}
	out := make([]byte, w*h*4)
	for y := range h {
		o := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(out[y*w*4:(y+1)*w*4], img.Pix[o:o+w*4])
	}
	return out
}

// sceneTextures are the textures of one loaded scene.
type sceneTextures struct {
	base, content, position, meta *texture
	layers                        []layerTextures
}

type layerTextures struct {
	mask, content *texture
}

func (s *sceneTextures) destroy(device hal.Device) {
	if s == nil {
		return
	}
	for _, l := range s.layers {
		l.mask.destroy(device)
		l.content.destroy(device)
	}
	s.layers = nil
	for _, t := range []*texture{s.meta, s.position, s.content, s.base} {
		t.destroy(device)
	}
	s.base, s.content, s.position, s.meta = nil, nil, nil, nil
}

// samplers are the three samplers of the scene bind group.
type samplers struct {
	linear, nearest, repeat hal.Sampler
}

func createSamplers(device hal.Device) (*samplers, error) {
	s := &samplers{}
	var err error
	s.linear, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "remap_linear",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("create linear sampler: %w", err)
	}
	s.nearest, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "remap_nearest",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		s.destroy(device)
		return nil, fmt.Errorf("create nearest sampler: %w", err)
	}
	// Tiled artwork wraps.
	s.repeat, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "remap_repeat",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		s.destroy(device)
		return nil, fmt.Errorf("create repeat sampler: %w", err)
	}
	return s, nil
}

func (s *samplers) destroy(device hal.Device) {
	if s == nil {
		return
	}
	for _, smp := range []*hal.Sampler{&s.repeat, &s.nearest, &s.linear} {
		if *smp != nil {
			device.DestroySampler(*smp)
			*smp = nil
		}
	}
}
