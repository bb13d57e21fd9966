//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mockup/internal/bbox"
	intImage "github.com/gogpu/mockup/internal/image"
	"github.com/gogpu/mockup/internal/shader"
	"github.com/gogpu/mockup/scene"
)

// Mapper errors.
var (
	// ErrNotLoaded is returned by Render and UpdateContent before Load.
	ErrNotLoaded = errors.New("gpu: no scene loaded")

	// ErrIncompleteSet is returned by Load when a scene raster is missing.
	ErrIncompleteSet = errors.New("gpu: incomplete scene set")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("gpu: mapper closed")

	// ErrContextLost is returned once the device has been lost. The mapper
	// has released its resources and must be replaced.
	ErrContextLost = errors.New("gpu: context lost")
)

// Config configures a Mapper.
type Config struct {
	// Width and Height are the scene canvas and render target size.
	Width, Height int

	// OuterWidth and OuterHeight are the output canvas size when no crop is
	// active. Zero means the scene size.
	OuterWidth, OuterHeight int

	// Debug renders the decoded artwork coordinates instead of the shaded
	// scene.
	Debug bool

	// Logger receives diagnostics. Nil uses the package logger.
	Logger *slog.Logger
}

// DefaultConfig returns a 1920x1080 configuration.
func DefaultConfig() Config {
	return Config{Width: 1920, Height: 1080}
}

// Mapper is the GPU compositor. It draws one fullscreen triangle with the
// program synthesized for the loaded scene and reads the target back.
//
// Thread safety: all methods are safe for concurrent use; frames are
// serialized by an internal mutex.
type Mapper struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	instance       hal.Instance
	device         hal.Device
	queue          hal.Queue
	externalDevice bool // true when using a shared device (don't destroy on Close)

	samplers    *samplers
	uniform     hal.Buffer
	sceneLayout hal.BindGroupLayout
	programs    *programCache
	target      *renderTarget

	textures   *sceneTextures
	sceneGroup hal.BindGroup
	layerGroup hal.BindGroup
	current    *program

	position *image.NRGBA // resampled, for PositionAt
	desc     scene.Descriptor
	crop     scene.Rect
	crops    bool
	loaded   bool
	closed   bool
	lost     bool
}

// New opens a device of its own and creates a Mapper on it.
func New(cfg Config) (*Mapper, error) {
	m, err := newMapper(cfg)
	if err != nil {
		return nil, err
	}
	instance, openDev, name, err := openDevice()
	if err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}
	m.instance = instance
	m.device = openDev.Device
	m.queue = openDev.Queue
	if err := m.createResources(); err != nil {
		m.device.Destroy()
		m.instance.Destroy()
		return nil, fmt.Errorf("gpu: %w", err)
	}
	m.log.Info("gpu: compositor initialized", "adapter", name)
	return m, nil
}

// NewWithProvider creates a Mapper on the device of an external provider
// such as a gpucontext.DeviceProvider exposing HAL types. The device is
// not destroyed on Close.
func NewWithProvider(provider any, cfg Config) (*Mapper, error) {
	device, queue, err := providerDevice(provider)
	if err != nil {
		return nil, err
	}
	return NewWithDevice(device, queue, cfg)
}

// NewWithDevice creates a Mapper on a shared device and queue. The device
// is not destroyed on Close.
func NewWithDevice(device hal.Device, queue hal.Queue, cfg Config) (*Mapper, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("gpu: nil device or queue")
	}
	m, err := newMapper(cfg)
	if err != nil {
		return nil, err
	}
	m.device = device
	m.queue = queue
	m.externalDevice = true
	if err := m.createResources(); err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}
	m.log.Debug("gpu: compositor initialized on shared device")
	return m, nil
}

func newMapper(cfg Config) (*Mapper, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("gpu: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.OuterWidth <= 0 || cfg.OuterHeight <= 0 {
		cfg.OuterWidth, cfg.OuterHeight = cfg.Width, cfg.Height
	}
	if cfg.Logger == nil {
		cfg.Logger = slogger()
	}
	return &Mapper{cfg: cfg, log: cfg.Logger}, nil
}

// createResources creates the scene-independent objects.
func (m *Mapper) createResources() error {
	var err error
	if m.samplers, err = createSamplers(m.device); err != nil {
		return err
	}
	m.uniform, err = m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "remap_params",
		Size:  shader.ParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		m.destroyResources()
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	if m.sceneLayout, err = createSceneLayout(m.device); err != nil {
		m.destroyResources()
		return err
	}
	m.programs = newProgramCache(m.device, m.sceneLayout)
	w, h := uint32(m.cfg.Width), uint32(m.cfg.Height) //nolint:gosec // validated positive
	if m.target, err = newRenderTarget(m.device, w, h); err != nil {
		m.destroyResources()
		return err
	}
	return nil
}

// destroyResources releases every GPU object in reverse creation order.
func (m *Mapper) destroyResources() {
	if m.device == nil {
		return
	}
	m.destroyScene()
	m.target.destroy(m.device)
	m.target = nil
	if m.programs != nil {
		m.programs.destroy()
		m.programs = nil
	}
	if m.sceneLayout != nil {
		m.device.DestroyBindGroupLayout(m.sceneLayout)
		m.sceneLayout = nil
	}
	if m.uniform != nil {
		m.device.DestroyBuffer(m.uniform)
		m.uniform = nil
	}
	m.samplers.destroy(m.device)
	m.samplers = nil
}

// destroyScene releases the textures and bind groups of the loaded scene.
func (m *Mapper) destroyScene() {
	if m.layerGroup != nil {
		m.device.DestroyBindGroup(m.layerGroup)
		m.layerGroup = nil
	}
	if m.sceneGroup != nil {
		m.device.DestroyBindGroup(m.sceneGroup)
		m.sceneGroup = nil
	}
	m.textures.destroy(m.device)
	m.textures = nil
	m.current = nil
}

// check reports the lifecycle error, if any. Must hold mu.
func (m *Mapper) check() error {
	switch {
	case m.closed:
		return ErrClosed
	case m.lost:
		return ErrContextLost
	}
	return nil
}

// fail turns a device loss into ErrContextLost and drops every resource.
// Must hold mu.
func (m *Mapper) fail(err error) error {
	if !errors.Is(err, hal.ErrDeviceLost) {
		return err
	}
	m.log.Warn("gpu: device lost", "err", err)
	m.destroyResources()
	m.lost = true
	m.loaded = false
	return fmt.Errorf("%w: %w", ErrContextLost, err)
}

// Load uploads a scene: every raster is resampled to the canvas, the
// descriptor is re-derived from the position map header, the program is
// synthesized (or taken from the cache) and the bind groups are rebuilt.
func (m *Mapper) Load(ctx context.Context, set *scene.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if set == nil || set.Base == nil || set.Position == nil || set.Meta == nil || set.Content == nil {
		return ErrIncompleteSet
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	desc := scene.ParseHeader(set.Position, set.Descriptor)
	if len(set.Layers) != len(desc.Layers) {
		return fmt.Errorf("%w: %d layer rasters for %d layers", ErrIncompleteSet, len(set.Layers), len(desc.Layers))
	}
	p, err := shader.Synthesize(desc)
	if err != nil {
		return fmt.Errorf("gpu: %w", err)
	}

	m.destroyScene()
	m.loaded = false

	prog, cached, err := m.programs.get(p)
	if err != nil {
		return m.fail(fmt.Errorf("gpu: %w", err))
	}

	w, h := m.cfg.Width, m.cfg.Height
	position := intImage.Scale(set.Position, w, h, intImage.Nearest)
	meta := intImage.Scale(set.Meta, w, h, intImage.Nearest)

	tex := &sceneTextures{}
	m.textures = tex
	uploads := []struct {
		dst    **texture
		label  string
		img    *image.NRGBA
		filter intImage.Filter
	}{
		{&tex.base, "scene_base", set.Base, intImage.Nearest},
		{&tex.content, "scene_content", set.Content, intImage.Smooth},
	}
	for _, u := range uploads {
		if *u.dst, err = newTexture(m.device, m.queue, u.label, intImage.Scale(u.img, w, h, u.filter)); err != nil {
			m.destroyScene()
			return m.fail(fmt.Errorf("gpu: %w", err))
		}
	}
	if tex.position, err = newTexture(m.device, m.queue, "scene_position", position); err != nil {
		m.destroyScene()
		return m.fail(fmt.Errorf("gpu: %w", err))
	}
	if tex.meta, err = newTexture(m.device, m.queue, "scene_meta", meta); err != nil {
		m.destroyScene()
		return m.fail(fmt.Errorf("gpu: %w", err))
	}
	for i, l := range set.Layers {
		if l.Mask == nil || l.Content == nil {
			m.destroyScene()
			return fmt.Errorf("%w: layer %d", ErrIncompleteSet, i)
		}
		var lt layerTextures
		if lt.mask, err = newTexture(m.device, m.queue, fmt.Sprintf("layer_%d", i), intImage.Scale(l.Mask, w, h, intImage.Smooth)); err != nil {
			m.destroyScene()
			return m.fail(fmt.Errorf("gpu: %w", err))
		}
		if lt.content, err = newTexture(m.device, m.queue, fmt.Sprintf("layer_content_%d", i), l.Content); err != nil {
			lt.mask.destroy(m.device)
			m.destroyScene()
			return m.fail(fmt.Errorf("gpu: %w", err))
		}
		tex.layers = append(tex.layers, lt)
	}

	if err := m.queue.WriteBuffer(m.uniform, 0, shader.ParamsFor(desc, w, h, m.cfg.Debug).Bytes()); err != nil {
		m.destroyScene()
		return m.fail(fmt.Errorf("gpu: write params: %w", err))
	}
	if err := m.createBindGroups(prog); err != nil {
		m.destroyScene()
		return m.fail(fmt.Errorf("gpu: %w", err))
	}
	m.current = prog

	m.position = position
	m.desc = desc
	m.crop, m.crops = scene.Rect{}, false
	if desc.UseCrop {
		m.crop, m.crops = bbox.Scan(meta, bbox.MaxBlockSize, bbox.Red)
	}
	m.loaded = true
	m.log.Info("gpu: scene loaded",
		"name", desc.Name, "mode", p.Mode, "layers", len(desc.Layers), "cachedProgram", cached, "crop", m.crop, "hasCrop", m.crops)
	return nil
}

// createBindGroups binds the scene textures to prog's layouts. Must hold mu.
func (m *Mapper) createBindGroups(prog *program) error {
	tex := m.textures
	view := func(b uint32, t *texture) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{Binding: b, Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}}
	}
	sampler := func(b uint32, s hal.Sampler) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{Binding: b, Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()}}
	}

	group, err := m.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "remap_scene_bind",
		Layout: m.sceneLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: shader.BindingParams, Resource: gputypes.BufferBinding{
				Buffer: m.uniform.NativeHandle(), Offset: 0, Size: shader.ParamsSize,
			}},
			sampler(shader.BindingLinear, m.samplers.linear),
			sampler(shader.BindingNearest, m.samplers.nearest),
			sampler(shader.BindingRepeat, m.samplers.repeat),
			view(shader.BindingBase, tex.base),
			view(shader.BindingContent, tex.content),
			view(shader.BindingPosition, tex.position),
			view(shader.BindingMeta, tex.meta),
		},
	})
	if err != nil {
		return fmt.Errorf("create scene bind group: %w", err)
	}
	m.sceneGroup = group

	if prog.layers == 0 {
		return nil
	}
	entries := make([]gputypes.BindGroupEntry, 0, 2*len(tex.layers))
	for i, l := range tex.layers {
		entries = append(entries, view(shader.LayerMaskBinding(i), l.mask), view(shader.LayerContentBinding(i), l.content))
	}
	group, err = m.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "remap_layer_bind",
		Layout:  prog.layerLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create layer bind group: %w", err)
	}
	m.layerGroup = group
	return nil
}

// UpdateContent replaces only the artwork texture.
func (m *Mapper) UpdateContent(ctx context.Context, content image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("gpu: update content: %w", ErrIncompleteSet)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if !m.loaded {
		return ErrNotLoaded
	}
	img := intImage.Scale(content, m.cfg.Width, m.cfg.Height, intImage.Smooth)
	if err := m.textures.content.upload(m.queue, img); err != nil {
		return m.fail(fmt.Errorf("gpu: update content: %w", err))
	}
	return nil
}

// Render draws one frame and reads it back: the crop rectangle when a crop
// is active, otherwise the scene centered on the outer canvas.
func (m *Mapper) Render(ctx context.Context) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if !m.loaded {
		return nil, ErrNotLoaded
	}

	result, err := m.draw()
	if err != nil {
		return nil, m.fail(fmt.Errorf("gpu: render: %w", err))
	}

	var crop image.Rectangle
	if m.crops {
		crop = image.Rect(m.crop.X, m.crop.Y, m.crop.X+m.crop.Width, m.crop.Y+m.crop.Height)
	}
	return intImage.Frame(result, crop, m.cfg.OuterWidth, m.cfg.OuterHeight), nil
}

// draw encodes the render pass and the readback copy, submits them and
// waits for the result. Must hold mu.
func (m *Mapper) draw() (*image.NRGBA, error) {
	encoder, err := m.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "remap_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("remap"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "remap_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       m.target.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetPipeline(m.current.pipeline)
	rp.SetBindGroup(shader.GroupScene, m.sceneGroup, nil)
	if m.layerGroup != nil {
		rp.SetBindGroup(shader.GroupLayers, m.layerGroup, nil)
	}
	rp.Draw(3, 1, 0, 0)
	rp.End()

	m.target.encodeCopy(encoder)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer m.device.FreeCommandBuffer(cmdBuf)

	if _, err := m.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := m.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("wait for GPU: %w", err)
	}
	return m.target.read(m.device)
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

// Programs returns the number of cached pipelines.
func (m *Mapper) Programs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.programs == nil {
		return 0
	}
	return m.programs.len()
}

// Lost reports whether the device has been lost.
func (m *Mapper) Lost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lost
}

// PositionAt maps a point of the outer canvas back to the artwork
// coordinate it shows. Returns false outside the scene or where the
// position map is fully transparent.
func (m *Mapper) PositionAt(x, y int) (scene.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.closed || m.position == nil {
		return scene.Point{}, false
	}
	off := intImage.CenterOffset(m.cfg.Width, m.cfg.Height, m.cfg.OuterWidth, m.cfg.OuterHeight)
	x -= off.X
	y -= off.Y
	if x < 0 || y < 0 || x >= m.cfg.Width || y >= m.cfg.Height {
		return scene.Point{}, false
	}
	i := m.position.PixOffset(x, y)
	if m.position.Pix[i+3] == 0 {
		return scene.Point{}, false
	}
	return scene.Normalize(m.position.Pix[i], m.position.Pix[i+1], m.position.Pix[i+2]), true
}

// Close releases all GPU resources. The device is destroyed unless it
// was shared.
func (m *Mapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.loaded = false
	m.destroyResources()
	if !m.externalDevice {
		if m.device != nil {
			m.device.Destroy()
		}
		if m.instance != nil {
			m.instance.Destroy()
		}
	}
	m.device = nil
	m.queue = nil
	m.instance = nil
	m.position = nil
	return nil
}
