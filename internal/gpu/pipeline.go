//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mockup/internal/shader"
)

// targetFormat is the format of the offscreen render target.
const targetFormat = gputypes.TextureFormatRGBA8Unorm

// program is a compiled remap pipeline.
type program struct {
	hash        uint64
	layers      int
	shader      hal.ShaderModule
	layerLayout hal.BindGroupLayout // nil without layers
	pipeLayout  hal.PipelineLayout
	pipeline    hal.RenderPipeline
}

// createSceneLayout creates the layout of the scene bind group, shared by
// every program.
func createSceneLayout(device hal.Device) (hal.BindGroupLayout, error) {
	texEntry := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		}
	}
	samplerEntry := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		}
	}
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "remap_scene_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    shader.BindingParams,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			samplerEntry(shader.BindingLinear),
			samplerEntry(shader.BindingNearest),
			samplerEntry(shader.BindingRepeat),
			texEntry(shader.BindingBase),
			texEntry(shader.BindingContent),
			texEntry(shader.BindingPosition),
			texEntry(shader.BindingMeta),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create scene layout: %w", err)
	}
	return layout, nil
}

// createProgram compiles p and creates its render pipeline.
func createProgram(device hal.Device, sceneLayout hal.BindGroupLayout, p *shader.Program) (*program, error) {
	prog := &program{hash: p.Hash, layers: len(p.Layers)}

	mod, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  fmt.Sprintf("remap_%016x", p.Hash),
		Source: hal.ShaderSource{WGSL: p.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("compile remap shader: %w", err)
	}
	prog.shader = mod

	layouts := []hal.BindGroupLayout{sceneLayout}
	if prog.layers > 0 {
		entries := make([]gputypes.BindGroupLayoutEntry, 0, 2*prog.layers)
		for i := range prog.layers {
			for _, b := range []uint32{shader.LayerMaskBinding(i), shader.LayerContentBinding(i)} {
				entries = append(entries, gputypes.BindGroupLayoutEntry{
					Binding:    b,
					Visibility: gputypes.ShaderStageFragment,
					Texture: &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: gputypes.TextureViewDimension2D,
					},
				})
			}
		}
		prog.layerLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "remap_layer_layout",
			Entries: entries,
		})
		if err != nil {
			prog.destroy(device)
			return nil, fmt.Errorf("create layer layout: %w", err)
		}
		layouts = append(layouts, prog.layerLayout)
	}

	prog.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "remap_pipe_layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		prog.destroy(device)
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	prog.pipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "remap_pipeline",
		Layout: prog.pipeLayout,
		Vertex: hal.VertexState{
			Module:     prog.shader,
			EntryPoint: shader.VertexEntry,
		},
		Fragment: &hal.FragmentState{
			Module:     prog.shader,
			EntryPoint: shader.FragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    targetFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		prog.destroy(device)
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	return prog, nil
}

// destroy releases the program in reverse creation order.
func (p *program) destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.layerLayout != nil {
		device.DestroyBindGroupLayout(p.layerLayout)
		p.layerLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// programCache holds compiled programs by source hash. Scenes sharing a
// configuration share a pipeline.
type programCache struct {
	device   hal.Device
	layout   hal.BindGroupLayout
	programs map[uint64]*program
}

func newProgramCache(device hal.Device, layout hal.BindGroupLayout) *programCache {
	return &programCache{device: device, layout: layout, programs: make(map[uint64]*program)}
}

// get returns the program of p, compiling it on first use.
func (c *programCache) get(p *shader.Program) (*program, bool, error) {
	if prog, ok := c.programs[p.Hash]; ok {
		return prog, true, nil
	}
	prog, err := createProgram(c.device, c.layout, p)
	if err != nil {
		return nil, false, err
	}
	c.programs[p.Hash] = prog
	return prog, false, nil
}

func (c *programCache) len() int { return len(c.programs) }

func (c *programCache) destroy() {
	for h, p := range c.programs {
		p.destroy(c.device)
		delete(c.programs, h)
	}
}
