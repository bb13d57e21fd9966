// Package shader synthesizes the WGSL remap-and-shade program for a scene.
//
// The program is a fixed template (remap.wgsl) with four marker lines. A
// scene's shading mode fills the base blend and final colour markers, and
// each extra layer adds a texture pair and a blend statement chosen by its
// blend strategy. Identical scene configurations produce byte-identical
// source, so the GPU compositor caches compiled pipelines by Program.Hash.
package shader

import (
	_ "embed"
	"hash/fnv"
	"strings"

	"github.com/gogpu/mockup/scene"
)

//go:embed remap.wgsl
var remapTemplate string

// Template markers.
const (
	MarkerSamplers   = "//@TEMPLATE_SAMPLERS@//"
	MarkerBaseBlend  = "//@BASE_BLEND_LOGIC@//"
	MarkerLayerLogic = "//@TEMPLATE_LAYER_LOGIC@//"
	MarkerFragColor  = "//@TEMPLATE_FRAGCOLOR_LOGIC@//"
)

// Entry points of the synthesized program.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// Bind group layout shared by every synthesized program.
const (
	GroupScene  = 0
	GroupLayers = 1

	BindingParams   = 0
	BindingLinear   = 1
	BindingNearest  = 2
	BindingRepeat   = 3
	BindingBase     = 4
	BindingContent  = 5
	BindingPosition = 6
	BindingMeta     = 7

	// SceneBindings is the number of bindings in GroupScene.
	SceneBindings = 8
)

// LayerMaskBinding returns the binding of layer i's mask texture.
func LayerMaskBinding(i int) uint32 { return uint32(2 * i) }

// LayerContentBinding returns the binding of layer i's content texture.
func LayerContentBinding(i int) uint32 { return uint32(2*i + 1) }

// Mode is the top-level shading mode of a scene.
type Mode uint8

// Shading modes.
const (
	// Default multiplies the blurred artwork into the scene by the
	// reflectance blue channel and adds the specular green channel.
	Default Mode = iota
	// WhiteIsTransparent lets near-white artwork reveal the scene.
	WhiteIsTransparent
	// ShineCutout keeps the scene and adds only the shine highlight
	// where the artwork is dark.
	ShineCutout
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Default:
		return "Default"
	case WhiteIsTransparent:
		return "WhiteIsTransparent"
	case ShineCutout:
		return "ShineCutout"
	default:
		return "Unknown"
	}
}

// ModeFor selects the mode of d. Shine cutout wins over white is
// transparent, which wins over the default.
func ModeFor(d scene.Descriptor) Mode {
	switch {
	case d.ShineCutout:
		return ShineCutout
	case d.WhiteIsTransparent:
		return WhiteIsTransparent
	default:
		return Default
	}
}

// Mode-specific snippets.
const (
	defaultBlend = "var maincol = (scene_color * (col / 41.0) * meta_color.b * (col / 41.0).a) + (scene_color * a1);"
	defaultFrag  = "return min(acccol + ggga(accmeta), vec4<f32>(1.0));"

	whiteBlend = "let luma = blur_luma_and_thin_edges(0.01, tex_coord);\n" +
		"    var maincol = (scene_color * luma) + (col / 41.0 * (1.0 - luma));"
	// No shine on white-is-transparent scenes.
	whiteFrag = "return acccol;"

	shineBlend = "var maincol = col / 41.0;"
	shineFrag  = "return accscene + min(((ggga(accmeta) * shine) + (ggga(accmeta) * 0.05)) * (1.0 - acccol), vec4<f32>(1.0));"
)

// Program is a synthesized WGSL program.
type Program struct {
	// Source is the complete WGSL source.
	Source string
	// Hash is the FNV-1a 64 hash of Source.
	Hash uint64
	// Mode is the shading mode the program was built for.
	Mode Mode
	// Layers are the blend strategies, in layer order.
	Layers []Strategy
}

// Synthesize builds the program for d.
func Synthesize(d scene.Descriptor) (*Program, error) {
	strategies := make([]Strategy, len(d.Layers))
	for i, l := range d.Layers {
		s, err := StrategyFor(l.Blend)
		if err != nil {
			return nil, err
		}
		strategies[i] = s
	}

	var samplers, layers strings.Builder
	for i, s := range strategies {
		declareLayer(&samplers, i)
		sampleLayer(&layers, i)
		layers.WriteString(s.Blend(i))
	}

	mode := ModeFor(d)
	var blend, frag string
	switch mode {
	case ShineCutout:
		blend, frag = shineBlend, shineFrag
	case WhiteIsTransparent:
		blend, frag = whiteBlend, whiteFrag
	default:
		blend, frag = defaultBlend, defaultFrag
	}

	src := strings.NewReplacer(
		MarkerSamplers, samplers.String(),
		MarkerBaseBlend, blend,
		MarkerLayerLogic, layers.String(),
		MarkerFragColor, frag,
	).Replace(remapTemplate)

	return &Program{
		Source: src,
		Hash:   hashSource(src),
		Mode:   mode,
		Layers: strategies,
	}, nil
}

func hashSource(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
