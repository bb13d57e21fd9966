package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/mockup/scene"
)

// Strategy emits the WGSL of one extra layer.
//
// Every layer gets the same declarations and samples; strategies only
// differ in the statement that folds the layer into maincol.
type Strategy interface {
	// Blend returns the statement updating maincol for layer i.
	Blend(i int) string
	// Type returns the blend type the strategy implements.
	Type() scene.BlendType
}

// AlphaCutout interpolates the masked layer content over maincol by the
// mask's alpha.
type AlphaCutout struct{}

// Blend implements Strategy.
func (AlphaCutout) Blend(i int) string {
	return fmt.Sprintf("maincol = (layer_content_col_%[1]d * layercol_%[1]d.a) + (maincol * (1.0 - layercol_%[1]d.a));\n", i)
}

// Type implements Strategy.
func (AlphaCutout) Type() scene.BlendType { return scene.AlphaCutout }

// Multiply multiplies maincol by the masked layer content, scaled by the
// mask alpha and the reflectance blue channel, and adds back the
// unweighted remainder.
type Multiply struct{}

// Blend implements Strategy.
func (Multiply) Blend(i int) string {
	return fmt.Sprintf("maincol = (maincol * layer_content_col_%[1]d * layercol_%[1]d.a * meta_color.b) + (maincol * a1);\n", i)
}

// Type implements Strategy.
func (Multiply) Type() scene.BlendType { return scene.Multiply }

// StrategyFor returns the strategy implementing t.
func StrategyFor(t scene.BlendType) (Strategy, error) {
	switch t {
	case scene.AlphaCutout:
		return AlphaCutout{}, nil
	case scene.Multiply:
		return Multiply{}, nil
	}
	return nil, fmt.Errorf("shader: %w: %d", scene.ErrUnknownBlend, t)
}

// Layer texture names.
func maskName(i int) string    { return fmt.Sprintf("u_layer_%d", i) }
func contentName(i int) string { return fmt.Sprintf("u_layer_content_%d", i) }

// declareLayer writes the texture pair of layer i.
func declareLayer(b *strings.Builder, i int) {
	fmt.Fprintf(b, "@group(%d) @binding(%d) var %s: texture_2d<f32>;\n", GroupLayers, LayerMaskBinding(i), maskName(i))
	fmt.Fprintf(b, "@group(%d) @binding(%d) var %s: texture_2d<f32>;\n", GroupLayers, LayerContentBinding(i), contentName(i))
}

// sampleLayer writes the two samples of layer i: the mask at the scene
// position and the content at the decoded artwork coordinate.
func sampleLayer(b *strings.Builder, i int) {
	fmt.Fprintf(b, "let layercol_%d = textureSampleLevel(%s, s_linear, p, 0.0);\n", i, maskName(i))
	fmt.Fprintf(b, "let layer_content_col_%d = textureSampleLevel(%s, s_repeat, tex_coord, 0.0);\n", i, contentName(i))
}
