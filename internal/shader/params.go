package shader

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/mockup/scene"
)

// ParamsSize is the size of the uniform block in bytes: three vec4<f32>.
const ParamsSize = 48

// Params are the per-scene uniforms.
type Params struct {
	Width, Height float32
	Tiles         float32
	Debug         bool
	FakeWhite     bool
	ShineCutout   bool
	ShineColor    [3]float32 // linear 0..1
}

// ParamsFor returns the uniforms of descriptor d on a width x height canvas.
func ParamsFor(d scene.Descriptor, width, height int, debug bool) Params {
	r, g, b := d.ShineRGB()
	return Params{
		Width:       float32(width),
		Height:      float32(height),
		Tiles:       float32(d.TileCount()),
		Debug:       debug,
		FakeWhite:   d.WhiteIsTransparent,
		ShineCutout: d.ShineCutout,
		ShineColor:  [3]float32{float32(r) / 255, float32(g) / 255, float32(b) / 255},
	}
}

// Bytes encodes p in the std140 layout of the Params struct.
func (p Params) Bytes() []byte {
	vals := [12]float32{
		p.Width, p.Height, p.Tiles, flag(p.Debug),
		flag(p.FakeWhite), flag(p.ShineCutout), 0, 0,
		p.ShineColor[0], p.ShineColor[1], p.ShineColor[2], 1,
	}
	out := make([]byte, ParamsSize)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
