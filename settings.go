package mockup

import (
	"fmt"

	"github.com/gogpu/mockup/scene"
)

// RenderSettings are per-request rendering switches.
type RenderSettings struct {
	// UseCrop crops 3D output to the reflectance map's bounding box.
	UseCrop bool
	// FakeWhite forces the white-is-transparent shading mode.
	FakeWhite bool
	// HasEditorBackground is carried into the scene descriptor.
	HasEditorBackground bool
	// HasShineLayer makes ShineColor the scene's shine colour unless the
	// position map header carries one.
	HasShineLayer bool
	// HasThumbnail is carried for clients; no engine consumes it.
	HasThumbnail bool
	// ShineColor is a 24-bit RGB colour.
	ShineColor uint32
}

// DefaultRenderSettings returns settings with every switch off.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{}
}

// Validate checks the settings.
func (s RenderSettings) Validate() error {
	if s.ShineColor > 0xFFFFFF {
		return fmt.Errorf("%w: shine colour %#x exceeds 24 bits", ErrInvalidRequest, s.ShineColor)
	}
	return nil
}

// Apply returns d with the settings applied.
func (s RenderSettings) Apply(d scene.Descriptor) scene.Descriptor {
	out := d.Clone()
	if s.UseCrop {
		out.UseCrop = true
	}
	if s.FakeWhite {
		out.WhiteIsTransparent = true
	}
	if s.HasEditorBackground {
		out.HasEditorBackground = true
	}
	if s.HasShineLayer {
		out.ShineColor = s.ShineColor
	}
	return out
}
