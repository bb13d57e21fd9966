// Package scene describes the pre-baked product scenes that flat artwork is
// projected onto.
//
// A scene is a set of same-sized rasters captured once per product: the
// base colour image, a UV/position map whose RGB channels pack a 2D
// coordinate into the artwork, and a reflectance (meta) map whose green
// channel carries specular highlights and whose blue channel carries the
// blend weight. Per-scene rendering hints travel inside the position map
// itself, in a small header (see ParseHeader).
package scene

import (
	"errors"
	"fmt"
	"strings"
)

// unknownStr is returned by String methods for out-of-range values.
const unknownStr = "Unknown"

// ErrUnknownBlend is returned by ParseBlendType for unrecognized names.
var ErrUnknownBlend = errors.New("scene: unknown layer blend type")

// BlendType selects how an extra layer is composited over the running
// colour.
type BlendType uint8

// Blend type constants.
const (
	// AlphaCutout interpolates the masked layer content over the running
	// colour by the mask's alpha.
	AlphaCutout BlendType = iota

	// Multiply multiplies the running colour by the masked layer content,
	// scaled by the mask alpha and the reflectance blue channel, and adds
	// back the unmasked remainder.
	Multiply
)

// String returns the canonical upper-case name of the blend type.
func (b BlendType) String() string {
	switch b {
	case AlphaCutout:
		return "ALPHA_CUTOUT"
	case Multiply:
		return "MULTIPLY"
	default:
		return unknownStr
	}
}

// ParseBlendType parses ALPHA_CUTOUT or MULTIPLY (case-insensitive).
func ParseBlendType(s string) (BlendType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALPHA_CUTOUT":
		return AlphaCutout, nil
	case "MULTIPLY":
		return Multiply, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBlend, s)
}

// MarshalText implements encoding.TextMarshaler.
func (b BlendType) MarshalText() ([]byte, error) {
	if b > Multiply {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlend, b)
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BlendType) UnmarshalText(text []byte) error {
	v, err := ParseBlendType(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Layer is an optional mask + content pair composited on top of the base
// result.
type Layer struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Blend BlendType `json:"type"`
}

// Animation is reserved for animated scenes. Nothing consumes it yet.
type Animation struct {
	Frames       int `json:"frames"`
	CurrentFrame int `json:"currentFrame"`
}

// Descriptor is the per-product scene configuration.
//
// A Descriptor is a value: engines copy it when a scene is loaded and
// never share it, so a loaded scene's configuration is frozen until the
// next base scene replaces it.
type Descriptor struct {
	Name                string     `json:"name"`
	Tiles               int        `json:"numberOfTiles"`
	HasEditorBackground bool       `json:"hasEditorBackground"`
	WhiteIsTransparent  bool       `json:"whiteIsTransparent"`
	Layers              []Layer    `json:"layers"`
	Animation           *Animation `json:"animation,omitempty"`
	UseCrop             bool       `json:"useCrop"`
	ShineCutout         bool       `json:"shineCutout"`
	ShineColor          uint32     `json:"shineColor"`
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.Layers != nil {
		out.Layers = append([]Layer(nil), d.Layers...)
	}
	if d.Animation != nil {
		a := *d.Animation
		out.Animation = &a
	}
	return out
}

// TileCount returns the number of content tiles, at least 1.
func (d Descriptor) TileCount() int {
	if d.Tiles < 1 {
		return 1
	}
	return d.Tiles
}

// ShineRGB splits ShineColor into its red, green and blue bytes.
func (d Descriptor) ShineRGB() (r, g, b uint8) {
	return uint8(d.ShineColor >> 16), uint8(d.ShineColor >> 8), uint8(d.ShineColor)
}

// Rect is an axis-aligned pixel rectangle, used as the tight crop box of a
// scene.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// String returns a compact "x,y wxh" form used in logs.
func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// Point is a normalized artwork coordinate in [0, 1).
type Point struct {
	X float64
	Y float64
}
