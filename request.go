package mockup

import (
	"fmt"
	"strconv"
)

// PreviewType selects the engine of a request.
type PreviewType uint8

// Preview types.
const (
	TwoD PreviewType = iota
	ThreeD
	Embroidery
	AnimatedThreeD
)

// String returns the type name.
func (t PreviewType) String() string {
	switch t {
	case TwoD:
		return "TwoD"
	case ThreeD:
		return "ThreeD"
	case Embroidery:
		return "Embroidery"
	case AnimatedThreeD:
		return "AnimatedThreeD"
	default:
		return "PreviewType(" + strconv.Itoa(int(t)) + ")"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t PreviewType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Size is a pixel size.
type Size struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// RenderRequest asks for one preview.
//
// A request is treated as immutable once submitted: the orchestrator works
// on a deep copy taken by Submit.
type RenderRequest struct {
	Type PreviewType
	// Size is the requested output size. Nil lets the engine decide.
	Size     *Size
	Settings RenderSettings
	Data     RenderData
	// Silent is copied onto the response; it does not affect rendering.
	Silent bool
}

// Validate checks that the request carries data matching its type and
// valid settings.
func (r *RenderRequest) Validate() error {
	if r == nil || r.Data == nil {
		return fmt.Errorf("%w: no render data", ErrInvalidRequest)
	}
	if r.Data.previewType() != r.Type {
		return fmt.Errorf("%w: %T data for a %s request", ErrInvalidRequest, r.Data, r.Type)
	}
	if r.Size != nil && !r.Size.Valid() {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidRequest, r.Size.Width, r.Size.Height)
	}
	if err := r.Settings.Validate(); err != nil {
		return err
	}
	return r.Data.validate()
}

// RenderData is the type-specific payload of a request. It is implemented
// by *TwoDeeData, *ThreeDeeData, *EmbroideryData and *AnimatedThreeDeeData.
type RenderData interface {
	previewType() PreviewType
	validate() error
}

// TwoDeeData is the payload of a 2D preview: the artwork flattened to an
// image.
type TwoDeeData struct {
	Artwork                  *Artwork
	ProductPartName          string
	CustomerCreatedContentID int
	// Attributes are opaque client attributes. They take part in the
	// fingerprint only.
	Attributes map[string]string
}

func (*TwoDeeData) previewType() PreviewType { return TwoD }

func (d *TwoDeeData) validate() error {
	if d.Artwork == nil || d.Artwork.Markup == "" {
		return fmt.Errorf("%w: 2D request without artwork", ErrInvalidRequest)
	}
	return nil
}

// ThreeDeeData is the payload of a 3D preview: a flat preview image
// mapped onto preview set PreviewSetID.
type ThreeDeeData struct {
	Size *Size
	// PreviewImage is a file path, an http(s) URL or a data: URI. Paths
	// and URLs take part in the fingerprint as text, so a rewritten file
	// behind the same reference is answered from the result cache. Pass a
	// data: URI (assets.EncodeDataURI) when the image content changes.
	PreviewImage             string
	PreviewSetID             int
	CustomerCreatedContentID int
	SideName                 string
}

func (*ThreeDeeData) previewType() PreviewType { return ThreeD }

func (d *ThreeDeeData) validate() error {
	if d.PreviewImage == "" {
		return fmt.Errorf("%w: 3D request without preview image", ErrInvalidRequest)
	}
	if d.PreviewSetID < 0 {
		return fmt.Errorf("%w: preview set %d", ErrInvalidRequest, d.PreviewSetID)
	}
	return nil
}

// EmbroideryData is the payload of an embroidery preview. No engine
// renders it.
type EmbroideryData struct {
	CustomerCreatedContentID int
	DesignToken              string
	Items                    []EmbroideryItem
}

// EmbroideryItem is one text item of an embroidery design.
type EmbroideryItem struct {
	Key         string
	Text        string
	DefaultText string
	X, Y        float64
	Width       float64
	Height      float64
}

func (*EmbroideryData) previewType() PreviewType { return Embroidery }
func (*EmbroideryData) validate() error          { return nil }

// AnimatedThreeDeeData is the payload of an animated 3D preview. No engine
// renders it.
type AnimatedThreeDeeData struct {
	Parts []ThreeDeeData
}

func (*AnimatedThreeDeeData) previewType() PreviewType { return AnimatedThreeD }
func (*AnimatedThreeDeeData) validate() error          { return nil }
