package mockup

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Artwork is user-designed vector content (SVG markup).
//
// Artwork is treated as immutable. Two artworks that differ only in
// attribute order or insignificant whitespace have the same canonical text
// and therefore the same fingerprint.
type Artwork struct {
	Markup string
}

// NewArtwork parses markup and returns the artwork holding it.
func NewArtwork(markup string) (*Artwork, error) {
	a := &Artwork{Markup: markup}
	if _, err := a.Document(); err != nil {
		return nil, err
	}
	return a, nil
}

// Document parses the markup into a fresh etree document. The caller owns
// the result.
func (a Artwork) Document() (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(a.Markup); err != nil {
		return nil, fmt.Errorf("%w: parse artwork: %w", ErrInvalidRequest, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: artwork has no root element", ErrInvalidRequest)
	}
	return doc, nil
}

// MarshalText implements encoding.TextMarshaler. It returns the canonical
// serialization: attributes sorted, whitespace-only text dropped, no
// self-closing tags.
func (a Artwork) MarshalText() ([]byte, error) {
	doc, err := a.Document()
	if err != nil {
		return nil, err
	}
	canonicalize(doc.Root())
	doc.Indent(etree.NoIndent)
	doc.WriteSettings.CanonicalEndTags = true
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	s, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serialize artwork: %w", err)
	}
	return []byte(s), nil
}

func canonicalize(el *etree.Element) {
	el.SortAttrs()
	for _, c := range el.ChildElements() {
		canonicalize(c)
	}
}

// Size returns the intrinsic pixel size of the artwork: the root width and
// height attributes, or the viewBox extent when they are missing or
// relative. ok is false when neither is usable.
func (a Artwork) Size() (width, height int, ok bool) {
	doc, err := a.Document()
	if err != nil {
		return 0, 0, false
	}
	root := doc.Root()
	w, wok := parseLength(root.SelectAttrValue("width", ""))
	h, hok := parseLength(root.SelectAttrValue("height", ""))
	if wok && hok {
		return w, h, true
	}
	fields := strings.FieldsFunc(root.SelectAttrValue("viewBox", ""), func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) != 4 {
		return 0, 0, false
	}
	vw, err1 := strconv.ParseFloat(fields[2], 64)
	vh, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || vw <= 0 || vh <= 0 {
		return 0, 0, false
	}
	return int(math.Ceil(vw)), int(math.Ceil(vh)), true
}

// parseLength parses an absolute SVG length in pixels ("120" or "120px").
func parseLength(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return int(math.Ceil(v)), true
}
