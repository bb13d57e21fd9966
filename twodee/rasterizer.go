package twodee

import (
	"context"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"

	"github.com/gogpu/mockup"
	intImage "github.com/gogpu/mockup/internal/image"
)

// Document is cleaned artwork ready for rasterization.
type Document struct {
	Doc *etree.Document
	// Images holds the decoded targets of the document's <image> links,
	// keyed by link.
	Images map[string]*image.NRGBA
}

// Rasterizer converts a document to pixels, fitting its viewBox into
// width x height centered with the aspect ratio kept.
type Rasterizer interface {
	Rasterize(ctx context.Context, d *Document, width, height int) (*image.NRGBA, error)
}

// SVGRasterizer is the default Rasterizer, built on oksvg and rasterx.
//
// oksvg has no <image> support. Top-level <image> elements are therefore
// drawn by SVGRasterizer itself, in document order between the vector runs
// around them; their transforms and preserveAspectRatio are ignored.
type SVGRasterizer struct{}

// viewBox is the user-space rectangle of a document.
type viewBox struct {
	x, y, w, h float64
}

// fit maps the viewBox into a width x height target.
type fit struct {
	scale, offX, offY float64
}

func (f fit) rect(x, y, w, h float64) image.Rectangle {
	return image.Rect(
		int(math.Round(f.offX+x*f.scale)),
		int(math.Round(f.offY+y*f.scale)),
		int(math.Round(f.offX+(x+w)*f.scale)),
		int(math.Round(f.offY+(y+h)*f.scale)),
	)
}

// Rasterize implements Rasterizer.
func (SVGRasterizer) Rasterize(ctx context.Context, d *Document, width, height int) (*image.NRGBA, error) {
	root := d.Doc.Root()
	if root == nil {
		return nil, fmt.Errorf("twodee: %w: empty document", mockup.ErrInvalidRequest)
	}
	vb, ok := rootViewBox(root, width, height)
	if !ok {
		return nil, fmt.Errorf("twodee: %w: degenerate viewBox", mockup.ErrInvalidRequest)
	}
	scale := math.Min(float64(width)/vb.w, float64(height)/vb.h)
	f := fit{
		scale: scale,
		offX:  (float64(width) - vb.w*scale) / 2,
		offY:  (float64(height) - vb.h*scale) / 2,
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	var defs, run []*etree.Element
	for _, c := range root.ChildElements() {
		if c.Tag == "defs" || c.Tag == "style" {
			defs = append(defs, c)
		}
	}

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		err := drawVector(canvas, root, vb, f, defs, run)
		run = run[:0]
		return err
	}
	for _, c := range root.ChildElements() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch c.Tag {
		case "defs", "style":
		case "image":
			if err := flush(); err != nil {
				return nil, err
			}
			drawImage(canvas, c, d.Images, vb, f)
		default:
			run = append(run, c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return intImage.ToNRGBA(canvas), nil
}

// drawVector rasterizes elems with oksvg onto canvas, over what is there.
func drawVector(canvas *image.RGBA, root *etree.Element, vb viewBox, f fit, defs, elems []*etree.Element) error {
	sub := etree.NewDocument()
	svg := sub.CreateElement("svg")
	for _, a := range root.Attr {
		switch a.Key {
		case "width", "height", "viewBox", "x", "y", "preserveAspectRatio":
			continue
		}
		svg.CreateAttr(a.FullKey(), a.Value)
	}
	svg.CreateAttr("viewBox", fmt.Sprintf("%g %g %g %g", vb.x, vb.y, vb.w, vb.h))
	for _, d := range defs {
		svg.AddChild(d.Copy())
	}
	for _, e := range elems {
		svg.AddChild(e.Copy())
	}
	text, err := sub.WriteToString()
	if err != nil {
		return fmt.Errorf("twodee: serialize: %w", err)
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(text), oksvg.IgnoreErrorMode)
	if err != nil {
		return fmt.Errorf("twodee: %w: parse svg: %w", mockup.ErrInvalidRequest, err)
	}
	w, h := canvas.Rect.Dx(), canvas.Rect.Dy()
	icon.SetTarget(f.offX, f.offY, vb.w*f.scale, vb.h*f.scale)
	scanner := rasterx.NewScannerGV(w, h, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return nil
}

// drawImage draws a resolved <image> element scaled into its box.
func drawImage(canvas *image.RGBA, el *etree.Element, images map[string]*image.NRGBA, vb viewBox, f fit) {
	src := images[imageHref(el)]
	if src == nil {
		return
	}
	x := attrFloat(el, "x", 0)
	y := attrFloat(el, "y", 0)
	w := attrFloat(el, "width", float64(src.Rect.Dx()))
	h := attrFloat(el, "height", float64(src.Rect.Dy()))
	dr := f.rect(x-vb.x, y-vb.y, w, h)
	if dr.Empty() {
		return
	}
	draw.BiLinear.Scale(canvas, dr, src, src.Bounds(), draw.Over, nil)
}

// rootViewBox returns the viewBox of root, falling back to its width and
// height and then to the target size.
func rootViewBox(root *etree.Element, width, height int) (viewBox, bool) {
	fields := strings.FieldsFunc(root.SelectAttrValue("viewBox", ""), func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 4 {
		var v [4]float64
		valid := true
		for i, s := range fields {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				valid = false
				break
			}
			v[i] = n
		}
		if valid && v[2] > 0 && v[3] > 0 {
			return viewBox{x: v[0], y: v[1], w: v[2], h: v[3]}, true
		}
	}
	w := attrFloat(root, "width", float64(width))
	h := attrFloat(root, "height", float64(height))
	return viewBox{w: w, h: h}, w > 0 && h > 0
}

// attrFloat parses a numeric attribute in user units.
func attrFloat(el *etree.Element, key string, dflt float64) float64 {
	s := strings.TrimSuffix(strings.TrimSpace(el.SelectAttrValue(key, "")), "px")
	if s == "" {
		return dflt
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return dflt
	}
	return v
}
