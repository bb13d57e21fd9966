// Package twodee renders the flat 2D preview of an artwork.
package twodee

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"strconv"

	"github.com/beevik/etree"

	"github.com/gogpu/mockup"
	"github.com/gogpu/mockup/assets"
	"github.com/gogpu/mockup/cache"
)

// Config configures a Renderer.
type Config struct {
	// ImageCacheSize is the number of decoded embedded images kept.
	ImageCacheSize int
	// ResultCacheSize is the number of rendered outputs kept.
	ResultCacheSize int
	// Loader resolves <image> links. Nil uses assets.New.
	Loader assets.Loader
	// Rasterizer converts cleaned documents. Nil uses SVGRasterizer.
	Rasterizer Rasterizer
}

// DefaultConfig returns the default 2D configuration.
func DefaultConfig() Config {
	return Config{
		ImageCacheSize:  20,
		ResultCacheSize: 20,
	}
}

// Renderer flattens artwork to images. It implements mockup.TwoDeeEngine
// and is safe for concurrent use.
type Renderer struct {
	loader     assets.Loader
	rasterizer Rasterizer
	images     *cache.FIFO[string, *image.NRGBA]
	results    *cache.FIFO[string, *image.NRGBA]
}

// New creates a 2D renderer.
func New(cfg Config) *Renderer {
	if cfg.Loader == nil {
		cfg.Loader = assets.New(assets.DefaultConfig())
	}
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = SVGRasterizer{}
	}
	return &Renderer{
		loader:     cfg.Loader,
		rasterizer: cfg.Rasterizer,
		images:     cache.New[string, *image.NRGBA](cfg.ImageCacheSize),
		results:    cache.New[string, *image.NRGBA](cfg.ResultCacheSize),
	}
}

// Render implements mockup.TwoDeeEngine. The output has the request size,
// or the artwork's own size when the request has none.
func (r *Renderer) Render(ctx context.Context, req *mockup.RenderRequest) (image.Image, error) {
	data, ok := req.Data.(*mockup.TwoDeeData)
	if !ok || data.Artwork == nil {
		return nil, fmt.Errorf("twodee: %w: %T", mockup.ErrInvalidRequest, req.Data)
	}
	width, height, err := outputSize(req.Size, data.Artwork)
	if err != nil {
		return nil, err
	}
	canonical, err := data.Artwork.MarshalText()
	if err != nil {
		return nil, err
	}
	key := strconv.Itoa(width) + "x" + strconv.Itoa(height) + ":" + string(canonical)
	if img, ok := r.results.Get(key); ok {
		mockup.Logger().Debug("twodee: result cache hit", "size", strconv.Itoa(width)+"x"+strconv.Itoa(height))
		return img, nil
	}

	doc, err := data.Artwork.Document()
	if err != nil {
		return nil, err
	}
	Clean(doc)
	images, err := r.resolveImages(ctx, doc)
	if err != nil {
		return nil, err
	}
	img, err := r.rasterizer.Rasterize(ctx, &Document{Doc: doc, Images: images}, width, height)
	if err != nil {
		return nil, err
	}

	// Give other renders a turn before publishing, as a browser would
	// wait a frame before reading the canvas back.
	runtime.Gosched()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.results.Put(key, img)
	return img, nil
}

// resolveImages loads every <image> link of doc through the image cache.
func (r *Renderer) resolveImages(ctx context.Context, doc *etree.Document) (map[string]*image.NRGBA, error) {
	els := doc.FindElements("//image")
	if len(els) == 0 {
		return nil, nil
	}
	out := make(map[string]*image.NRGBA, len(els))
	for _, el := range els {
		href := imageHref(el)
		if href == "" {
			continue
		}
		if _, done := out[href]; done {
			continue
		}
		img, ok := r.images.Get(href)
		if !ok {
			var err error
			img, err = r.loader.Load(ctx, href)
			if err != nil {
				return nil, fmt.Errorf("twodee: embedded image: %w", err)
			}
			r.images.Put(href, img)
		}
		out[href] = img
	}
	return out, nil
}

// ResultStats returns the statistics of the result cache.
func (r *Renderer) ResultStats() cache.Stats {
	return r.results.Stats()
}

func outputSize(size *mockup.Size, art *mockup.Artwork) (int, int, error) {
	if size != nil {
		return size.Width, size.Height, nil
	}
	w, h, ok := art.Size()
	if !ok {
		return 0, 0, fmt.Errorf("twodee: %w: no size and artwork has no intrinsic size", mockup.ErrInvalidRequest)
	}
	return w, h, nil
}
