package scene

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// ErrSizeMismatch is returned by Set.Validate when rasters differ in size.
var ErrSizeMismatch = errors.New("scene: raster sizes differ")

// Asset names under a scene's images directory.
const (
	AssetScene = "scene"
	AssetUV    = "uv"
	AssetMeta  = "meta"
)

// LayerImages holds the rasters of one extra layer.
type LayerImages struct {
	Mask    *image.NRGBA // sampled at the scene position
	Content *image.NRGBA // sampled at the decoded content coordinate
}

// Set is a loaded scene: every raster has the scene's dimensions except
// Content, which may have any size.
type Set struct {
	Descriptor Descriptor
	Base       *image.NRGBA
	Position   *image.NRGBA
	Meta       *image.NRGBA
	Content    *image.NRGBA
	Layers     []LayerImages
}

// Size returns the scene dimensions (those of Base).
func (s *Set) Size() (width, height int) {
	if s.Base == nil {
		return 0, 0
	}
	return s.Base.Rect.Dx(), s.Base.Rect.Dy()
}

// Validate checks that the set is complete and consistently sized.
func (s *Set) Validate() error {
	if s.Base == nil || s.Position == nil || s.Meta == nil || s.Content == nil {
		return errors.New("scene: incomplete set")
	}
	w, h := s.Size()
	for name, img := range map[string]*image.NRGBA{AssetUV: s.Position, AssetMeta: s.Meta} {
		if img.Rect.Dx() != w || img.Rect.Dy() != h {
			return fmt.Errorf("%w: %s is %dx%d, scene is %dx%d",
				ErrSizeMismatch, name, img.Rect.Dx(), img.Rect.Dy(), w, h)
		}
	}
	if len(s.Layers) != len(s.Descriptor.Layers) {
		return fmt.Errorf("scene: %d layer rasters for %d layers", len(s.Layers), len(s.Descriptor.Layers))
	}
	for i, l := range s.Layers {
		if l.Mask == nil || l.Content == nil {
			return fmt.Errorf("scene: layer %d incomplete", i)
		}
	}
	return nil
}

// AssetPath returns the location of a scene asset following the
// {baseURL}/{id}/images/{name} convention.
func AssetPath(baseURL string, id int, name string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strconv.Itoa(id) + "/images/" + name
}
