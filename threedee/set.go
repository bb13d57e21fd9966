package threedee

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/gogpu/mockup"
	"github.com/gogpu/mockup/scene"
)

// loadSet loads the rasters of scene id and derives its descriptor from
// the configured one and the request settings.
func (r *Renderer) loadSet(ctx context.Context, id int, settings mockup.RenderSettings, content *image.NRGBA) (*scene.Set, error) {
	desc, ok := r.cfg.Scenes[id]
	if !ok {
		desc = scene.Descriptor{Name: strconv.Itoa(id)}
	}
	set := &scene.Set{Descriptor: settings.Apply(desc), Content: content}

	for _, a := range []struct {
		name string
		dst  **image.NRGBA
	}{
		{scene.AssetScene, &set.Base},
		{scene.AssetUV, &set.Position},
		{scene.AssetMeta, &set.Meta},
	} {
		img, err := r.loader.Load(ctx, scene.AssetPath(r.baseURL, id, a.name))
		if err != nil {
			return nil, fmt.Errorf("threedee: scene %d %s: %w", id, a.name, err)
		}
		*a.dst = img
	}

	for _, l := range set.Descriptor.Layers {
		mask, err := r.loader.Load(ctx, scene.AssetPath(r.baseURL, id, l.ID+"_mask"))
		if err != nil {
			return nil, fmt.Errorf("threedee: scene %d layer %s: %w", id, l.ID, err)
		}
		lc, err := r.loader.Load(ctx, scene.AssetPath(r.baseURL, id, l.ID+"_content"))
		if err != nil {
			return nil, fmt.Errorf("threedee: scene %d layer %s: %w", id, l.ID, err)
		}
		set.Layers = append(set.Layers, scene.LayerImages{Mask: mask, Content: lc})
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("threedee: scene %d: %w: %w", id, mockup.ErrLoad, err)
	}
	mockup.Logger().Debug("threedee: scene set loaded", "scene", id, "layers", len(set.Layers))
	return set, nil
}
