// Package mockup renders product previews from user-designed artwork.
//
// # Overview
//
// A preview is either a flat 2D image of the artwork or a 3D-looking
// mockup: the flat preview image remapped onto a pre-baked product scene
// (base colour, UV/position map, reflectance map). The Orchestrator takes
// RenderRequest values, drops duplicates of requests already being
// computed, answers repeats from a small result cache, and delivers the
// outcome on a typed event channel.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/mockup"
//		"github.com/gogpu/mockup/threedee"
//		"github.com/gogpu/mockup/twodee"
//	)
//
//	o, _ := mockup.New(mockup.DefaultConfig(),
//		mockup.WithTwoDee(twodee.New(twodee.DefaultConfig())),
//		mockup.WithThreeDee(threedee.Factory(threedee.DefaultConfig())))
//	defer o.Close()
//
//	art, _ := mockup.NewArtwork(svg)
//	o.Submit(ctx, &mockup.RenderRequest{
//		Type: mockup.TwoD,
//		Data: &mockup.TwoDeeData{Artwork: art},
//	})
//	ev := <-o.Events()
//
// # Engines
//
// The root package does not render. Engines are injected:
//   - twodee: SVG flattening (oksvg/rasterx)
//   - threedee: scene loading and remapping, on the CPU compositor or, when
//     the gpu package is imported, on a wgpu compositor with CPU fallback
//
// # Events
//
// Every accepted request yields exactly one *PreviewResponse or
// *PreviewError. The 3D engine additionally reports *ThreeDeeReady after
// its first scene load and *ContextLost when the GPU context had to be
// rebuilt.
package mockup

// Version is the current version of the library.
const Version = "0.1.0"
