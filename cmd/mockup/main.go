// Command mockup renders the 2D preview of an SVG design and, given a
// scene directory, its 3D product mockup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/mockup"
	"github.com/gogpu/mockup/assets"
	_ "github.com/gogpu/mockup/gpu" // enable the GPU compositor for -gpu
	intImage "github.com/gogpu/mockup/internal/image"
	"github.com/gogpu/mockup/threedee"
	"github.com/gogpu/mockup/twodee"
)

func main() {
	var (
		input   = flag.String("svg", "", "SVG design to render (required)")
		size    = flag.Int("size", 1080, "2D preview size in pixels")
		out2d   = flag.String("out2d", "preview2d.png", "2D output file")
		out3d   = flag.String("out3d", "preview3d.png", "3D output file")
		scenes  = flag.String("scenes", "", "scene directory or URL holding {id}/images")
		sceneID = flag.Int("scene", 0, "scene id")
		useGPU  = flag.Bool("gpu", false, "composite on the GPU, falling back to the CPU")
		watch   = flag.Bool("watch", false, "re-render when scene assets change")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()
	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	mockup.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, options{
		input: *input, size: *size, out2d: *out2d, out3d: *out3d,
		scenes: *scenes, sceneID: *sceneID, useGPU: *useGPU, watch: *watch,
	}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("mockup: %v", err)
	}
}

type options struct {
	input, out2d, out3d string
	size                int
	scenes              string
	sceneID             int
	useGPU, watch       bool
}

func run(ctx context.Context, opts options) error {
	markup, err := os.ReadFile(opts.input)
	if err != nil {
		return err
	}
	art, err := mockup.NewArtwork(string(markup))
	if err != nil {
		return err
	}

	// The renderer is kept so that scene changes can invalidate it.
	var renderer *threedee.Renderer
	factory := func(init mockup.ThreeDeeInit, emit func(mockup.Event)) (mockup.ThreeDeeEngine, error) {
		cfg := threedee.DefaultConfig()
		cfg.UseGPU = init.UseGPU
		r, err := threedee.New(init.BaseURL, cfg, emit)
		if err != nil {
			return nil, err
		}
		renderer = r
		return r, nil
	}

	o, err := mockup.New(mockup.DefaultConfig(),
		mockup.WithTwoDee(twodee.New(twodee.DefaultConfig())),
		mockup.WithThreeDee(factory))
	if err != nil {
		return err
	}
	defer func() { _ = o.Close() }()

	flat, err := render(ctx, o, &mockup.RenderRequest{
		Type: mockup.TwoD,
		Size: &mockup.Size{Width: opts.size, Height: opts.size},
		Data: &mockup.TwoDeeData{Artwork: art},
	})
	if err != nil {
		return fmt.Errorf("2D preview: %w", err)
	}
	if err := intImage.SavePNG(opts.out2d, flat); err != nil {
		return err
	}
	log.Printf("2D preview saved to %s", opts.out2d)

	if opts.scenes == "" {
		return nil
	}
	if err := o.InitThreeDee(mockup.ThreeDeeInit{BaseURL: opts.scenes, UseGPU: opts.useGPU}); err != nil {
		return err
	}
	preview, err := assets.EncodeDataURI(flat)
	if err != nil {
		return err
	}
	req := &mockup.RenderRequest{
		Type:     mockup.ThreeD,
		Settings: mockup.DefaultRenderSettings(),
		Data:     &mockup.ThreeDeeData{PreviewImage: preview, PreviewSetID: opts.sceneID},
	}
	render3D := func() error {
		img, err := render(ctx, o, req)
		if err != nil {
			return fmt.Errorf("3D preview: %w", err)
		}
		if err := intImage.SavePNG(opts.out3d, img); err != nil {
			return err
		}
		log.Printf("3D preview saved to %s (gpu: %v)", opts.out3d, renderer.Accelerated())
		return nil
	}
	if err := render3D(); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	w, err := assets.NewWatcher(opts.scenes)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	log.Printf("watching %s", opts.scenes)
	return w.Run(ctx, func(c assets.Change) {
		if c.SceneID != opts.sceneID {
			return
		}
		renderer.Invalidate(c.SceneID)
		o.ClearCache()
		if err := render3D(); err != nil {
			log.Printf("re-render: %v", err)
		}
	})
}

// render submits req and waits for its outcome, logging engine events on
// the way.
func render(ctx context.Context, o *mockup.Orchestrator, req *mockup.RenderRequest) (image.Image, error) {
	accepted, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, errors.New("request already in flight")
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-o.Events():
			if !ok {
				return nil, mockup.ErrClosed
			}
			switch e := ev.(type) {
			case *mockup.PreviewResponse:
				return e.Image, nil
			case *mockup.PreviewError:
				return nil, e
			case *mockup.ContextLost:
				log.Printf("GPU context lost, rebuilding: %v", e.Err)
			case *mockup.ThreeDeeReady:
				log.Printf("scene %d ready", e.SceneID)
			}
		}
	}
}
