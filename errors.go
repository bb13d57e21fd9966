package mockup

import "errors"

// Sentinel errors. Sub-packages wrap them, so test with errors.Is.
var (
	// ErrLoad is returned when an asset (scene texture, artwork image)
	// cannot be loaded or decoded.
	ErrLoad = errors.New("mockup: load failed")

	// ErrGraphicsContext is returned when the GPU context is lost or cannot
	// be (re)created.
	ErrGraphicsContext = errors.New("mockup: graphics context unavailable")

	// ErrUnsupportedRequest is returned for preview types without an engine
	// and for 3D requests before InitThreeDee.
	ErrUnsupportedRequest = errors.New("mockup: unsupported request")

	// ErrInvalidRequest is returned by Submit for malformed requests.
	ErrInvalidRequest = errors.New("mockup: invalid request")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mockup: orchestrator closed")
)
