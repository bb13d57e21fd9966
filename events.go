package mockup

import (
	"fmt"
	"image"
)

// Event is a value delivered on Orchestrator.Events. It is one of
// *PreviewResponse, *PreviewError, *ContextLost or *ThreeDeeReady.
type Event interface {
	event()
}

// PreviewResponse is a finished preview.
type PreviewResponse struct {
	Image                    image.Image
	Type                     PreviewType
	ProductPartName          string
	CustomerCreatedContentID int
	SideName                 string
	// Silent is copied from the request that produced this event, not from
	// the request that filled the cache.
	Silent bool
	// Fingerprint is the canonical text of the request.
	Fingerprint string
	// Cached reports whether the image came from the result cache.
	Cached bool
}

func (*PreviewResponse) event() {}

// clone returns a shallow copy. The image is shared and must not be
// modified by receivers.
func (r *PreviewResponse) clone() *PreviewResponse {
	c := *r
	return &c
}

// PreviewError reports a request that failed after it was accepted.
type PreviewError struct {
	Type        PreviewType
	Fingerprint string
	Cause       error
}

func (*PreviewError) event() {}

func (e *PreviewError) Error() string {
	return fmt.Sprintf("mockup: %s preview failed: %v", e.Type, e.Cause)
}

func (e *PreviewError) Unwrap() error { return e.Cause }

// ContextLost is emitted when the 3D engine lost its graphics context. The
// engine recreates the context and renders the pending request again.
type ContextLost struct {
	Err error
}

func (*ContextLost) event() {}

// ThreeDeeReady is emitted once the 3D engine has loaded its first scene.
type ThreeDeeReady struct {
	BaseURL string
	SceneID int
}

func (*ThreeDeeReady) event() {}
