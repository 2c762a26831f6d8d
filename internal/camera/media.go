package camera

import (
	"context"
	"fmt"
	"image"
)

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// ErrPermissionQueryUnsupported is returned by media devices that offer no
// permission query. The session degrades to PermissionPrompt and discovers
// the real state via the first Start.
var ErrPermissionQueryUnsupported = fmt.Errorf("camera: permission query not supported")

// Constraints selects the stream to acquire. The capture flows always want
// the rear-facing camera and no audio.
type Constraints struct {
	FacingRear bool
	Audio      bool
}

// Track is one live hardware track of a stream. Stop releases the
// underlying device handle and must be idempotent.
type Track interface {
	Stop()
}

// Stream is an acquired video stream: a set of hardware tracks plus access
// to the current frame.
type Stream interface {
	Tracks() []Track
	// Frame samples the current frame at the stream's native dimensions.
	Frame() (image.Image, error)
}

// MediaDevices abstracts the platform camera subsystem.
type MediaDevices interface {
	// QueryPermission reports the current camera permission, or
	// ErrPermissionQueryUnsupported when the platform has no such query.
	QueryPermission(ctx context.Context) (PermissionState, error)
	// WatchPermission subscribes fn to permission changes and returns a
	// cancel func. Platforms without change notification return a no-op
	// cancel and never call fn.
	WatchPermission(fn func(PermissionState)) (cancel func(), err error)
	// GetVideoStream acquires a stream. Failures should be *Error values
	// so the session can distinguish denial from missing hardware.
	GetVideoStream(ctx context.Context, c Constraints) (Stream, error)
}

// RenderSurface is where the live stream is shown: a preview fan-out, a
// test recorder. Attach is called once per acquired stream, Detach on stop.
type RenderSurface interface {
	Attach(Stream)
	Detach()
}

// NopSurface discards the preview. Useful for headless capture and tests.
type NopSurface struct{}

func (NopSurface) Attach(Stream) {}
func (NopSurface) Detach()       {}

// stopTracks releases every hardware track of a stream.
func stopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
