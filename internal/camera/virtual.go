package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// VirtualDevices is a MediaDevices backed by no hardware: permission is
// always granted and streams produce synthetic frames. It drives capture
// stations that have no physical camera attached, and tests.
type VirtualDevices struct {
	Width  int
	Height int

	mu       sync.Mutex
	watchers []func(PermissionState)
}

func NewVirtualDevices(width, height int) *VirtualDevices {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &VirtualDevices{Width: width, Height: height}
}

func (v *VirtualDevices) QueryPermission(ctx context.Context) (PermissionState, error) {
	return PermissionGranted, nil
}

func (v *VirtualDevices) WatchPermission(fn func(PermissionState)) (func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.watchers = append(v.watchers, fn)
	return func() {}, nil
}

func (v *VirtualDevices) GetVideoStream(ctx context.Context, c Constraints) (Stream, error) {
	stream := &virtualStream{width: v.Width, height: v.Height}
	stream.track = &virtualTrack{}
	return stream, nil
}

type virtualTrack struct {
	stopped atomic.Bool
}

func (t *virtualTrack) Stop() { t.stopped.Store(true) }

type virtualStream struct {
	width  int
	height int
	track  *virtualTrack
	frames atomic.Uint64
}

func (s *virtualStream) Tracks() []Track { return []Track{s.track} }

// Frame renders a moving gradient so the preview visibly updates.
func (s *virtualStream) Frame() (image.Image, error) {
	n := uint8(s.frames.Add(1))
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/s.width) + n,
				G: uint8(y * 255 / s.height),
				B: n,
				A: 255,
			})
		}
	}
	return img, nil
}
