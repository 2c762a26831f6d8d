package camera

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"audit-capture/internal/models"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// JPEGQuality matches the quality the capture flows have always used.
const JPEGQuality = 80

// FrameSource yields the current video frame. Stream satisfies it.
type FrameSource interface {
	Frame() (image.Image, error)
}

// CaptureService turns the current frame of a live stream into one encoded
// still image. It holds no state; the caller decides where the photo lives.
type CaptureService struct{}

func NewCaptureService() *CaptureService { return &CaptureService{} }

// Capture samples one frame and encodes it as JPEG at the stream's native
// dimensions. existingCount is the number of photos already in the target
// set; the limit is enforced here, before any frame work, so a full set
// costs nothing to re-check.
func (c *CaptureService) Capture(source FrameSource, existingCount int) (models.CapturedPhoto, []byte, error) {
	if existingCount >= models.MaxPhotosPerSet {
		return models.CapturedPhoto{}, nil, ErrCaptureLimit
	}
	if source == nil {
		return models.CapturedPhoto{}, nil, &Error{Kind: KindDeviceUnavailable, Err: fmt.Errorf("no active stream")}
	}

	frame, err := source.Frame()
	if err != nil {
		return models.CapturedPhoto{}, nil, classify(err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return models.CapturedPhoto{}, nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	bounds := frame.Bounds()
	photo := models.CapturedPhoto{
		ID:         uuid.New(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: time.Now(),
	}
	return photo, buf.Bytes(), nil
}
