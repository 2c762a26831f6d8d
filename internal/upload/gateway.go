package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"audit-capture/internal/models"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"
)

const (
	// Photos are shrunk to fit 800x600 before the durable upload. Capture
	// keeps native dimensions; this is the only place that resizes.
	MaxWidth  = 800
	MaxHeight = 600
	Quality   = 80

	// LinkExpiry is how long presigned photo links stay valid.
	LinkExpiry = 15 * time.Minute
)

// ObjectStorage is the slice of the object store the gateway needs.
// *minioclient.Client satisfies it.
type ObjectStorage interface {
	UploadFile(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error)
	DownloadFile(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error)
	GetFileLink(ctx context.Context, bucketName, objectName string, expires time.Duration) (string, error)
	RemoveFile(ctx context.Context, bucketName, objectName string) error
}

// PhotoResult is the outcome for one photo, at its original capture index.
type PhotoResult struct {
	Index  int
	Object string
	Err    error
}

// SetResult reports a whole set's upload. Objects holds durable object
// names in capture order; a failed photo keeps its slot as "".
type SetResult struct {
	Objects []string
	Failed  int
}

// Saved formats the user-visible outcome, e.g. "2/3 photos saved".
func (r SetResult) Saved() string {
	return fmt.Sprintf("%d/%d photos saved", len(r.Objects)-r.Failed, len(r.Objects))
}

// Gateway owns the resize/recompression policy and the storage layout for
// photo uploads. Paths are namespaced by the workflow's correlation code.
type Gateway struct {
	store         ObjectStorage
	stagingBucket string
	photoBucket   string
}

func NewGateway(store ObjectStorage, stagingBucket, photoBucket string) *Gateway {
	return &Gateway{store: store, stagingBucket: stagingBucket, photoBucket: photoBucket}
}

// Stage writes raw photo bytes to the staging bucket, untouched, so a
// later persist retry never needs the user to recapture. Returns the
// staged object name.
func (g *Gateway) Stage(ctx context.Context, correlationCode string, photo models.CapturedPhoto, data []byte) (string, error) {
	objectName := fmt.Sprintf("%s/staged/%s.jpg", correlationCode, photo.ID)
	_, err := g.store.UploadFile(ctx, g.stagingBucket, objectName, bytes.NewReader(data), int64(len(data)), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to stage photo %s: %w", photo.ID, err)
	}
	return objectName, nil
}

// UploadStagedSet moves a set's staged photos to their durable objects:
// download, shrink to fit, re-upload under correlationCode/label_timestamp.
// Uploads start in capture order and are awaited concurrently; results are
// zipped back by original index, never by completion order. One failed
// photo does not abort its siblings.
func (g *Gateway) UploadStagedSet(ctx context.Context, correlationCode, area string, stagedObjects []string) SetResult {
	return g.RetryStagedSet(ctx, correlationCode, area, stagedObjects, nil)
}

// RetryStagedSet re-attempts only the slots with no durable object yet.
// existing holds the durable object names of a previous attempt,
// index-aligned with stagedObjects; slots already uploaded keep their
// name untouched, so a finalize after a partial failure finishes the set
// from its staged copies.
func (g *Gateway) RetryStagedSet(ctx context.Context, correlationCode, area string, stagedObjects, existing []string) SetResult {
	result := SetResult{Objects: make([]string, len(stagedObjects))}
	results := make(chan PhotoResult, len(stagedObjects))

	var wg sync.WaitGroup
	for i, staged := range stagedObjects {
		if i < len(existing) && existing[i] != "" {
			result.Objects[i] = existing[i]
			continue
		}
		wg.Add(1)
		go func(index int, stagedObject string) {
			defer wg.Done()
			object, err := g.uploadOne(ctx, correlationCode, area, index, stagedObject)
			results <- PhotoResult{Index: index, Object: object, Err: err}
		}(i, staged)
	}
	wg.Wait()
	close(results)

	for r := range results {
		if r.Err != nil {
			log.Printf("upload: photo %d of area %q failed: %v", r.Index+1, area, r.Err)
			result.Failed++
			continue
		}
		result.Objects[r.Index] = r.Object
	}
	return result
}

func (g *Gateway) uploadOne(ctx context.Context, correlationCode, area string, index int, stagedObject string) (string, error) {
	obj, err := g.store.DownloadFile(ctx, g.stagingBucket, stagedObject)
	if err != nil {
		return "", fmt.Errorf("failed to download staged photo: %w", err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read staged photo: %w", err)
	}

	shrunk, err := Shrink(raw)
	if err != nil {
		return "", err
	}

	objectName := ObjectName(correlationCode, area, time.Now(), index)
	_, err = g.store.UploadFile(ctx, g.photoBucket, objectName, bytes.NewReader(shrunk), int64(len(shrunk)), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}

	// Staged copy is no longer needed; losing this cleanup is harmless.
	if err := g.store.RemoveFile(ctx, g.stagingBucket, stagedObject); err != nil {
		log.Printf("upload: failed to remove staged object %s: %v", stagedObject, err)
	}
	return objectName, nil
}

// Link presigns a durable photo object for report embedding or API reads.
func (g *Gateway) Link(ctx context.Context, objectName string) (string, error) {
	return g.store.GetFileLink(ctx, g.photoBucket, objectName, LinkExpiry)
}

// Fetch downloads a durable photo object.
func (g *Gateway) Fetch(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := g.store.DownloadFile(ctx, g.photoBucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to download photo: %w", err)
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Shrink decodes a photo and re-encodes it as JPEG fitting MaxWidth x
// MaxHeight. Smaller photos are re-encoded without scaling up.
func Shrink(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode photo: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxWidth || bounds.Dy() > MaxHeight {
		img = imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectName builds the durable path correlationCode/label_timestamp. The
// capture index keeps two photos of the same area in the same millisecond
// from colliding.
func ObjectName(correlationCode, area string, ts time.Time, index int) string {
	return fmt.Sprintf("%s/%s_%d_%d.jpg", correlationCode, sanitizeLabel(area), ts.UnixMilli(), index)
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", "(", "", ")", "")
	return replacer.Replace(label)
}
