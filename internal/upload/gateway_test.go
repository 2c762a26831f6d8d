package upload_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"audit-capture/internal/models"
	"audit-capture/internal/upload"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// fakeStore is an in-memory ObjectStorage with per-object failure
// injection and a configurable upload delay to shake out ordering bugs.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// failUploads matches staged object substrings whose re-upload fails.
	failUploads []string
	// delays maps a staged object substring to an artificial latency.
	delays map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), delays: make(map[string]time.Duration)}
}

func (f *fakeStore) key(bucket, object string) string { return bucket + "/" + object }

func (f *fakeStore) UploadFile(ctx context.Context, bucket, object string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	for _, fail := range f.failUploads {
		if strings.Contains(object, fail) {
			return minio.UploadInfo{}, fmt.Errorf("injected upload failure for %s", object)
		}
	}
	f.mu.Lock()
	f.objects[f.key(bucket, object)] = data
	f.mu.Unlock()
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(data))}, nil
}

func (f *fakeStore) DownloadFile(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	for sub, d := range f.delays {
		if strings.Contains(object, sub) {
			time.Sleep(d)
		}
	}
	f.mu.Lock()
	data, ok := f.objects[f.key(bucket, object)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", object)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) GetFileLink(ctx context.Context, bucket, object string, expires time.Duration) (string, error) {
	return "https://minio.local/" + f.key(bucket, object) + "?sig=test", nil
}

func (f *fakeStore) RemoveFile(ctx context.Context, bucket, object string) error {
	f.mu.Lock()
	delete(f.objects, f.key(bucket, object))
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) has(bucket, object string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[f.key(bucket, object)]
	return ok
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func stageSet(t *testing.T, g *upload.Gateway, code string, photos ...[]byte) []string {
	t.Helper()
	staged := make([]string, 0, len(photos))
	for _, data := range photos {
		object, err := g.Stage(context.Background(), code, models.CapturedPhoto{ID: uuid.New()}, data)
		if err != nil {
			t.Fatalf("Stage: %v", err)
		}
		staged = append(staged, object)
	}
	return staged
}

func TestUploadStagedSetPreservesCaptureOrder(t *testing.T) {
	store := newFakeStore()
	g := upload.NewGateway(store, "staging", "photos")

	// Three distinguishable photos, with the first one slowest so a
	// completion-order bug would scramble the result.
	staged := stageSet(t, g, "AUD-20260829-AB12CD",
		encodeJPEG(t, 100, 80), encodeJPEG(t, 200, 150), encodeJPEG(t, 300, 220))
	store.delays[staged[0]] = 50 * time.Millisecond
	store.delays[staged[1]] = 10 * time.Millisecond

	result := g.UploadStagedSet(context.Background(), "AUD-20260829-AB12CD", "Línea 1", staged)
	if result.Failed != 0 {
		t.Fatalf("failed = %d, want 0", result.Failed)
	}
	if len(result.Objects) != 3 {
		t.Fatalf("objects = %d, want 3", len(result.Objects))
	}
	for i, object := range result.Objects {
		if object == "" {
			t.Fatalf("slot %d is empty", i)
		}
		if !strings.HasSuffix(object, fmt.Sprintf("_%d.jpg", i)) {
			t.Fatalf("slot %d holds %q; capture order was not preserved", i, object)
		}
		if !store.has("photos", object) {
			t.Fatalf("durable object %q missing", object)
		}
	}

	// Staged copies are cleaned up after a full success.
	for _, object := range staged {
		if store.has("staging", object) {
			t.Fatalf("staged object %q not removed", object)
		}
	}
}

func TestUploadStagedSetPartialFailure(t *testing.T) {
	store := newFakeStore()
	g := upload.NewGateway(store, "staging", "photos")

	staged := stageSet(t, g, "BLQ-20260829-FF0011",
		encodeJPEG(t, 100, 80), encodeJPEG(t, 100, 80), encodeJPEG(t, 100, 80))
	// The durable object of capture #2 carries index suffix _1.
	store.failUploads = []string{"_1.jpg"}

	result := g.UploadStagedSet(context.Background(), "BLQ-20260829-FF0011", "Cámara 3", staged)
	if result.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Failed)
	}
	if result.Objects[0] == "" || result.Objects[2] == "" {
		t.Fatalf("sibling uploads were aborted: %v", result.Objects)
	}
	if result.Objects[1] != "" {
		t.Fatalf("failed slot not empty: %q", result.Objects[1])
	}
	if got := result.Saved(); got != "2/3 photos saved" {
		t.Fatalf("Saved() = %q, want \"2/3 photos saved\"", got)
	}

	// The failed photo's staged copy survives for a retry.
	if !store.has("staging", staged[1]) {
		t.Fatal("staged copy of the failed photo was removed")
	}
}

func TestRetryStagedSetFillsOnlyEmptySlots(t *testing.T) {
	store := newFakeStore()
	g := upload.NewGateway(store, "staging", "photos")

	staged := stageSet(t, g, "AUD-20260829-CC55EE",
		encodeJPEG(t, 100, 80), encodeJPEG(t, 100, 80), encodeJPEG(t, 100, 80))
	store.failUploads = []string{"_1.jpg"}

	first := g.UploadStagedSet(context.Background(), "AUD-20260829-CC55EE", "Bodega", staged)
	if first.Failed != 1 {
		t.Fatalf("first pass failed = %d, want 1", first.Failed)
	}

	// The transient fault clears; a second finalize must finish the set
	// from the retained staged copy without touching the uploaded slots.
	// Their staged copies are already gone, so a re-attempt would fail.
	store.failUploads = nil
	second := g.RetryStagedSet(context.Background(), "AUD-20260829-CC55EE", "Bodega", staged, first.Objects)
	if second.Failed != 0 {
		t.Fatalf("retry failed = %d, want 0", second.Failed)
	}
	if second.Objects[0] != first.Objects[0] || second.Objects[2] != first.Objects[2] {
		t.Fatalf("uploaded slots changed on retry: %v -> %v", first.Objects, second.Objects)
	}
	if second.Objects[1] == "" {
		t.Fatal("failed slot still empty after retry")
	}
	if !store.has("photos", second.Objects[1]) {
		t.Fatalf("durable object %q missing after retry", second.Objects[1])
	}
	if store.has("staging", staged[1]) {
		t.Fatal("staged copy not cleaned up after successful retry")
	}
}

func TestShrinkFitsWithinBounds(t *testing.T) {
	data, err := upload.Shrink(encodeJPEG(t, 1600, 1200))
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode shrunk: %v", err)
	}
	if cfg.Width > upload.MaxWidth || cfg.Height > upload.MaxHeight {
		t.Fatalf("shrunk to %dx%d, want within %dx%d", cfg.Width, cfg.Height, upload.MaxWidth, upload.MaxHeight)
	}
}

func TestShrinkNeverUpscales(t *testing.T) {
	data, err := upload.Shrink(encodeJPEG(t, 320, 240))
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode shrunk: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Fatalf("small photo was rescaled to %dx%d", cfg.Width, cfg.Height)
	}
}

func TestObjectNameLayout(t *testing.T) {
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	got := upload.ObjectName("AUD-20260829-AB12CD", "Línea 1 (2)", ts, 1)
	want := fmt.Sprintf("AUD-20260829-AB12CD/Línea_1_2_%d_1.jpg", ts.UnixMilli())
	if got != want {
		t.Fatalf("ObjectName = %q, want %q", got, want)
	}
	if strings.ContainsAny(strings.TrimPrefix(got, "AUD-20260829-AB12CD/"), " ()") {
		t.Fatalf("label not sanitized: %q", got)
	}
}
