package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"audit-capture/internal/models"
	"audit-capture/internal/photoset"
	"audit-capture/internal/preview"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// A committed set the backend rejected must stay pushable from its local
// copy; the user never recaptures the photos.
func TestRetainedSetPushableWithoutRecapture(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var fail atomic.Bool
	fail.Store(true)
	var pushedPhotos atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pushedPhotos.Add(int32(len(r.MultipartForm.File["photos"])))
		w.WriteHeader(http.StatusCreated)
	}))
	defer api.Close()

	manager := photoset.NewManager(photoset.NewMemoryStore(), photoset.AutoDeleteEmptySet)
	defer manager.Close()

	st := &station{
		cfg:     stationConfig{APIBase: api.URL, WorkflowID: uuid.NewString()},
		manager: manager,
		hub:     preview.NewHub(),
		client:  api.Client(),
	}
	router := newStationRouter(st)

	manager.SetArea("Línea 1")
	photo := models.CapturedPhoto{ID: uuid.New(), CapturedAt: time.Now()}
	if err := manager.AddPhoto(photo, []byte("jpeg-bytes")); err != nil {
		t.Fatalf("AddPhoto: %v", err)
	}

	// Commit while the backend is down: the set must survive locally.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/commit", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("commit with backend down: status %d, want %d", w.Code, http.StatusBadGateway)
	}
	sets := manager.Sets()
	if len(sets) != 1 {
		t.Fatalf("retained %d sets, want 1", len(sets))
	}

	// Backend recovers; the retained set is pushed again, not recaptured.
	fail.Store(false)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sets/"+sets[0].ID.String()+"/push", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("push of retained set: status %d, body %s", w.Code, w.Body.String())
	}
	if got := pushedPhotos.Load(); got != 1 {
		t.Fatalf("backend received %d photos, want 1", got)
	}
	if len(manager.Sets()) != 0 {
		t.Fatal("pushed set still retained locally")
	}

	// Pushing it twice cannot duplicate the set.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sets/"+sets[0].ID.String()+"/push", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("second push: status %d, want %d", w.Code, http.StatusNotFound)
	}
}
