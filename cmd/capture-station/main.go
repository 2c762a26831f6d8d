package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"audit-capture/internal/camera"
	"audit-capture/internal/models"
	"audit-capture/internal/photoset"
	"audit-capture/internal/preview"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

// The capture station is the on-floor half of the system: it runs the
// camera session and photo-set manager locally, mirrors the live stream to
// websocket viewers, and pushes each committed set to the API server.

type stationConfig struct {
	ListenAddr string `envconfig:"STATION_ADDR" default:":8090"`
	APIBase    string `envconfig:"API_BASE" default:"http://localhost:8081/api/v1"`
	APIToken   string `envconfig:"API_TOKEN" default:""`
	WorkflowID string `envconfig:"WORKFLOW_ID" default:""`
}

type station struct {
	cfg     stationConfig
	session *camera.Session
	capture *camera.CaptureService
	manager *photoset.Manager
	hub     *preview.Hub
	client  *http.Client
}

func main() {
	log.Println("Starting Capture Station...")

	var cfg stationConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.WorkflowID == "" {
		log.Fatalf("WORKFLOW_ID is required: create a workflow on the API server first")
	}

	hub := preview.NewHub()
	devices := camera.NewVirtualDevices(1280, 720)
	session := camera.NewSession(devices, hub)
	session.Notify = func(msg string) { log.Printf("notice: %s", msg) }
	defer session.Close()

	manager := photoset.NewManager(photoset.NewMemoryStore(), photoset.AutoDeleteEmptySet)
	manager.Notify = func(msg string) { log.Printf("notice: %s", msg) }
	defer manager.Close()

	st := &station{
		cfg:     cfg,
		session: session,
		capture: camera.NewCaptureService(),
		manager: manager,
		hub:     hub,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	r := newStationRouter(st)

	log.Printf("Capture Station listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Station stopped: %v", err)
	}
}

func newStationRouter(st *station) *gin.Engine {
	r := gin.Default()
	r.GET("/ws/preview", func(c *gin.Context) { st.hub.ServeWS(c.Writer, c.Request) })
	r.POST("/camera/start", st.startCamera)
	r.POST("/camera/stop", st.stopCamera)
	r.GET("/camera/state", st.cameraState)
	r.POST("/capture", st.capturePhoto)
	r.POST("/buffer", st.updateBuffer)
	r.DELETE("/photos/:id", st.removePhoto)
	r.POST("/commit", st.commitSet)
	r.GET("/sets", st.listSets)
	r.POST("/sets/:id/push", st.pushRetainedSet)
	return r
}

func (st *station) startCamera(c *gin.Context) {
	var req struct {
		Area string `json:"area" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The area name is required before starting the camera"})
		return
	}
	if err := st.session.Start(c.Request.Context(), req.Area); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": string(st.session.State())})
		return
	}
	st.manager.SetArea(req.Area)
	c.JSON(http.StatusOK, gin.H{"state": string(st.session.State())})
}

func (st *station) stopCamera(c *gin.Context) {
	st.session.Stop()
	c.JSON(http.StatusOK, gin.H{"state": string(st.session.State())})
}

func (st *station) cameraState(c *gin.Context) {
	perm, err := st.session.CheckPermission(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":      string(st.session.State()),
		"permission": string(perm),
		"area":       st.session.Label(),
		"buffered":   st.manager.BufferCount(),
	})
}

func (st *station) capturePhoto(c *gin.Context) {
	photo, data, err := st.capture.Capture(st.session.Stream(), st.manager.BufferCount())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err := st.manager.AddPhoto(photo, data); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"photo_id": photo.ID.String(), "buffered": st.manager.BufferCount()})
}

func (st *station) updateBuffer(c *gin.Context) {
	var req struct {
		Levantamiento *string `json:"levantamiento"`
		Gerencia      *string `json:"gerencia"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Levantamiento != nil {
		st.manager.SetLevantamiento(*req.Levantamiento)
	}
	if req.Gerencia != nil {
		st.manager.SetGerencia(*req.Gerencia)
	}
	c.Status(http.StatusNoContent)
}

func (st *station) removePhoto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID format"})
		return
	}
	if err := st.manager.RemovePhoto(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (st *station) commitSet(c *gin.Context) {
	set, err := st.manager.CommitSet()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	// Push to the backend; on failure the set stays local for retry, the
	// captures are never discarded.
	if err := st.pushSet(c.Request.Context(), set); err != nil {
		log.Printf("push of area %q failed, set kept locally: %v", set.Area, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  fmt.Sprintf("Saved locally but not uploaded: %v", err),
			"set_id": set.ID.String(),
			"area":   set.Area,
		})
		return
	}

	if err := st.manager.DeleteSet(set.ID); err != nil {
		log.Printf("failed to drop pushed set %s: %v", set.ID, err)
	}
	c.JSON(http.StatusCreated, gin.H{"set_id": set.ID.String(), "area": set.Area, "photos": len(set.Photos)})
}

// pushRetainedSet re-sends a committed set that an earlier push failed to
// deliver. The photos come from the local store; nothing is recaptured.
func (st *station) pushRetainedSet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid set ID format"})
		return
	}

	var target *models.PhotoSet
	for _, s := range st.manager.Sets() {
		if s.ID == id {
			set := s
			target = &set
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Set not found"})
		return
	}

	if err := st.pushSet(c.Request.Context(), *target); err != nil {
		log.Printf("push of area %q failed, set kept locally: %v", target.Area, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Push failed, set kept locally: %v", err)})
		return
	}

	if err := st.manager.DeleteSet(target.ID); err != nil {
		log.Printf("failed to drop pushed set %s: %v", target.ID, err)
	}
	c.JSON(http.StatusCreated, gin.H{"set_id": target.ID.String(), "area": target.Area, "photos": len(target.Photos)})
}

func (st *station) listSets(c *gin.Context) {
	sets := st.manager.Sets()
	out := make([]gin.H, 0, len(sets))
	for _, s := range sets {
		out = append(out, gin.H{
			"id":            s.ID.String(),
			"area":          s.Area,
			"levantamiento": s.Levantamiento,
			"gerencia":      s.Gerencia,
			"photos":        len(s.Photos),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (st *station) pushSet(ctx context.Context, set models.PhotoSet) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	_ = form.WriteField("area", set.Area)
	_ = form.WriteField("levantamiento", set.Levantamiento)
	_ = form.WriteField("gerencia", set.Gerencia)

	for i, photo := range set.Photos {
		data, ok := st.manager.PhotoData(photo)
		if !ok {
			return fmt.Errorf("photo %s has no local data", photo.ID)
		}
		part, err := form.CreateFormFile("photos", fmt.Sprintf("photo_%d.jpg", i+1))
		if err != nil {
			return fmt.Errorf("failed to build form: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("failed to write photo: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to finish form: %w", err)
	}

	url := fmt.Sprintf("%s/workflows/%s/sets", st.cfg.APIBase, st.cfg.WorkflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if st.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+st.cfg.APIToken)
	}

	resp, err := st.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server rejected set: %s: %s", resp.Status, msg)
	}
	return nil
}
