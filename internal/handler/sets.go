package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"audit-capture/internal/models"
	"audit-capture/internal/record"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const MaxUploadSize = 10 << 20 // 10MB per request

// AddSet stages one committed photo set: the raw photo bytes go to the
// staging bucket and the set row lands in Postgres as staged. Durable
// uploads happen later, on finalize.
func (h *Handler) AddSet(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workflow ID format"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)
	if err := c.Request.ParseMultipartForm(MaxUploadSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse multipart form"})
		return
	}

	area := strings.TrimSpace(c.PostForm("area"))
	if area == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The area name is required"})
		return
	}

	files := c.Request.MultipartForm.File["photos"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one photo is required"})
		return
	}
	if len(files) > models.MaxPhotosPerSet {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("A set holds at most %d photos", models.MaxPhotosPerSet)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	wf, err := h.records.GetWorkflow(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	existing, err := h.records.ListSets(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load sets: %v", err)})
		return
	}

	set := models.PhotoSet{
		ID:            uuid.New(),
		WorkflowID:    workflowID,
		Area:          uniqueArea(area, existing),
		Levantamiento: c.PostForm("levantamiento"),
		Gerencia:      c.PostForm("gerencia"),
		Status:        models.PhotoSetStatusStaged,
		CreatedAt:     time.Now(),
	}

	staged := make([]string, 0, len(files))
	for _, fh := range files {
		file, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo from request"})
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo from request"})
			return
		}

		photo := models.CapturedPhoto{ID: uuid.New(), CapturedAt: time.Now()}
		object, err := h.uploads.Stage(ctx, wf.CorrelationCode, photo, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to stage photo: %v", err)})
			return
		}
		staged = append(staged, object)
	}

	if err := h.records.AddSets(ctx, []models.PhotoSet{set}, map[uuid.UUID][]string{set.ID: staged}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save set: %v", err)})
		return
	}

	_ = h.redisClient.Delete(ctx, fmt.Sprintf("workflow:%s", workflowID))

	c.JSON(http.StatusCreated, SetResponse{
		ID:            set.ID.String(),
		Area:          set.Area,
		Levantamiento: set.Levantamiento,
		Gerencia:      set.Gerencia,
		Status:        string(set.Status),
		CreatedAt:     set.CreatedAt,
	})
}

// DeleteSet removes a staged set before finalize.
func (h *Handler) DeleteSet(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workflow ID format"})
		return
	}
	setID, err := uuid.Parse(c.Param("setID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid set ID format"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.records.DeleteSet(ctx, setID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete set: %v", err)})
		return
	}
	_ = h.redisClient.Delete(ctx, fmt.Sprintf("workflow:%s", workflowID))
	c.Status(http.StatusNoContent)
}

// uniqueArea appends " (n)" when the label already exists in this
// workflow, mirroring how the capture core disambiguates on commit.
func uniqueArea(area string, existing []record.StoredSet) string {
	taken := func(candidate string) bool {
		for _, s := range existing {
			if s.Area == candidate {
				return true
			}
		}
		return false
	}
	if !taken(area) {
		return area
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", area, n)
		if !taken(candidate) {
			return candidate
		}
	}
}
