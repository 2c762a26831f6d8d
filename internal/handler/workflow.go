package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"audit-capture/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CreateWorkflowRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Plant   string `json:"plant"`
	Auditor string `json:"auditor"`
}

type WorkflowResponse struct {
	Workflow models.WorkflowRecord `json:"workflow"`
	Sets     []SetResponse         `json:"sets"`
}

type SetResponse struct {
	ID            string    `json:"id"`
	Area          string    `json:"area"`
	Levantamiento string    `json:"levantamiento"`
	Gerencia      string    `json:"gerencia"`
	Status        string    `json:"status"`
	PhotoURLs     []string  `json:"photo_urls"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.WorkflowKind(req.Kind)
	if kind != models.WorkflowKindAudit && kind != models.WorkflowKindBloqueo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be audit or bloqueo"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	wf, err := h.records.CreateWorkflow(ctx, kind, req.Title, req.Plant, req.Auditor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create workflow: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, wf)
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workflow ID format"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	cacheKey := fmt.Sprintf("workflow:%s", workflowID)

	// Check Redis cache first
	cachedData, err := h.redisClient.Get(ctx, cacheKey)
	if err == nil {
		var response WorkflowResponse
		if err := json.Unmarshal([]byte(cachedData), &response); err == nil {
			// Regenerate presigned URLs (they expire)
			h.refreshLinks(ctx, &response)
			c.JSON(http.StatusOK, response)
			return
		}
	}

	// Cache miss - query PostgreSQL
	response, ok := h.loadWorkflow(ctx, c, workflowID)
	if !ok {
		return
	}

	// Cache the result in Redis (TTL: 10 minutes)
	responseBytes, _ := json.Marshal(response)
	_ = h.redisClient.Set(ctx, cacheKey, string(responseBytes), 10*time.Minute)

	h.refreshLinks(ctx, &response)
	c.JSON(http.StatusOK, response)
}

func (h *Handler) loadWorkflow(ctx context.Context, c *gin.Context, workflowID uuid.UUID) (WorkflowResponse, bool) {
	wf, err := h.records.GetWorkflow(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return WorkflowResponse{}, false
	}

	sets, err := h.records.ListSets(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load sets: %v", err)})
		return WorkflowResponse{}, false
	}

	response := WorkflowResponse{Workflow: wf, Sets: make([]SetResponse, 0, len(sets))}
	for _, s := range sets {
		response.Sets = append(response.Sets, SetResponse{
			ID:            s.ID.String(),
			Area:          s.Area,
			Levantamiento: s.Levantamiento,
			Gerencia:      s.Gerencia,
			Status:        string(s.Status),
			PhotoURLs:     s.FotoURLs,
			CreatedAt:     s.CreatedAt,
		})
	}
	return response, true
}

// refreshLinks swaps stored object names for fresh presigned URLs on
// uploaded sets. Cached entries keep object names, not stale links.
func (h *Handler) refreshLinks(ctx context.Context, response *WorkflowResponse) {
	for si := range response.Sets {
		set := &response.Sets[si]
		if set.Status != string(models.PhotoSetStatusUploaded) && set.Status != string(models.PhotoSetStatusPartial) {
			continue
		}
		links := make([]string, len(set.PhotoURLs))
		for i, object := range set.PhotoURLs {
			if object == "" {
				continue
			}
			if link, err := h.uploads.Link(ctx, object); err == nil {
				links[i] = link
			}
		}
		set.PhotoURLs = links
	}
}

// FinalizeWorkflow queues the upload of every staged set. The photos stay
// staged until the worker succeeds, so finalize is retryable without
// recapturing anything.
func (h *Handler) FinalizeWorkflow(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workflow ID format"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	wf, err := h.records.GetWorkflow(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	if err := h.records.SetWorkflowStatus(ctx, workflowID, models.WorkflowStatusUploading); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to update workflow: %v", err)})
		return
	}

	msgBytes, err := json.Marshal(TaskMessage{WorkflowID: workflowID.String()})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task message"})
		return
	}
	if err := h.rabbitClient.Publish(msgBytes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to publish message: %v", err)})
		return
	}

	_ = h.redisClient.Delete(ctx, fmt.Sprintf("workflow:%s", workflowID))

	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id":      workflowID.String(),
		"correlation_code": wf.CorrelationCode,
		"status":           string(models.WorkflowStatusUploading),
		"message":          "Workflow queued for upload",
	})
}
