package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"audit-capture/internal/report"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetReport assembles and streams the workflow's PDF report. Sets that
// never finished uploading still appear; their failed photos are marked
// unavailable rather than dropped.
func (h *Handler) GetReport(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workflow ID format"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	wf, err := h.records.GetWorkflow(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	sets, err := h.records.ListSets(ctx, workflowID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load sets: %v", err)})
		return
	}

	sections := make([]report.Section, 0, len(sets))
	for _, s := range sets {
		sections = append(sections, report.Section{
			Area:          s.Area,
			Levantamiento: s.Levantamiento,
			Gerencia:      s.Gerencia,
			PhotoObjects:  s.FotoURLs,
		})
	}

	pdf, err := h.assembler.Render(ctx, wf, sections)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to render report: %v", err)})
		return
	}

	filename := report.Filename(wf)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
