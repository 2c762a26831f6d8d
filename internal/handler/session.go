package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"audit-capture/internal/session"

	"github.com/gin-gonic/gin"
)

// The capture screens push their in-progress photo list here on every
// mutation and pull it back on load, so a dropped session mid-plant-walk
// never loses captures.

func sessionUser(c *gin.Context) string {
	if user, ok := c.Get("user"); ok {
		if name, ok := user.(string); ok && name != "" {
			return name
		}
	}
	return "anonymous"
}

func (h *Handler) SaveSession(c *gin.Context) {
	var snap session.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.sessions.Save(ctx, sessionUser(c), c.Param("id"), snap); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save session: %v", err)})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) LoadSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	snap, ok, err := h.sessions.Load(ctx, sessionUser(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load session: %v", err)})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session in progress"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) ClearSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.sessions.Clear(ctx, sessionUser(c), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to clear session: %v", err)})
		return
	}
	c.Status(http.StatusNoContent)
}
