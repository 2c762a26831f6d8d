package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the API surface. authMW is the Keycloak middleware and
// auditorMW the role gate for finalize/report; both are nil when auth is
// disabled for local development.
func NewRouter(h *Handler, authMW, auditorMW gin.HandlerFunc) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	if authMW != nil {
		api.Use(authMW)
	}
	if auditorMW == nil {
		auditorMW = func(c *gin.Context) { c.Next() }
	}

	api.POST("/workflows", h.CreateWorkflow)
	api.GET("/workflows/:id", h.GetWorkflow)
	api.POST("/workflows/:id/sets", h.AddSet)
	api.DELETE("/workflows/:id/sets/:setID", h.DeleteSet)
	api.POST("/workflows/:id/finalize", auditorMW, h.FinalizeWorkflow)
	api.GET("/workflows/:id/report", auditorMW, h.GetReport)

	api.PUT("/workflows/:id/session", h.SaveSession)
	api.GET("/workflows/:id/session", h.LoadSession)
	api.DELETE("/workflows/:id/session", h.ClearSession)

	return r
}
