package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recuento/internal/storage/sqlite"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db *sqlite.DB
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *sqlite.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Live reports process liveness.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether local storage is usable. The remote store is
// deliberately excluded: the engine is designed to run degraded without it.
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
