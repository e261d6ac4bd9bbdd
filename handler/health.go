package handler

import (
	"net/http"
	"time"

	"github.com/akoun-dev/montoit-sub002/infra/response"
)

var startTime = time.Now()

// HealthHandler answers liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check processes GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "OK", map[string]any{
		"status": "healthy",
		"uptime": time.Since(startTime).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
