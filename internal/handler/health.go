package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler. A nil Pinger is skipped.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	for name, ping := range h.checks {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			status[name] = "error"
			status["status"] = "degraded"
		} else {
			status[name] = "ok"
		}
	}

	if status["status"] == "degraded" {
		write(w, http.StatusServiceUnavailable, Envelope{
			StatusCode: http.StatusServiceUnavailable,
			Data:       status,
			Message:    "degraded",
		})
		return
	}
	JSON(w, http.StatusOK, status)
}
