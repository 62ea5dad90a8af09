// Package handlers adapts HTTP requests to the forms services.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/formbricks/forms/internal/api/response"
)

// LiveSessionCounter reports how many sessions are held in memory.
type LiveSessionCounter interface {
	Len() int
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	sessions LiveSessionCounter
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(sessions LiveSessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}

// Status handles GET /v1/status with the number of live sessions.
func (h *HealthHandler) Status(w http.ResponseWriter, _ *http.Request) {
	live := 0
	if h.sessions != nil {
		live = h.sessions.Len()
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "live_sessions": live})
}
