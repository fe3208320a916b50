package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/supportdesk/internal/health"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	res := h.checker.Check(r.Context())
	status := http.StatusOK
	if !res.Healthy() {
		slog.Error("Health check failed", "checks", res.Checks)
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, res)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
