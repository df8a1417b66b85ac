package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/prepy-voice/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// Prober checks a remote dependency.
type Prober interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	chat    Prober
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. chat may be nil.
func NewHealthHandler(repo store.Repository, chat Prober, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	return &HealthHandler{repo: repo, chat: chat, timeout: timeout}
}

// Health returns the health status of the API and its dependencies. An
// unreachable database makes the service unavailable; an unreachable chat
// service only degrades it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.chat != nil {
		if err := h.chat.Health(ctx); err != nil {
			slog.Warn("Chat service health check failed", "error", err)
			checks["chat"] = "unreachable"
			status = "degraded"
		} else {
			checks["chat"] = "ok"
		}
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
