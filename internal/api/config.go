package api

import (
	"net/http"

	"github.com/ashureev/prepy-voice/internal/conversation"
	"github.com/ashureev/prepy-voice/internal/turn"
	"github.com/ashureev/prepy-voice/internal/voice"
	"github.com/go-chi/chi/v5"
)

// ConfigHandler exposes practice limits and timings to the client.
type ConfigHandler struct {
	reviewPath string
	policy     voice.RetryPolicy
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(reviewPath string) *ConfigHandler {
	return &ConfigHandler{reviewPath: reviewPath, policy: voice.DefaultRetryPolicy()}
}

// RegisterRoutes registers the config route.
func (h *ConfigHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
}

// GetConfig returns the practice configuration for the frontend.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"max_turns":            conversation.MaxTurns,
		"review_path":          h.reviewPath,
		"debounce_ms":          voice.DebounceDelay.Milliseconds(),
		"startup_delay_ms":     turn.StartupDelay.Milliseconds(),
		"fallback_speech_ms":   voice.FallbackDuration.Milliseconds(),
		"restart_delay_ms":     h.policy.AutoRestart.Milliseconds(),
		"no_speech_retry_ms":   h.policy.NoSpeech.Milliseconds(),
		"network_retry_ms":     h.policy.Network.Milliseconds(),
		"restart_max_attempts": h.policy.MaxAttempts,
	})
}
