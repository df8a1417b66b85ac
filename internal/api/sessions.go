package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/prepy-voice/internal/conversation"
	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SessionHandler serves live practice records and review handoffs.
type SessionHandler struct {
	*Handler
	now func() time.Time
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base, now: time.Now}
}

// RegisterRoutes registers session and review routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{id}", h.GetSession)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Get("/reviews/{id}", h.GetReview)
	})
}

type createSessionRequest struct {
	SessionData domain.SessionData `json:"session_data"`
	History     []domain.Message   `json:"history,omitempty"`
}

type sessionResponse struct {
	SessionID   string             `json:"session_id"`
	SessionData domain.SessionData `json:"session_data"`
	History     []domain.Message   `json:"history"`
	Turns       int                `json:"turns"`
	MaxTurns    int                `json:"max_turns"`
	Live        bool               `json:"live"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// GetMe returns the current candidate's information.
func (h *SessionHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	candidate, err := h.repo.GetCandidate(r.Context(), userID)
	if err != nil || candidate == nil {
		Error(w, http.StatusUnauthorized, "candidate not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      candidate.UserID,
		"display_name": candidate.DisplayName,
	})
}

// CreateSession stores the bootstrap record of a new practice session.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SessionData.SystemPrompt) == "" {
		Error(w, http.StatusBadRequest, "session_data.system_prompt is required")
		return
	}
	if err := domain.ValidateHistory(req.History); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if conversation.TurnsFor(req.History) > conversation.MaxTurns {
		Error(w, http.StatusBadRequest, "history exceeds the turn limit")
		return
	}

	now := h.now().UTC()
	ps := &domain.PracticeSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Data:      req.SessionData,
		History:   req.History,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ps.History == nil {
		ps.History = []domain.Message{}
	}
	if err := h.repo.CreatePracticeSession(r.Context(), ps); err != nil {
		h.logger.Error("Failed to create practice session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.logger.Info("Practice session created", "user_id", userID, "session_id", ps.ID, "job_role", ps.Data.JobRole)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": ps.ID,
		"created_at": ps.CreatedAt,
	})
}

// GetSession returns the caller's live record.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sessionResponse{
		SessionID:   ps.ID,
		SessionData: ps.Data,
		History:     ps.History,
		Turns:       conversation.TurnsFor(ps.History),
		MaxTurns:    conversation.MaxTurns,
		Live:        h.sm != nil && h.sm.Active(ps.ID),
		CreatedAt:   ps.CreatedAt,
		UpdatedAt:   ps.UpdatedAt,
	})
}

// DeleteSession abandons the caller's live record without a review.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	if h.sm != nil {
		h.sm.Close(ps.ID)
	}
	if err := h.repo.DeletePracticeSession(r.Context(), ps.ID); err != nil {
		h.logger.Error("Failed to delete practice session", "error", err, "session_id", ps.ID)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	h.logger.Info("Practice session abandoned", "user_id", ps.UserID, "session_id", ps.ID)
	w.WriteHeader(http.StatusNoContent)
}

// GetReview returns the caller's review handoff.
func (h *SessionHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	review, err := h.repo.GetReview(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load review", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to load review")
		return
	}
	if review == nil || review.UserID != userID {
		Error(w, http.StatusNotFound, "review not found")
		return
	}
	JSON(w, http.StatusOK, review)
}

func (h *SessionHandler) ownedSession(w http.ResponseWriter, r *http.Request) (*domain.PracticeSession, bool) {
	userID := identity.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ps, err := h.repo.GetPracticeSession(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load practice session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	if ps == nil || ps.UserID != userID {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return ps, true
}
