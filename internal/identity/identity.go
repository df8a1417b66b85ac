// Package identity provides anonymous per-device candidate identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/store"
)

const (
	// AnonCookieName carries the candidate's anonymous id.
	AnonCookieName   = "prepy_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
	// touchInterval limits last_seen writes to one per interval per candidate.
	touchInterval = time.Minute
)

type contextKey int

const (
	userIDKey contextKey = iota
	displayNameKey
)

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// UserIDFromContext extracts the candidate ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// DisplayNameFromContext extracts the candidate display name.
func DisplayNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(displayNameKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying userID. Tests use it to bypass the
// cookie handshake.
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, displayNameKey, deriveDisplayName(userID))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveDisplayName(userID string) string {
	if len(userID) > 13 {
		return "candidate-" + userID[len(userID)-8:]
	}
	return "candidate"
}

func ensureCandidate(ctx context.Context, repo store.Repository, userID string) error {
	c, err := repo.GetCandidate(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	if c != nil {
		if c.IdleFor(now) < touchInterval {
			return nil
		}
		return repo.TouchCandidate(ctx, userID, now)
	}

	return repo.UpsertCandidate(ctx, &domain.Candidate{
		UserID:      userID,
		DisplayName: deriveDisplayName(userID),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Middleware injects the anonymous candidate identity, creating the candidate
// record on first sight.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureCandidate(r.Context(), repo, userID); err != nil {
				slog.Error("Failed to initialize candidate", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize candidate"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
