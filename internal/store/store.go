// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/prepy-voice/internal/domain"
)

// Repository defines the interface for persisting candidates, live practice
// sessions, and review handoffs.
type Repository interface {
	// GetCandidate retrieves a candidate by user ID. It returns nil, nil when
	// the candidate does not exist.
	GetCandidate(ctx context.Context, userID string) (*domain.Candidate, error)

	// UpsertCandidate creates or updates a candidate record.
	UpsertCandidate(ctx context.Context, candidate *domain.Candidate) error

	// TouchCandidate updates the last_seen_at timestamp for a candidate.
	TouchCandidate(ctx context.Context, userID string, lastSeen time.Time) error

	// CreatePracticeSession stores a new bootstrap record.
	CreatePracticeSession(ctx context.Context, session *domain.PracticeSession) error

	// GetPracticeSession retrieves a live record. It returns nil, nil when the
	// session does not exist.
	GetPracticeSession(ctx context.Context, sessionID string) (*domain.PracticeSession, error)

	// CheckpointHistory overwrites the history of a live record.
	CheckpointHistory(ctx context.Context, sessionID string, history []domain.Message) error

	// DeletePracticeSession removes a live record.
	DeletePracticeSession(ctx context.Context, sessionID string) error

	// CompleteSession stores the review and deletes the live record in one
	// transaction.
	CompleteSession(ctx context.Context, review *domain.Review) error

	// GetReview retrieves a review handoff. It returns nil, nil when absent.
	GetReview(ctx context.Context, sessionID string) (*domain.Review, error)

	// CleanupStaleSessions removes live records not updated within ttl.
	CleanupStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
