package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/shared"
	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a write targets a missing live record.
var ErrSessionNotFound = errors.New("practice session not found")

var _ Repository = (*SQLiteStore)(nil)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS candidates (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS practice_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_data_json TEXT NOT NULL,
		history_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_practice_sessions_updated ON practice_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS reviews (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		history_json TEXT NOT NULL,
		prep_type TEXT NOT NULL,
		job_role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetCandidate retrieves a candidate by their user ID.
func (s *SQLiteStore) GetCandidate(ctx context.Context, userID string) (*domain.Candidate, error) {
	query := `
		SELECT user_id, display_name, last_seen_at, created_at, updated_at
		FROM candidates WHERE user_id = ?`

	var c domain.Candidate
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&c.UserID, &c.DisplayName, &lastSeen, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan candidate row: %w", err)
	}

	c.LastSeenAt = time.Unix(lastSeen, 0)
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// UpsertCandidate creates or updates a candidate record.
func (s *SQLiteStore) UpsertCandidate(ctx context.Context, c *domain.Candidate) error {
	query := `
	INSERT INTO candidates (user_id, display_name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "upsert candidate", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			c.UserID, c.DisplayName, c.LastSeenAt.Unix(),
			c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert candidate: %w", err)
		}
		return nil
	})
}

// TouchCandidate updates the last_seen_at timestamp for a candidate.
func (s *SQLiteStore) TouchCandidate(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE candidates SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchCandidate affected 0 rows", "user_id", userID)
	}
	return nil
}

// CreatePracticeSession stores a new bootstrap record.
func (s *SQLiteStore) CreatePracticeSession(ctx context.Context, ps *domain.PracticeSession) error {
	dataJSON, err := json.Marshal(ps.Data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	historyJSON, err := marshalHistory(ps.History)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO practice_sessions (
			session_id, user_id, session_data_json, history_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, "create practice session", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			ps.ID, ps.UserID, string(dataJSON), historyJSON,
			ps.CreatedAt.Unix(), ps.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert practice session: %w", err)
		}
		return nil
	})
}

// GetPracticeSession retrieves a live record by session ID.
func (s *SQLiteStore) GetPracticeSession(ctx context.Context, sessionID string) (*domain.PracticeSession, error) {
	query := `
		SELECT session_id, user_id, session_data_json, history_json, created_at, updated_at
		FROM practice_sessions WHERE session_id = ?`

	var ps domain.PracticeSession
	var dataJSON, historyJSON string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&ps.ID, &ps.UserID, &dataJSON, &historyJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan practice session: %w", err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &ps.Data); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}
	if ps.History, err = unmarshalHistory(historyJSON); err != nil {
		return nil, err
	}
	ps.CreatedAt = time.Unix(createdAt, 0)
	ps.UpdatedAt = time.Unix(updatedAt, 0)
	return &ps, nil
}

// CheckpointHistory overwrites the history of a live record.
func (s *SQLiteStore) CheckpointHistory(ctx context.Context, sessionID string, history []domain.Message) error {
	historyJSON, err := marshalHistory(history)
	if err != nil {
		return err
	}

	query := `UPDATE practice_sessions SET history_json = ?, updated_at = ? WHERE session_id = ?`
	return shared.RetryOnConflict(ctx, "checkpoint history", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, historyJSON, time.Now().Unix(), sessionID)
		if err != nil {
			return fmt.Errorf("update history: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// DeletePracticeSession removes a live record.
func (s *SQLiteStore) DeletePracticeSession(ctx context.Context, sessionID string) error {
	return shared.RetryOnConflict(ctx, "delete practice session", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM practice_sessions WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete practice session: %w", err)
		}
		return nil
	})
}

// CompleteSession stores the review handoff and deletes the live record.
func (s *SQLiteStore) CompleteSession(ctx context.Context, review *domain.Review) error {
	historyJSON, err := marshalHistory(review.ConversationHistory)
	if err != nil {
		return err
	}

	return shared.RetryOnConflict(ctx, "complete session", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reviews (session_id, user_id, history_json, prep_type, job_role, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				history_json = excluded.history_json,
				prep_type = excluded.prep_type,
				job_role = excluded.job_role,
				created_at = excluded.created_at`,
			review.SessionID, review.UserID, historyJSON,
			review.Metadata.PrepType, review.Metadata.JobRole, review.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM practice_sessions WHERE session_id = ?`, review.SessionID); err != nil {
			return fmt.Errorf("delete practice session: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit review: %w", err)
		}
		return nil
	})
}

// GetReview retrieves the review handoff for a session.
func (s *SQLiteStore) GetReview(ctx context.Context, sessionID string) (*domain.Review, error) {
	query := `
		SELECT session_id, user_id, history_json, prep_type, job_role, created_at
		FROM reviews WHERE session_id = ?`

	var r domain.Review
	var historyJSON string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&r.SessionID, &r.UserID, &historyJSON,
		&r.Metadata.PrepType, &r.Metadata.JobRole, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan review: %w", err)
	}

	if r.ConversationHistory, err = unmarshalHistory(historyJSON); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

// CleanupStaleSessions removes live records older than ttl.
func (s *SQLiteStore) CleanupStaleSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var deleted int64
	err := shared.RetryOnConflict(ctx, "cleanup stale sessions", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM practice_sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("cleanup stale sessions: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

func marshalHistory(history []domain.Message) (string, error) {
	if history == nil {
		history = []domain.Message{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(b), nil
}

func unmarshalHistory(raw string) ([]domain.Message, error) {
	var history []domain.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return history, nil
}
