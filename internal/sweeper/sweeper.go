// Package sweeper removes live practice records that were abandoned.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

const defaultInterval = 10 * time.Minute

// Cleaner deletes live records not updated within ttl.
type Cleaner interface {
	CleanupStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// Recorder counts swept records.
type Recorder interface {
	SessionsSwept(n int64)
}

// Config controls the sweep cadence.
type Config struct {
	TTL      time.Duration
	Interval time.Duration
}

// Start runs a background goroutine that periodically sweeps stale live
// records until ctx is cancelled. rec may be nil. The returned channel is
// closed once the worker has stopped.
func Start(ctx context.Context, repo Cleaner, cfg Config, rec Recorder) <-chan struct{} {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", cfg.TTL)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, cfg.TTL, rec)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, repo Cleaner, ttl time.Duration, rec Recorder) int64 {
	deleted, err := repo.CleanupStaleSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Session sweep interrupted", "error", err)
			return 0
		}
		slog.Error("Session sweeper failed to clean up stale sessions", "error", err)
		return 0
	}
	if deleted == 0 {
		return 0
	}
	if rec != nil {
		rec.SessionsSwept(deleted)
	}
	slog.Info("Session sweeper removed stale sessions", "count", deleted, "ttl", ttl)
	return deleted
}
