package domain

import (
	"time"
)

// Candidate is an anonymous per-device user practicing interviews.
type Candidate struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IdleFor returns how long the candidate has been inactive.
func (c *Candidate) IdleFor(now time.Time) time.Duration {
	if c.LastSeenAt.IsZero() || now.Before(c.LastSeenAt) {
		return 0
	}
	return now.Sub(c.LastSeenAt)
}
