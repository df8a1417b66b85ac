package domain

import (
	"time"
)

const (
	// DefaultPrepType is used for review metadata when the bootstrap record has none.
	DefaultPrepType = "interview"
	// DefaultJobRole is used for review metadata when the bootstrap record has none.
	DefaultJobRole = "Candidate"
)

// SessionData is the static context captured when a practice session is
// prepared (uploaded material, generated system prompt, chosen mode).
type SessionData struct {
	SystemPrompt  string `json:"system_prompt"`
	ExtractedText string `json:"extracted_text"`
	PrepType      string `json:"prep_type,omitempty"`
	JobRole       string `json:"job_role,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
}

// PracticeSession is the live session record: bootstrap context plus the
// latest acknowledged history. It is deleted when the session ends.
type PracticeSession struct {
	ID        string      `json:"session_id"`
	UserID    string      `json:"-"`
	Data      SessionData `json:"session_data"`
	History   []Message   `json:"history"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ReviewMetadata summarizes a finished session for the review surface.
type ReviewMetadata struct {
	PrepType string `json:"prep_type"`
	JobRole  string `json:"job_role"`
}

// MetadataFor derives review metadata from the bootstrap context, applying defaults.
func MetadataFor(data SessionData) ReviewMetadata {
	meta := ReviewMetadata{PrepType: data.PrepType, JobRole: data.JobRole}
	if meta.PrepType == "" {
		meta.PrepType = DefaultPrepType
	}
	if meta.JobRole == "" {
		meta.JobRole = DefaultJobRole
	}
	return meta
}

// Review is the handoff written when a practice session ends.
type Review struct {
	SessionID           string         `json:"session_id"`
	UserID              string         `json:"-"`
	ConversationHistory []Message      `json:"conversation_history"`
	Metadata            ReviewMetadata `json:"session_metadata"`
	CreatedAt           time.Time      `json:"created_at"`
}
