// Package domain contains core domain types for the practice service.
package domain

import "fmt"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message spoken or typed by the candidate.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the interviewer model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single conversation entry. Messages are never mutated after
// creation; history order is conversation order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a candidate message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an interviewer message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ValidateHistory checks that every message carries a known role.
func ValidateHistory(history []Message) error {
	for i, msg := range history {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}
	return nil
}

// CloneHistory returns a copy of history that the caller may retain.
func CloneHistory(history []Message) []Message {
	if history == nil {
		return nil
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
