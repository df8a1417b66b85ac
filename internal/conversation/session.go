// Package conversation holds the history and turn accounting of one practice session.
package conversation

import (
	"github.com/ashureev/prepy-voice/internal/domain"
)

// MaxTurns is the number of candidate messages after which the session ends.
// The send path and the final-turn flag sent to the chat service both read it.
const MaxTurns = 5

// Session is the ordered message history plus the turn counter.
// It is owned by a single orchestrator and is not safe for concurrent use.
type Session struct {
	data    domain.SessionData
	history []domain.Message
	turns   int
}

// New starts an empty session with the given static context.
func New(data domain.SessionData) *Session {
	return &Session{data: data}
}

// Resume rebuilds a session from persisted history. The turn counter is
// derived from message pairs rather than stored.
func Resume(data domain.SessionData, history []domain.Message) *Session {
	return &Session{
		data:    data,
		history: domain.CloneHistory(history),
		turns:   TurnsFor(history),
	}
}

// TurnsFor derives the turn counter for a restored history.
func TurnsFor(history []domain.Message) int {
	return len(history) / 2
}

// Data returns the static session context.
func (s *Session) Data() domain.SessionData {
	return s.data
}

// Turns returns the number of candidate messages sent so far.
func (s *Session) Turns() int {
	return s.turns
}

// Terminal reports whether the turn limit has been reached.
func (s *Session) Terminal() bool {
	return s.turns >= MaxTurns
}

// AppendUser records a sent candidate message and consumes a turn.
// It returns the new turn count.
func (s *Session) AppendUser(content string) int {
	s.history = append(s.history, domain.UserMessage(content))
	s.turns++
	return s.turns
}

// ReplaceHistory swaps the local history for the server's canonical copy.
// The turn counter is left untouched.
func (s *Session) ReplaceHistory(history []domain.Message) {
	s.history = domain.CloneHistory(history)
}

// History returns a copy of the current history.
func (s *Session) History() []domain.Message {
	return domain.CloneHistory(s.history)
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	return len(s.history)
}

// Last returns the most recent message, if any.
func (s *Session) Last() (domain.Message, bool) {
	if len(s.history) == 0 {
		return domain.Message{}, false
	}
	return s.history[len(s.history)-1], true
}
