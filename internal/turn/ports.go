package turn

import (
	"context"
	"time"

	"github.com/ashureev/prepy-voice/internal/chat"
	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/voice"
)

// UI receives everything the candidate sees.
type UI interface {
	voice.Sink
	Message(role domain.Role, content string)
	Error(text string)
	Loading(on bool)
	Navigate(url string)
}

// Device is the browser's speech hardware.
type Device interface {
	voice.Recognizer
	voice.Synthesizer
	voice.Animator
}

// ChatClient sends a turn to the chat service.
type ChatClient interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Store persists the live record and the review handoff.
type Store interface {
	// CheckpointHistory overwrites the live record's history.
	CheckpointHistory(ctx context.Context, sessionID string, history []domain.Message) error
	// CompleteSession stores the review and removes the live record.
	CompleteSession(ctx context.Context, review *domain.Review) error
}

// Observer is notified of turn milestones for metrics and journaling.
type Observer interface {
	UserTurn(turn int, content string, final bool)
	AssistantTurn(turn int, content string, latency time.Duration)
	TurnFailed(turn int, err error)
	RecognitionError(kind voice.ErrorKind)
	SessionEnded(turns int, reason string)
}

type nopObserver struct{}

func (nopObserver) UserTurn(int, string, bool)               {}
func (nopObserver) AssistantTurn(int, string, time.Duration) {}
func (nopObserver) TurnFailed(int, error)                    {}
func (nopObserver) RecognitionError(voice.ErrorKind)         {}
func (nopObserver) SessionEnded(int, string)                 {}
