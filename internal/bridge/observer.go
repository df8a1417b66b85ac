package bridge

import (
	"time"

	"github.com/ashureev/prepy-voice/internal/journal"
	"github.com/ashureev/prepy-voice/internal/metrics"
	"github.com/ashureev/prepy-voice/internal/voice"
)

const journalChannel = "voice"

// sessionObserver records turn milestones of one session in metrics and the
// conversation journal. metrics may be nil.
type sessionObserver struct {
	userID    string
	sessionID string
	metrics   *metrics.Metrics
	journal   journal.Logger
	now       func() time.Time
}

func newSessionObserver(userID, sessionID string, m *metrics.Metrics, j journal.Logger) *sessionObserver {
	if j == nil {
		j = journal.Nop{}
	}
	return &sessionObserver{
		userID:    userID,
		sessionID: sessionID,
		metrics:   m,
		journal:   j,
		now:       time.Now,
	}
}

func (o *sessionObserver) log(direction, eventType string, turn int, content string, meta map[string]any) {
	o.journal.Log(journal.Event{
		Timestamp:  o.now().UTC().Format(time.RFC3339Nano),
		UserID:     o.userID,
		SessionID:  o.sessionID,
		Channel:    journalChannel,
		Direction:  direction,
		EventType:  eventType,
		Turn:       turn,
		ContentRaw: content,
		Meta:       meta,
	})
}

func (o *sessionObserver) UserTurn(turn int, content string, final bool) {
	if o.metrics != nil {
		o.metrics.TurnSent()
	}
	o.log("inbound", journal.EventUserUtterance, turn, content, map[string]any{"final_turn": final})
}

func (o *sessionObserver) AssistantTurn(turn int, content string, latency time.Duration) {
	if o.metrics != nil {
		o.metrics.TurnAnswered(latency)
	}
	o.log("outbound", journal.EventAssistantReply, turn, content, map[string]any{"latency_ms": latency.Milliseconds()})
}

func (o *sessionObserver) TurnFailed(turn int, err error) {
	if o.metrics != nil {
		o.metrics.TurnFailed()
	}
	o.log("outbound", journal.EventTurnFailed, turn, "", map[string]any{"error": err.Error()})
}

func (o *sessionObserver) RecognitionError(kind voice.ErrorKind) {
	if o.metrics != nil {
		o.metrics.RecognitionError(kind.String())
	}
	o.log("inbound", journal.EventRecognitionError, 0, "", map[string]any{"kind": kind.String()})
}

func (o *sessionObserver) SessionEnded(turns int, reason string) {
	if o.metrics != nil {
		o.metrics.SessionEnded(reason)
	}
	o.log("internal", journal.EventSessionEnded, turns, "", map[string]any{"reason": reason})
}
