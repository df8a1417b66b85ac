package voice

// RecognitionState is the lifecycle of the recognition device session.
type RecognitionState int

const (
	// RecognitionIdle means no recognition session is running or requested.
	RecognitionIdle RecognitionState = iota
	// RecognitionListening means a session was requested or is running.
	RecognitionListening
	// RecognitionRestarting means a restart is scheduled.
	RecognitionRestarting
)

// String returns a human-readable representation of the state.
func (s RecognitionState) String() string {
	switch s {
	case RecognitionIdle:
		return "idle"
	case RecognitionListening:
		return "listening"
	case RecognitionRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Gates is the shared mutual-exclusion record of a session. Every component
// reads it; each flag has exactly one writer:
//
//	muted        Listener
//	recognition  Listener
//	speaking     Playback
//	awaiting     orchestrator (SetAwaitingResponse)
//	closed       orchestrator (Close)
type Gates struct {
	muted       bool
	speaking    bool
	awaiting    bool
	closed      bool
	recognition RecognitionState
}

// NewGates returns gates for a fresh session: unmuted, silent, idle.
func NewGates() *Gates {
	return &Gates{}
}

// Muted reports whether the microphone is muted.
func (g *Gates) Muted() bool { return g.muted }

// Speaking reports whether the AI holds the floor.
func (g *Gates) Speaking() bool { return g.speaking }

// AwaitingResponse reports whether a chat request is in flight.
func (g *Gates) AwaitingResponse() bool { return g.awaiting }

// Closed reports whether the session has ended.
func (g *Gates) Closed() bool { return g.closed }

// Recognition returns the recognition state.
func (g *Gates) Recognition() RecognitionState { return g.recognition }

// Listening reports whether recognition is active.
func (g *Gates) Listening() bool { return g.recognition == RecognitionListening }

// MayListen reports whether nothing currently forbids listening.
func (g *Gates) MayListen() bool {
	return !g.muted && !g.speaking && !g.awaiting && !g.closed
}

// SetAwaitingResponse marks a chat request as in flight or settled.
func (g *Gates) SetAwaitingResponse(on bool) { g.awaiting = on }

// Close marks the session as ended. It cannot be reopened.
func (g *Gates) Close() { g.closed = true }

func (g *Gates) setMuted(on bool)                      { g.muted = on }
func (g *Gates) setSpeaking(on bool)                   { g.speaking = on }
func (g *Gates) setRecognition(state RecognitionState) { g.recognition = state }

// Snapshot is a copy of the gate flags for logging and tests.
type Snapshot struct {
	Muted       bool
	Speaking    bool
	Awaiting    bool
	Closed      bool
	Recognition RecognitionState
}

// Snapshot returns the current flags.
func (g *Gates) Snapshot() Snapshot {
	return Snapshot{
		Muted:       g.muted,
		Speaking:    g.speaking,
		Awaiting:    g.awaiting,
		Closed:      g.closed,
		Recognition: g.recognition,
	}
}
