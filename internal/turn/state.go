// Package turn coordinates recognition, the chat request, and playback for
// one practice session.
package turn

// State is the turn-taking state of a session.
type State int

const (
	// StateUserTurn means the candidate holds the floor.
	StateUserTurn State = iota
	// StateAwaitingResponse means a chat request is in flight.
	StateAwaitingResponse
	// StateAITurn means the interviewer reply is being spoken.
	StateAITurn
	// StateEnded is terminal.
	StateEnded
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUserTurn:
		return "user_turn"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateAITurn:
		return "ai_turn"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
