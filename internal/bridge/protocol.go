// Package bridge connects a browser's speech devices to a practice loop over
// a WebSocket. The browser forwards device events as inbound frames and
// executes the outbound device and UI commands.
package bridge

import (
	"errors"
	"fmt"

	"github.com/ashureev/prepy-voice/internal/turn"
	"github.com/ashureev/prepy-voice/internal/voice"
)

// Inbound frame types.
const (
	TypeHello             = "hello"
	TypeVoices            = "voices"
	TypeRecognitionStart  = "recognition.start"
	TypeRecognitionResult = "recognition.result"
	TypeRecognitionError  = "recognition.error"
	TypeRecognitionEnd    = "recognition.end"
	TypeSynthesisStart    = "synthesis.start"
	TypeSynthesisEnd      = "synthesis.end"
	TypeSynthesisError    = "synthesis.error"
	TypeMicToggle         = "mic.toggle"
	TypeSend              = "send"
	TypeEnd               = "end"
	TypePing              = "ping"
)

// Outbound frame types.
const (
	TypeRecognitionStop = "recognition.stop"
	TypeSynthesisSpeak  = "synthesis.speak"
	TypeSynthesisCancel = "synthesis.cancel"
	TypeMouthStart      = "mouth.start"
	TypeMouthStop       = "mouth.stop"
	TypePreview         = "preview"
	TypeStatus          = "status"
	TypeNotice          = "notice"
	TypeMessage         = "message"
	TypeError           = "error"
	TypeLoading         = "loading"
	TypeNavigate        = "navigate"
	TypePong            = "pong"
)

// errUnknownFrame marks an inbound frame with an unrecognized type.
var errUnknownFrame = errors.New("unknown frame type")

// Inbound is a frame sent by the browser.
type Inbound struct {
	Type        string           `json:"type"`
	Recognition bool             `json:"recognition,omitempty"`
	Synthesis   bool             `json:"synthesis,omitempty"`
	Voices      []voice.Voice    `json:"voices,omitempty"`
	Fragments   []voice.Fragment `json:"fragments,omitempty"`
	Code        string           `json:"code,omitempty"`
	ID          uint64           `json:"id,omitempty"`
	Text        string           `json:"text,omitempty"`
	Confirmed   bool             `json:"confirmed,omitempty"`
}

// Event converts the frame to an orchestrator event.
func (f Inbound) Event() (turn.Event, error) {
	switch f.Type {
	case TypeHello:
		return turn.DeviceHello{Recognition: f.Recognition, Synthesis: f.Synthesis, Voices: f.Voices}, nil
	case TypeVoices:
		return turn.VoicesChanged{Synthesis: f.Synthesis, Voices: f.Voices}, nil
	case TypeRecognitionStart:
		return turn.RecognitionStarted{}, nil
	case TypeRecognitionResult:
		return turn.RecognitionResult{Fragments: f.Fragments}, nil
	case TypeRecognitionError:
		return turn.RecognitionError{Code: f.Code}, nil
	case TypeRecognitionEnd:
		return turn.RecognitionEnded{}, nil
	case TypeSynthesisStart:
		return turn.SynthesisStarted{ID: f.ID}, nil
	case TypeSynthesisEnd:
		return turn.SynthesisEnded{ID: f.ID}, nil
	case TypeSynthesisError:
		return turn.SynthesisFailed{ID: f.ID, Code: f.Code}, nil
	case TypeMicToggle:
		return turn.MicToggled{}, nil
	case TypeSend:
		return turn.SendRequested{Text: f.Text}, nil
	case TypeEnd:
		return turn.EndRequested{Confirmed: f.Confirmed}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFrame, f.Type)
	}
}

// Outbound is a frame sent to the browser.
type Outbound struct {
	Type    string       `json:"type"`
	ID      uint64       `json:"id,omitempty"`
	Text    string       `json:"text,omitempty"`
	Voice   *voice.Voice `json:"voice,omitempty"`
	Status  string       `json:"status,omitempty"`
	Role    string       `json:"role,omitempty"`
	Content string       `json:"content,omitempty"`
	On      *bool        `json:"on,omitempty"`
	URL     string       `json:"url,omitempty"`
}
