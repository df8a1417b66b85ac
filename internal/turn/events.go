package turn

import (
	"time"

	"github.com/ashureev/prepy-voice/internal/chat"
	"github.com/ashureev/prepy-voice/internal/voice"
)

// Event is one input to the orchestrator loop.
type Event interface {
	event()
}

// DeviceHello announces the device capabilities. It is sent once per bridge
// connection.
type DeviceHello struct {
	Recognition bool
	Synthesis   bool
	Voices      []voice.Voice
}

// VoicesChanged reports a new synthesis voice catalog.
type VoicesChanged struct {
	Synthesis bool
	Voices    []voice.Voice
}

// RecognitionStarted reports that the recognition device is running.
type RecognitionStarted struct{}

// RecognitionResult carries one batch of recognition fragments.
type RecognitionResult struct {
	Fragments []voice.Fragment
}

// RecognitionError reports a recognition device error code.
type RecognitionError struct {
	Code string
}

// RecognitionEnded reports that the recognition device stopped.
type RecognitionEnded struct{}

// SynthesisStarted reports that playback id began.
type SynthesisStarted struct {
	ID uint64
}

// SynthesisEnded reports that playback id finished.
type SynthesisEnded struct {
	ID uint64
}

// SynthesisFailed reports that playback id failed.
type SynthesisFailed struct {
	ID   uint64
	Code string
}

// MicToggled is the user's mute button.
type MicToggled struct{}

// SendRequested is an explicit send of typed or edited text.
type SendRequested struct {
	Text string
}

// EndRequested asks to end the session. Only confirmed requests are honored.
type EndRequested struct {
	Confirmed bool
}

type chatCompleted struct {
	seq     uint64
	resp    *chat.Response
	err     error
	latency time.Duration
}

type timerFired struct {
	timer *loopTimer
}

func (DeviceHello) event()        {}
func (VoicesChanged) event()      {}
func (RecognitionStarted) event() {}
func (RecognitionResult) event()  {}
func (RecognitionError) event()   {}
func (RecognitionEnded) event()   {}
func (SynthesisStarted) event()   {}
func (SynthesisEnded) event()     {}
func (SynthesisFailed) event()    {}
func (MicToggled) event()         {}
func (SendRequested) event()      {}
func (EndRequested) event()       {}
func (chatCompleted) event()      {}
func (timerFired) event()         {}
