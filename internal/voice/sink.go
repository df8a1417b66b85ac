package voice

// Status is the listening indicator shown to the user.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusListening        Status = "listening"
	StatusSpeaking         Status = "speaking"
	StatusMuted            Status = "muted"
	StatusPermissionDenied Status = "permission-denied"
)

// Sink receives the user-visible side effects of the speech components.
type Sink interface {
	// Preview shows the live transcript (buffered finals plus interim text).
	Preview(text string)
	// Status updates the listening indicator.
	Status(status Status)
	// Notice shows a one-off message to the user.
	Notice(text string)
}

// Recognizer is the continuous speech-recognition device. Calls only issue
// requests; the device reports back through Listener.Handle* methods.
type Recognizer interface {
	Start() error
	Stop() error
}

// Synthesizer is the speech-synthesis device. Progress is reported back
// through Playback.Handle* methods using the id passed to Speak.
type Synthesizer interface {
	Speak(id uint64, text string, voice *Voice) error
	Cancel()
}

// Animator drives the talking-head mouth overlay.
type Animator interface {
	StartMouth()
	StopMouth()
}
