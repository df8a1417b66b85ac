package voice

import "errors"

// ErrAlreadyStarted is returned by a Recognizer when Start is called on a
// running session. Listener treats it as success.
var ErrAlreadyStarted = errors.New("recognition already started")

// ErrorKind classifies recognition device errors.
type ErrorKind int

const (
	// ErrorOther is any error without a dedicated recovery.
	ErrorOther ErrorKind = iota
	// ErrorPermissionDenied means microphone access was refused.
	ErrorPermissionDenied
	// ErrorNoSpeech means the device timed out without hearing anything.
	ErrorNoSpeech
	// ErrorNetwork means the recognition transport hiccuped.
	ErrorNetwork
)

// String returns a human-readable representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorPermissionDenied:
		return "permission-denied"
	case ErrorNoSpeech:
		return "no-speech"
	case ErrorNetwork:
		return "network"
	default:
		return "other"
	}
}

// ClassifyError maps a device error code to its kind.
func ClassifyError(code string) ErrorKind {
	switch code {
	case "not-allowed", "permission-denied", "service-not-allowed":
		return ErrorPermissionDenied
	case "no-speech":
		return ErrorNoSpeech
	case "network":
		return ErrorNetwork
	default:
		return ErrorOther
	}
}
