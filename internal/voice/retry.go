package voice

import "time"

// RetryPolicy holds the fixed restart delays of the Listener.
type RetryPolicy struct {
	// AutoRestart follows an unexpected end of the device session.
	AutoRestart time.Duration
	// NoSpeech follows a no-speech timeout.
	NoSpeech time.Duration
	// Network follows a recognition transport error.
	Network time.Duration
	// MaxAttempts caps consecutive restarts without a successful start.
	// Zero means unlimited.
	MaxAttempts int
}

// DefaultRetryPolicy returns the standard delays.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		AutoRestart: 300 * time.Millisecond,
		NoSpeech:    200 * time.Millisecond,
		Network:     1000 * time.Millisecond,
	}
}

// ErrorDelay returns the restart delay for an error kind. ok is false for
// kinds that are not retried.
func (p RetryPolicy) ErrorDelay(kind ErrorKind) (time.Duration, bool) {
	switch kind {
	case ErrorNoSpeech:
		return p.NoSpeech, true
	case ErrorNetwork:
		return p.Network, true
	default:
		return 0, false
	}
}

// Allows reports whether the given consecutive attempt may run.
func (p RetryPolicy) Allows(attempt int) bool {
	return p.MaxAttempts <= 0 || attempt <= p.MaxAttempts
}
