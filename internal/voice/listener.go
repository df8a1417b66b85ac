package voice

import (
	"errors"
	"log/slog"
	"time"
)

const permissionDeniedNotice = "Microphone access denied. Please allow microphone access in your browser settings."

// ListenerConfig wires a Listener to its collaborators.
type ListenerConfig struct {
	Recognizer  Recognizer
	Accumulator *Accumulator
	Scheduler   Scheduler
	Sink        Sink
	Policy      RetryPolicy
	Logger      *slog.Logger
	// OnError, if set, observes every classified device error.
	OnError func(kind ErrorKind)
}

// Listener owns the recognition device session and keeps it running while
// the gates allow it.
type Listener struct {
	gates   *Gates
	rec     Recognizer
	acc     *Accumulator
	sched   Scheduler
	sink    Sink
	policy  RetryPolicy
	logger  *slog.Logger
	onError func(kind ErrorKind)

	restart     Timer
	attempts    int
	unsupported bool
}

// NewListener creates a listening controller over the shared gates.
func NewListener(gates *Gates, cfg ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		gates:   gates,
		rec:     cfg.Recognizer,
		acc:     cfg.Accumulator,
		sched:   cfg.Scheduler,
		sink:    cfg.Sink,
		policy:  cfg.Policy,
		logger:  logger,
		onError: cfg.OnError,
	}
}

// SetSupported records whether the device can recognize speech at all. An
// unsupported device is never started.
func (l *Listener) SetSupported(supported bool) {
	l.unsupported = !supported
	if l.unsupported {
		l.cancelRestart()
	}
}

// Start requests recognition unless muted, speaking, awaiting a response,
// closed, unsupported, or already listening.
func (l *Listener) Start() {
	if l.unsupported || !l.gates.MayListen() || l.gates.Listening() {
		return
	}
	l.cancelRestart()

	if err := l.rec.Start(); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		l.logger.Error("Recognition start failed", "error", err)
		l.gates.setRecognition(RecognitionIdle)
		return
	}
	l.gates.setRecognition(RecognitionListening)
}

// Stop ends recognition and cancels any pending restart or debounce.
// Calling it while idle is a no-op apart from the cancellations.
func (l *Listener) Stop() {
	l.cancelRestart()
	if l.acc != nil {
		l.acc.Cancel()
	}
	if l.gates.Recognition() == RecognitionIdle {
		return
	}
	wasListening := l.gates.Listening()
	l.gates.setRecognition(RecognitionIdle)
	if !wasListening {
		return
	}
	if err := l.rec.Stop(); err != nil {
		l.logger.Warn("Recognition stop failed", "error", err)
	}
}

// SetMuted applies the mute command: muting stops, unmuting starts.
func (l *Listener) SetMuted(muted bool) {
	if l.gates.Muted() == muted {
		return
	}
	l.gates.setMuted(muted)
	if muted {
		l.Stop()
		l.sink.Status(StatusMuted)
		return
	}
	l.sink.Status(StatusIdle)
	l.Start()
}

// ToggleMute flips the mute flag and returns the new value.
func (l *Listener) ToggleMute() bool {
	l.SetMuted(!l.gates.Muted())
	return l.gates.Muted()
}

// HandleStarted processes the device start event.
func (l *Listener) HandleStarted() {
	l.attempts = 0
	if !l.gates.MayListen() {
		// The floor changed hands between the request and the device start.
		l.gates.setRecognition(RecognitionListening)
		l.Stop()
		return
	}
	l.gates.setRecognition(RecognitionListening)
	l.sink.Status(StatusListening)
}

// HandleResult feeds a batch of fragments to the accumulator unless the
// gates say nobody should be listening.
func (l *Listener) HandleResult(fragments []Fragment) {
	if !l.gates.MayListen() {
		return
	}
	l.acc.Consume(fragments)
}

// HandleError applies the recovery policy for a device error code.
func (l *Listener) HandleError(code string) {
	kind := ClassifyError(code)
	l.logger.Warn("Recognition error", "code", code, "kind", kind.String())
	if l.onError != nil {
		l.onError(kind)
	}

	if l.gates.Recognition() != RecognitionRestarting {
		l.gates.setRecognition(RecognitionIdle)
	}

	switch kind {
	case ErrorPermissionDenied:
		l.cancelRestart()
		l.gates.setRecognition(RecognitionIdle)
		l.gates.setMuted(true)
		if l.acc != nil {
			l.acc.Cancel()
		}
		l.sink.Status(StatusPermissionDenied)
		l.sink.Notice(permissionDeniedNotice)
	case ErrorNoSpeech, ErrorNetwork:
		delay, _ := l.policy.ErrorDelay(kind)
		l.scheduleRestart(delay)
	}
}

// HandleEnd processes the device end event and restarts when eligible.
func (l *Listener) HandleEnd() {
	if l.gates.Recognition() == RecognitionRestarting {
		return
	}
	l.gates.setRecognition(RecognitionIdle)

	switch {
	case l.gates.MayListen():
		l.scheduleRestart(l.policy.AutoRestart)
	case l.gates.Speaking(), l.gates.AwaitingResponse(), l.gates.Closed():
	case l.gates.Muted():
		l.sink.Status(StatusMuted)
	}
}

func (l *Listener) scheduleRestart(delay time.Duration) {
	if !l.gates.MayListen() {
		return
	}
	l.attempts++
	if !l.policy.Allows(l.attempts) {
		l.logger.Warn("Recognition restart limit reached", "attempts", l.attempts-1)
		l.gates.setRecognition(RecognitionIdle)
		return
	}
	l.cancelRestart()
	l.gates.setRecognition(RecognitionRestarting)
	l.restart = l.sched.AfterFunc(delay, l.restartNow)
}

func (l *Listener) restartNow() {
	l.restart = nil
	if l.gates.Recognition() == RecognitionRestarting {
		l.gates.setRecognition(RecognitionIdle)
	}
	l.Start()
}

func (l *Listener) cancelRestart() {
	if l.restart == nil {
		return
	}
	l.restart.Stop()
	l.restart = nil
	if l.gates.Recognition() == RecognitionRestarting {
		l.gates.setRecognition(RecognitionIdle)
	}
}
