package bridge

import (
	"errors"
	"sync"

	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/voice"
)

// errBridgeClosed is returned by device commands after the connection ended.
var errBridgeClosed = errors.New("bridge closed")

const outboundQueueSize = 256

// device turns orchestrator calls into outbound frames. close must follow
// the practice loop's exit; sends after close are dropped.
type device struct {
	mu     sync.Mutex
	closed bool
	out    chan Outbound
	done   <-chan struct{}
}

func newDevice(done <-chan struct{}) *device {
	return &device{
		out:  make(chan Outbound, outboundQueueSize),
		done: done,
	}
}

func (d *device) send(f Outbound) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errBridgeClosed
	}
	select {
	case d.out <- f:
		return nil
	case <-d.done:
		return errBridgeClosed
	}
}

func (d *device) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.out)
	}
}

// Start implements voice.Recognizer.
func (d *device) Start() error {
	return d.send(Outbound{Type: TypeRecognitionStart})
}

// Stop implements voice.Recognizer.
func (d *device) Stop() error {
	return d.send(Outbound{Type: TypeRecognitionStop})
}

// Speak implements voice.Synthesizer.
func (d *device) Speak(id uint64, text string, v *voice.Voice) error {
	return d.send(Outbound{Type: TypeSynthesisSpeak, ID: id, Text: text, Voice: v})
}

// Cancel implements voice.Synthesizer.
func (d *device) Cancel() {
	_ = d.send(Outbound{Type: TypeSynthesisCancel})
}

// StartMouth implements voice.Animator.
func (d *device) StartMouth() {
	_ = d.send(Outbound{Type: TypeMouthStart})
}

// StopMouth implements voice.Animator.
func (d *device) StopMouth() {
	_ = d.send(Outbound{Type: TypeMouthStop})
}

// Preview implements voice.Sink.
func (d *device) Preview(text string) {
	_ = d.send(Outbound{Type: TypePreview, Text: text})
}

// Status implements voice.Sink.
func (d *device) Status(s voice.Status) {
	_ = d.send(Outbound{Type: TypeStatus, Status: string(s)})
}

// Notice implements voice.Sink.
func (d *device) Notice(text string) {
	_ = d.send(Outbound{Type: TypeNotice, Text: text})
}

// Message implements turn.UI.
func (d *device) Message(role domain.Role, content string) {
	_ = d.send(Outbound{Type: TypeMessage, Role: string(role), Content: content})
}

// Error implements turn.UI.
func (d *device) Error(text string) {
	_ = d.send(Outbound{Type: TypeError, Text: text})
}

// Loading implements turn.UI.
func (d *device) Loading(on bool) {
	_ = d.send(Outbound{Type: TypeLoading, On: &on})
}

// Navigate implements turn.UI.
func (d *device) Navigate(url string) {
	_ = d.send(Outbound{Type: TypeNavigate, URL: url})
}

func (d *device) pong() {
	_ = d.send(Outbound{Type: TypePong})
}
