package voice

import (
	"strings"
	"time"
)

// DebounceDelay is the silence window after which buffered speech is sent.
const DebounceDelay = 2000 * time.Millisecond

// Fragment is one recognition result chunk.
type Fragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Accumulator buffers final fragments into a pending utterance and emits it
// once no fragment has arrived for DebounceDelay.
type Accumulator struct {
	sched Scheduler
	sink  Sink
	emit  func(utterance string)
	delay time.Duration

	buffer string
	timer  Timer
}

// NewAccumulator creates an accumulator that hands completed utterances to emit.
func NewAccumulator(sched Scheduler, sink Sink, emit func(utterance string)) *Accumulator {
	return &Accumulator{
		sched: sched,
		sink:  sink,
		emit:  emit,
		delay: DebounceDelay,
	}
}

// Consume processes one batch of fragments in arrival order.
func (a *Accumulator) Consume(fragments []Fragment) {
	var final, interim strings.Builder
	for _, f := range fragments {
		if f.Final {
			final.WriteString(f.Text)
		} else {
			interim.WriteString(f.Text)
		}
	}

	finalText := final.String()
	interimText := interim.String()
	if strings.TrimSpace(finalText) == "" && strings.TrimSpace(interimText) == "" {
		return
	}

	if strings.TrimSpace(finalText) != "" {
		a.buffer += finalText + " "
	}
	a.sink.Preview(strings.TrimSpace(a.buffer + interimText))

	stopTimer(a.timer)
	a.timer = a.sched.AfterFunc(a.delay, a.flush)
}

func (a *Accumulator) flush() {
	a.timer = nil
	text := strings.TrimSpace(a.buffer)
	if text == "" {
		return
	}
	a.buffer = ""
	a.emit(text)
}

// Pending returns the buffered, not yet emitted text.
func (a *Accumulator) Pending() string {
	return strings.TrimSpace(a.buffer)
}

// Armed reports whether a debounce is pending.
func (a *Accumulator) Armed() bool {
	return a.timer != nil
}

// Cancel stops a pending debounce. Buffered text is kept.
func (a *Accumulator) Cancel() {
	stopTimer(a.timer)
	a.timer = nil
}

// Reset stops a pending debounce and drops buffered text.
func (a *Accumulator) Reset() {
	a.Cancel()
	a.buffer = ""
}
