package turn

import (
	"time"

	"github.com/ashureev/prepy-voice/internal/voice"
)

// loopScheduler delivers timer callbacks on the orchestrator loop. The
// underlying clock only posts an event; the callback runs when the loop
// handles it, and not at all if the timer was stopped in between.
type loopScheduler struct {
	clock voice.Scheduler
	post  func(Event) bool
}

type loopTimer struct {
	inner     voice.Timer
	f         func()
	cancelled bool
	fired     bool
}

func (s *loopScheduler) AfterFunc(d time.Duration, f func()) voice.Timer {
	t := &loopTimer{f: f}
	t.inner = s.clock.AfterFunc(d, func() {
		s.post(timerFired{timer: t})
	})
	return t
}

// Stop must be called from the loop.
func (t *loopTimer) Stop() bool {
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	if t.inner != nil {
		t.inner.Stop()
	}
	return true
}

func (t *loopTimer) fire() {
	if t.cancelled || t.fired {
		return
	}
	t.fired = true
	t.f()
}
