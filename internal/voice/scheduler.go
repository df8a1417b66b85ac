package voice

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer before it fired.
	Stop() bool
}

// Scheduler runs a callback after a delay. Implementations used in
// production must deliver the callback on the owning event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on real time via time.AfterFunc. Callbacks run on
// their own goroutine, so it is only suitable when wrapped by a loop.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
