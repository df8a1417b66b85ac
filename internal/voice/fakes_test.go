package voice

import (
	"errors"
	"sort"
	"time"
)

// manualScheduler is a deterministic clock for timer-driven tests.
type manualScheduler struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.seq++
	t := &manualTimer{s: s, at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.at
		next.fired = true
		next.f()
	}
	s.now = target
}

func (s *manualScheduler) nextDue(limit time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})
	return due[0]
}

// Pending counts live timers.
func (s *manualScheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recordingSink struct {
	previews []string
	statuses []Status
	notices  []string
}

func (s *recordingSink) Preview(text string) { s.previews = append(s.previews, text) }
func (s *recordingSink) Status(st Status)    { s.statuses = append(s.statuses, st) }
func (s *recordingSink) Notice(text string)  { s.notices = append(s.notices, text) }
func (s *recordingSink) lastStatus() Status {
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

type fakeRecognizer struct {
	starts   int
	stops    int
	startErr error
}

func (r *fakeRecognizer) Start() error {
	r.starts++
	return r.startErr
}

func (r *fakeRecognizer) Stop() error {
	r.stops++
	return nil
}

type spokenLine struct {
	id    uint64
	text  string
	voice *Voice
}

type fakeSynthesizer struct {
	spoken   []spokenLine
	cancels  int
	speakErr error
}

func (s *fakeSynthesizer) Speak(id uint64, text string, voice *Voice) error {
	if s.speakErr != nil {
		return s.speakErr
	}
	s.spoken = append(s.spoken, spokenLine{id: id, text: text, voice: voice})
	return nil
}

func (s *fakeSynthesizer) Cancel() { s.cancels++ }

type fakeAnimator struct {
	running bool
	starts  int
	stops   int
}

func (a *fakeAnimator) StartMouth() {
	a.running = true
	a.starts++
}

func (a *fakeAnimator) StopMouth() {
	a.running = false
	a.stops++
}

var errDeviceBusy = errors.New("device busy")

// rig assembles the speech components the way a session does.
type rig struct {
	sched     *manualScheduler
	sink      *recordingSink
	rec       *fakeRecognizer
	synth     *fakeSynthesizer
	anim      *fakeAnimator
	gates     *Gates
	acc       *Accumulator
	listener  *Listener
	playback  *Playback
	emitted   []string
	terminals int
	rearms    int
	errors    []ErrorKind
}

func newRig() *rig {
	r := &rig{
		sched: &manualScheduler{},
		sink:  &recordingSink{},
		rec:   &fakeRecognizer{},
		synth: &fakeSynthesizer{},
		anim:  &fakeAnimator{},
		gates: NewGates(),
	}
	r.acc = NewAccumulator(r.sched, r.sink, func(u string) { r.emitted = append(r.emitted, u) })
	r.listener = NewListener(r.gates, ListenerConfig{
		Recognizer:  r.rec,
		Accumulator: r.acc,
		Scheduler:   r.sched,
		Sink:        r.sink,
		Policy:      DefaultRetryPolicy(),
		OnError:     func(k ErrorKind) { r.errors = append(r.errors, k) },
	})
	r.playback = NewPlayback(r.gates, PlaybackConfig{
		Synthesizer: r.synth,
		Animator:    r.anim,
		Listener:    r.listener,
		Scheduler:   r.sched,
		Sink:        r.sink,
		Hooks: PlaybackHooks{
			Terminate: func() { r.terminals++ },
			Rearmed:   func() { r.rearms++ },
		},
	})
	r.playback.SetCatalog(true, nil)
	return r
}

// listen starts recognition and acknowledges the device start.
func (r *rig) listen() {
	r.listener.Start()
	r.listener.HandleStarted()
}
