package turn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/prepy-voice/internal/chat"
	"github.com/ashureev/prepy-voice/internal/conversation"
	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/voice"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
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

func (c *manualClock) AfterFunc(d time.Duration, f func()) voice.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= target {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})
	for _, t := range due {
		t.fired = true
	}
	c.now = target
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

type fakeDevice struct {
	starts    int
	stops     int
	cancels   int
	mouth     bool
	spoken    []string
	speakIDs  []uint64
	finals    []bool
	commands  []string
	speakFail error
}

func (d *fakeDevice) Start() error {
	d.starts++
	d.commands = append(d.commands, "recognition.start")
	return nil
}

func (d *fakeDevice) Stop() error {
	d.stops++
	d.commands = append(d.commands, "recognition.stop")
	return nil
}

func (d *fakeDevice) Speak(id uint64, text string, _ *voice.Voice) error {
	if d.speakFail != nil {
		return d.speakFail
	}
	d.spoken = append(d.spoken, text)
	d.speakIDs = append(d.speakIDs, id)
	d.commands = append(d.commands, "synthesis.speak")
	return nil
}

func (d *fakeDevice) Cancel() {
	d.cancels++
	d.commands = append(d.commands, "synthesis.cancel")
}

func (d *fakeDevice) StartMouth() { d.mouth = true }
func (d *fakeDevice) StopMouth()  { d.mouth = false }

func (d *fakeDevice) lastSpeakID() uint64 {
	if len(d.speakIDs) == 0 {
		return 0
	}
	return d.speakIDs[len(d.speakIDs)-1]
}

type fakeUI struct {
	previews []string
	statuses []voice.Status
	notices  []string
	messages []domain.Message
	errors   []string
	loading  []bool
	navigate []string
}

func (u *fakeUI) Preview(text string)   { u.previews = append(u.previews, text) }
func (u *fakeUI) Status(s voice.Status) { u.statuses = append(u.statuses, s) }
func (u *fakeUI) Notice(text string)    { u.notices = append(u.notices, text) }
func (u *fakeUI) Error(text string)     { u.errors = append(u.errors, text) }
func (u *fakeUI) Loading(on bool)       { u.loading = append(u.loading, on) }
func (u *fakeUI) Navigate(url string)   { u.navigate = append(u.navigate, url) }
func (u *fakeUI) Message(r domain.Role, c string) {
	u.messages = append(u.messages, domain.Message{Role: r, Content: c})
}

func (u *fakeUI) loadingOn() bool {
	return len(u.loading) > 0 && u.loading[len(u.loading)-1]
}

type fakeChat struct {
	mu       sync.Mutex
	requests []chat.Request
	reply    func(req chat.Request) (*chat.Response, error)
	block    chan struct{}
}

func (c *fakeChat) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	n := len(c.requests)
	reply := c.reply
	block := c.block
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply != nil {
		return reply(req)
	}
	msg := fmt.Sprintf("Question %d", n)
	history := append(domain.CloneHistory(req.History), domain.AssistantMessage(msg))
	return &chat.Response{Success: true, Message: msg, History: history}, nil
}

func (c *fakeChat) lastRequest() chat.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return chat.Request{}
	}
	return c.requests[len(c.requests)-1]
}

func (c *fakeChat) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type fakeStore struct {
	checkpoints [][]domain.Message
	reviews     []*domain.Review
	completeErr error
}

func (s *fakeStore) CheckpointHistory(_ context.Context, _ string, history []domain.Message) error {
	s.checkpoints = append(s.checkpoints, history)
	return nil
}

func (s *fakeStore) CompleteSession(_ context.Context, review *domain.Review) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	s.reviews = append(s.reviews, review)
	return nil
}

type recordingObserver struct {
	sent     int
	answered int
	failed   int
	errors   []voice.ErrorKind
	ended    []string
}

func (r *recordingObserver) UserTurn(int, string, bool)               { r.sent++ }
func (r *recordingObserver) AssistantTurn(int, string, time.Duration) { r.answered++ }
func (r *recordingObserver) TurnFailed(int, error)                    { r.failed++ }
func (r *recordingObserver) RecognitionError(k voice.ErrorKind)       { r.errors = append(r.errors, k) }
func (r *recordingObserver) SessionEnded(_ int, reason string)        { r.ended = append(r.ended, reason) }

var errNetworkDown = errors.New("connection refused")

type harness struct {
	t     *testing.T
	o     *Orchestrator
	sess  *conversation.Session
	clock *manualClock
	dev   *fakeDevice
	ui    *fakeUI
	chat  *fakeChat
	store *fakeStore
	obs   *recordingObserver
}

func newHarness(t *testing.T, sess *conversation.Session) *harness {
	t.Helper()
	if sess == nil {
		sess = conversation.New(domain.SessionData{SystemPrompt: "You are an interviewer.", JobRole: "Backend Engineer"})
	}
	h := &harness{
		t:     t,
		sess:  sess,
		clock: &manualClock{},
		dev:   &fakeDevice{},
		ui:    &fakeUI{},
		chat:  &fakeChat{},
		store: &fakeStore{},
		obs:   &recordingObserver{},
	}
	h.o = New(Config{
		SessionID:  "sess-1",
		UserID:     "user-1",
		Session:    sess,
		Device:     h.dev,
		UI:         h.ui,
		Chat:       h.chat,
		Store:      h.store,
		Observer:   h.obs,
		ReviewPath: "/review",
		Clock:      h.clock,
	})
	return h
}

// send handles ev on the test goroutine, then everything it queued.
func (h *harness) send(ev Event) {
	h.t.Helper()
	h.o.handle(ev)
	h.checkExclusive()
	h.drain()
}

func (h *harness) drain() {
	h.t.Helper()
	for {
		select {
		case ev := <-h.o.events:
			h.o.handle(ev)
			h.checkExclusive()
		default:
			return
		}
	}
}

// advance moves the clock in small steps so timers armed by callbacks fire
// within the same call.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	const step = 50 * time.Millisecond
	for d > 0 {
		s := step
		if d < s {
			s = d
		}
		h.clock.Advance(s)
		h.drain()
		d -= s
	}
}

// awaitReply blocks until the in-flight chat request has been handled.
func (h *harness) awaitReply() {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for h.o.State() == StateAwaitingResponse {
		select {
		case ev := <-h.o.events:
			h.o.handle(ev)
			h.checkExclusive()
		case <-deadline:
			h.t.Fatal("Timed out waiting for chat completion")
		}
	}
	h.drain()
}

func (h *harness) checkExclusive() {
	h.t.Helper()
	g := h.o.gates
	active := 0
	for _, on := range []bool{g.Listening(), g.Speaking(), g.AwaitingResponse()} {
		if on {
			active++
		}
	}
	if active > 1 {
		h.t.Fatalf("Expected at most one of listening/speaking/awaiting, got %+v", g.Snapshot())
	}
}

// greet performs the device hello and acknowledges the first listen.
func (h *harness) greet() {
	h.t.Helper()
	h.send(DeviceHello{Recognition: true, Synthesis: true})
	h.advance(StartupDelay)
	if h.dev.starts == 0 {
		h.t.Fatal("Expected listening armed after startup delay")
	}
	h.send(RecognitionStarted{})
}

// say delivers a final fragment and lets the silence window elapse.
func (h *harness) say(text string) {
	h.t.Helper()
	h.send(RecognitionResult{Fragments: []voice.Fragment{{Text: text, Final: true}}})
	h.advance(voice.DebounceDelay)
	h.awaitReply()
}

// finishPlayback acknowledges start and end of the latest playback.
func (h *harness) finishPlayback() {
	h.t.Helper()
	id := h.dev.lastSpeakID()
	h.send(SynthesisStarted{ID: id})
	h.send(SynthesisEnded{ID: id})
}

func pairs(n int) []domain.Message {
	var history []domain.Message
	for i := 1; i <= n; i++ {
		history = append(history,
			domain.UserMessage(fmt.Sprintf("Answer %d", i)),
			domain.AssistantMessage(fmt.Sprintf("Question %d", i+1)),
		)
	}
	return history
}

// waitRequests blocks until the chat fake has seen n requests.
func (h *harness) waitRequests(n int) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.chat.count() < n {
		if time.Now().After(deadline) {
			h.t.Fatalf("Timed out waiting for %d chat requests", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
