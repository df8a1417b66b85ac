package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/prepy-voice/internal/chat"
	"github.com/ashureev/prepy-voice/internal/conversation"
	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/voice"
)

const (
	// StartupDelay is the pause between the device hello and the first
	// listening attempt.
	StartupDelay = 500 * time.Millisecond

	eventQueueSize = 64
	storeTimeout   = 5 * time.Second

	unsupportedRecognitionNotice = "Speech recognition is not supported in this browser. Please use Chrome or Edge."
	chatFailureText              = "Could not reach the interviewer. Please try again."
	saveFailureText              = "Your session could not be saved for review."
	busyNotice                   = "Please wait for the interviewer to finish before sending."
)

// End reasons reported to the Observer.
const (
	EndReasonCompleted = "completed"
	EndReasonUser      = "user"
)

// Config wires an Orchestrator.
type Config struct {
	SessionID string
	UserID    string
	Session   *conversation.Session

	Device   Device
	UI       UI
	Chat     ChatClient
	Store    Store
	Observer Observer

	// ReviewPath is where the candidate is sent once the session ends.
	ReviewPath string
	// Clock defaults to voice.SystemScheduler.
	Clock  voice.Scheduler
	Policy voice.RetryPolicy
	Logger *slog.Logger
}

// Orchestrator is the turn-taking state machine of one practice session.
// All state is owned by the goroutine running Run; other goroutines
// interact only through Post.
type Orchestrator struct {
	id       string
	userID   string
	session  *conversation.Session
	ui       UI
	chat     ChatClient
	store    Store
	observer Observer
	review   string
	logger   *slog.Logger

	gates    *voice.Gates
	sched    *loopScheduler
	acc      *voice.Accumulator
	listener *voice.Listener
	playback *voice.Playback

	events chan Event
	done   chan struct{}
	ctx    context.Context

	state                State
	greeted              bool
	recognitionAvailable bool
	startup              voice.Timer
	chatSeq              uint64
	cancelChat           context.CancelFunc
}

// New creates an orchestrator. It does nothing until Run is called and the
// device says hello.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", cfg.SessionID)

	clock := cfg.Clock
	if clock == nil {
		clock = voice.SystemScheduler{}
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	policy := cfg.Policy
	if policy == (voice.RetryPolicy{}) {
		policy = voice.DefaultRetryPolicy()
	}

	o := &Orchestrator{
		id:                   cfg.SessionID,
		userID:               cfg.UserID,
		session:              cfg.Session,
		ui:                   cfg.UI,
		chat:                 cfg.Chat,
		store:                cfg.Store,
		observer:             observer,
		review:               cfg.ReviewPath,
		logger:               logger,
		gates:                voice.NewGates(),
		events:               make(chan Event, eventQueueSize),
		done:                 make(chan struct{}),
		ctx:                  context.Background(),
		state:                StateUserTurn,
		recognitionAvailable: true,
	}
	o.sched = &loopScheduler{clock: clock, post: o.Post}
	o.acc = voice.NewAccumulator(o.sched, cfg.UI, o.submit)
	o.listener = voice.NewListener(o.gates, voice.ListenerConfig{
		Recognizer:  cfg.Device,
		Accumulator: o.acc,
		Scheduler:   o.sched,
		Sink:        cfg.UI,
		Policy:      policy,
		Logger:      logger,
		OnError:     observer.RecognitionError,
	})
	o.playback = voice.NewPlayback(o.gates, voice.PlaybackConfig{
		Synthesizer: cfg.Device,
		Animator:    cfg.Device,
		Listener:    o.listener,
		Scheduler:   o.sched,
		Sink:        cfg.UI,
		Logger:      logger,
		Hooks: voice.PlaybackHooks{
			Terminate: func() { o.end(EndReasonCompleted) },
			Rearmed:   o.rearmed,
		},
	})
	return o
}

// Post queues an event. It blocks while the queue is full and reports false
// once the loop has exited.
func (o *Orchestrator) Post(ev Event) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		return false
	}
}

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Run drains the event queue until the session ends or ctx is cancelled.
// It returns nil after a normal end.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	defer close(o.done)
	defer o.shutdown()

	o.logger.Info("Practice loop started", "turns", o.session.Turns(), "history", o.session.Len())
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Practice loop stopped", "state", o.state.String(), "reason", ctx.Err())
			return ctx.Err()
		case ev := <-o.events:
			o.handle(ev)
			if o.state == StateEnded {
				return nil
			}
		}
	}
}

func (o *Orchestrator) shutdown() {
	if o.cancelChat != nil {
		o.cancelChat()
		o.cancelChat = nil
	}
	stopTimer(o.startup)
	o.acc.Cancel()
}

func (o *Orchestrator) handle(ev Event) {
	if o.state == StateEnded {
		return
	}
	switch e := ev.(type) {
	case DeviceHello:
		o.hello(e)
	case VoicesChanged:
		o.playback.SetCatalog(e.Synthesis, e.Voices)
	case RecognitionStarted:
		o.listener.HandleStarted()
	case RecognitionResult:
		o.listener.HandleResult(e.Fragments)
	case RecognitionError:
		o.listener.HandleError(e.Code)
	case RecognitionEnded:
		o.listener.HandleEnd()
	case SynthesisStarted:
		o.playback.HandleStarted(e.ID)
	case SynthesisEnded:
		o.playback.HandleEnded(e.ID)
	case SynthesisFailed:
		o.playback.HandleFailed(e.ID, e.Code)
	case MicToggled:
		o.toggleMic()
	case SendRequested:
		o.submit(e.Text)
	case EndRequested:
		if !e.Confirmed {
			o.logger.Debug("Unconfirmed end request ignored")
			return
		}
		o.end(EndReasonUser)
	case chatCompleted:
		o.chatDone(e)
	case timerFired:
		e.timer.fire()
	default:
		o.logger.Warn("Unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (o *Orchestrator) hello(e DeviceHello) {
	o.playback.SetCatalog(e.Synthesis, e.Voices)
	if o.greeted {
		return
	}
	o.greeted = true
	o.recognitionAvailable = e.Recognition
	o.listener.SetSupported(e.Recognition)
	if !e.Recognition {
		o.ui.Notice(unsupportedRecognitionNotice)
	}

	// A send that raced ahead of the hello already owns the turn.
	if o.state != StateUserTurn || o.gates.AwaitingResponse() {
		o.logger.Info("Device joined mid-turn", "state", o.state.String())
		return
	}

	for _, msg := range o.session.History() {
		o.ui.Message(msg.Role, msg.Content)
	}

	if last, ok := o.session.Last(); ok && last.Role == domain.RoleAssistant {
		o.logger.Info("Replaying last reply", "turns", o.session.Turns())
		o.state = StateAITurn
		o.playback.Speak(last.Content, o.session.Terminal())
		return
	}

	o.state = StateUserTurn
	if o.recognitionAvailable {
		o.startup = o.sched.AfterFunc(StartupDelay, func() {
			o.startup = nil
			o.listener.Start()
		})
	}
}

func (o *Orchestrator) toggleMic() {
	if !o.recognitionAvailable {
		o.ui.Notice(unsupportedRecognitionNotice)
		return
	}
	muted := o.listener.ToggleMute()
	o.logger.Info("Microphone toggled", "muted", muted)
}

// submit starts a user turn. It is the single entry point for both the
// debounced utterance and an explicit send.
func (o *Orchestrator) submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.state != StateUserTurn {
		o.logger.Warn("Send ignored outside the user turn", "state", o.state.String())
		if o.state != StateEnded {
			o.ui.Notice(busyNotice)
		}
		return
	}

	o.gates.SetAwaitingResponse(true)
	o.listener.Stop()
	o.acc.Reset()
	stopTimer(o.startup)
	o.startup = nil

	turn := o.session.AppendUser(text)
	final := o.session.Terminal()
	o.state = StateAwaitingResponse

	o.ui.Preview("")
	o.ui.Message(domain.RoleUser, text)
	o.ui.Loading(true)
	o.observer.UserTurn(turn, text, final)
	o.logger.Info("Turn sent", "turn", turn, "final", final)

	data := o.session.Data()
	req := chat.Request{
		Message:       text,
		History:       o.session.History(),
		SystemPrompt:  data.SystemPrompt,
		ExtractedText: data.ExtractedText,
		IsFinalTurn:   final,
	}

	o.chatSeq++
	seq := o.chatSeq
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancelChat = cancel
	go func() {
		start := time.Now()
		resp, err := o.chat.Chat(ctx, req)
		o.Post(chatCompleted{seq: seq, resp: resp, err: err, latency: time.Since(start)})
	}()
}

func (o *Orchestrator) chatDone(e chatCompleted) {
	if e.seq != o.chatSeq || o.state != StateAwaitingResponse {
		return
	}
	if o.cancelChat != nil {
		o.cancelChat()
		o.cancelChat = nil
	}

	o.gates.SetAwaitingResponse(false)
	o.ui.Loading(false)
	turn := o.session.Turns()

	if e.err != nil {
		o.logger.Warn("Turn failed", "turn", turn, "error", e.err)
		o.observer.TurnFailed(turn, e.err)
		o.ui.Error(failureText(e.err))
		o.state = StateUserTurn
		o.listener.Start()
		return
	}

	o.session.ReplaceHistory(e.resp.History)
	o.ui.Message(domain.RoleAssistant, e.resp.Message)
	o.observer.AssistantTurn(turn, e.resp.Message, e.latency)
	o.logger.Info("Turn answered", "turn", turn, "latency", e.latency)
	o.checkpoint()

	o.state = StateAITurn
	o.playback.Speak(e.resp.Message, o.session.Terminal())
}

func (o *Orchestrator) rearmed() {
	if o.state == StateAITurn {
		o.state = StateUserTurn
	}
}

func (o *Orchestrator) checkpoint() {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(o.ctx, storeTimeout)
	defer cancel()
	if err := o.store.CheckpointHistory(ctx, o.id, o.session.History()); err != nil {
		o.logger.Error("Failed to checkpoint session", "error", err)
	}
}

func (o *Orchestrator) end(reason string) {
	if o.state == StateEnded {
		return
	}
	prev := o.state
	o.state = StateEnded
	o.gates.Close()

	stopTimer(o.startup)
	o.startup = nil
	if o.cancelChat != nil {
		o.cancelChat()
		o.cancelChat = nil
	}
	o.listener.Stop()
	o.acc.Reset()
	if prev == StateAwaitingResponse {
		o.gates.SetAwaitingResponse(false)
		o.ui.Loading(false)
	}
	if reason != EndReasonCompleted {
		o.playback.Cancel()
	}

	o.logger.Info("Practice session ended", "reason", reason, "turns", o.session.Turns())
	o.observer.SessionEnded(o.session.Turns(), reason)

	if o.store != nil {
		review := &domain.Review{
			SessionID:           o.id,
			UserID:              o.userID,
			ConversationHistory: o.session.History(),
			Metadata:            domain.MetadataFor(o.session.Data()),
			CreatedAt:           time.Now().UTC(),
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), storeTimeout)
		defer cancel()
		if err := o.store.CompleteSession(ctx, review); err != nil {
			o.logger.Error("Failed to save session for review", "error", err)
			o.ui.Error(saveFailureText)
		}
	}
	o.ui.Navigate(o.reviewURL())
}

func (o *Orchestrator) reviewURL() string {
	q := url.Values{}
	q.Set("session_id", o.id)
	return o.review + "?" + q.Encode()
}

// State returns the current state. It must be called from the loop.
func (o *Orchestrator) State() State {
	return o.state
}

func failureText(err error) string {
	var remote *chat.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return "Error: " + remote.Message
	}
	return chatFailureText
}

func stopTimer(t voice.Timer) {
	if t != nil {
		t.Stop()
	}
}
