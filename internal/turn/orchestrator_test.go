package turn

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/prepy-voice/internal/chat"
	"github.com/ashureev/prepy-voice/internal/conversation"
	"github.com/ashureev/prepy-voice/internal/domain"
	"github.com/ashureev/prepy-voice/internal/voice"
)

func TestOrchestrator_FirstTurnRearmsListening(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.greet()

	h.say("Tell me about yourself")

	req := h.chat.lastRequest()
	if req.Message != "Tell me about yourself" {
		t.Errorf("Expected utterance sent, got %q", req.Message)
	}
	if req.IsFinalTurn {
		t.Error("Expected is_final_turn=false on turn 1")
	}
	if len(req.History) != 1 || req.History[0].Role != domain.RoleUser {
		t.Errorf("Expected history with the new user message, got %+v", req.History)
	}
	if req.SystemPrompt != "You are an interviewer." {
		t.Errorf("Expected system prompt forwarded, got %q", req.SystemPrompt)
	}
	if h.sess.Turns() != 1 {
		t.Errorf("Expected 1 turn, got %d", h.sess.Turns())
	}
	if h.sess.Len() != 2 {
		t.Errorf("Expected server history adopted, got %d messages", h.sess.Len())
	}
	if h.o.State() != StateAITurn || !h.o.gates.Speaking() {
		t.Fatalf("Expected AI turn with speaking gate, got %s", h.o.State())
	}
	if len(h.store.checkpoints) != 1 {
		t.Errorf("Expected one checkpoint, got %d", len(h.store.checkpoints))
	}

	startsBefore := h.dev.starts
	h.finishPlayback()

	if h.o.State() != StateUserTurn {
		t.Errorf("Expected user turn after playback, got %s", h.o.State())
	}
	if h.dev.starts != startsBefore+1 {
		t.Errorf("Expected listening re-armed once, got %d new starts", h.dev.starts-startsBefore)
	}
	if len(h.ui.navigate) != 0 {
		t.Errorf("Expected no navigation, got %v", h.ui.navigate)
	}
}

func TestOrchestrator_FinalTurnEndsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, conversation.Resume(domain.SessionData{PrepType: "hackathon"}, pairs(4)))

	h.send(DeviceHello{Recognition: true, Synthesis: true})
	if h.o.State() != StateAITurn {
		t.Fatalf("Expected replay of the last reply, got %s", h.o.State())
	}
	h.finishPlayback()
	if h.o.State() != StateUserTurn {
		t.Fatalf("Expected user turn after replay, got %s", h.o.State())
	}

	h.send(SendRequested{Text: "My final answer"})
	h.awaitReply()

	if !h.chat.lastRequest().IsFinalTurn {
		t.Error("Expected is_final_turn=true on turn 5")
	}
	if h.sess.Turns() != conversation.MaxTurns {
		t.Errorf("Expected %d turns, got %d", conversation.MaxTurns, h.sess.Turns())
	}

	h.finishPlayback()

	if h.o.State() != StateEnded {
		t.Fatalf("Expected ended, got %s", h.o.State())
	}
	if len(h.store.reviews) != 1 {
		t.Fatalf("Expected one review, got %d", len(h.store.reviews))
	}
	review := h.store.reviews[0]
	if len(review.ConversationHistory) != 10 {
		t.Errorf("Expected full history in review, got %d messages", len(review.ConversationHistory))
	}
	if review.Metadata.PrepType != "hackathon" || review.Metadata.JobRole != domain.DefaultJobRole {
		t.Errorf("Unexpected review metadata %+v", review.Metadata)
	}
	if review.UserID != "user-1" {
		t.Errorf("Expected owner recorded, got %q", review.UserID)
	}
	if len(h.ui.navigate) != 1 || h.ui.navigate[0] != "/review?session_id=sess-1" {
		t.Errorf("Expected navigation to review, got %v", h.ui.navigate)
	}
	if h.obs.ended[0] != EndReasonCompleted {
		t.Errorf("Expected completed reason, got %v", h.obs.ended)
	}
}

func TestOrchestrator_ChatFailureReturnsToUserTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.chat.reply = func(chat.Request) (*chat.Response, error) { return nil, errNetworkDown }
	h.greet()
	startsBefore := h.dev.starts

	h.say("Hello there")

	if h.o.State() != StateUserTurn {
		t.Fatalf("Expected user turn after failure, got %s", h.o.State())
	}
	if len(h.ui.errors) != 1 {
		t.Errorf("Expected one inline error, got %v", h.ui.errors)
	}
	if h.sess.Turns() != 1 {
		t.Errorf("Expected turn counter kept at 1, got %d", h.sess.Turns())
	}
	if last, _ := h.sess.Last(); last.Role != domain.RoleUser || last.Content != "Hello there" {
		t.Errorf("Expected unacknowledged user message kept, got %+v", last)
	}
	if h.ui.loadingOn() {
		t.Error("Expected loading hidden")
	}
	if h.dev.starts != startsBefore+1 {
		t.Errorf("Expected listening restarted, got %d new starts", h.dev.starts-startsBefore)
	}
	if h.obs.failed != 1 {
		t.Errorf("Expected failure observed, got %d", h.obs.failed)
	}
}

func TestOrchestrator_RemoteErrorShownToUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.chat.reply = func(chat.Request) (*chat.Response, error) {
		return nil, &chat.RemoteError{Message: "model offline"}
	}
	h.greet()

	h.say("Hello")

	if len(h.ui.errors) != 1 || !strings.Contains(h.ui.errors[0], "model offline") {
		t.Errorf("Expected remote message in error, got %v", h.ui.errors)
	}
}

func TestOrchestrator_PermissionDeniedStopsRetrying(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.greet()

	h.send(RecognitionError{Code: "not-allowed"})
	h.send(RecognitionEnded{})
	h.advance(5 * time.Second)

	if h.dev.starts != 1 {
		t.Errorf("Expected no automatic restart, got %d starts", h.dev.starts)
	}
	if !h.o.gates.Muted() {
		t.Error("Expected microphone muted")
	}
	if len(h.ui.notices) != 1 {
		t.Errorf("Expected one notice, got %v", h.ui.notices)
	}
	if len(h.obs.errors) != 1 || h.obs.errors[0] != voice.ErrorPermissionDenied {
		t.Errorf("Expected permission error observed, got %v", h.obs.errors)
	}

	h.send(MicToggled{})
	if h.dev.starts != 2 {
		t.Errorf("Expected manual unmute to start listening, got %d starts", h.dev.starts)
	}
}

func TestOrchestrator_NoListeningWhileAwaiting(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.chat.block = make(chan struct{})
	h.greet()

	h.send(RecognitionResult{Fragments: []voice.Fragment{{Text: "Hi", Final: true}}})
	h.advance(voice.DebounceDelay)
	if h.o.State() != StateAwaitingResponse {
		t.Fatalf("Expected awaiting response, got %s", h.o.State())
	}
	h.waitRequests(1)
	startsBefore := h.dev.starts

	// A late device end must not restart recognition mid-request.
	h.send(RecognitionEnded{})
	h.advance(2 * time.Second)
	h.send(SendRequested{Text: "Another message"})

	if h.dev.starts != startsBefore {
		t.Errorf("Expected no restart while awaiting, got %d new starts", h.dev.starts-startsBefore)
	}
	if h.chat.count() != 1 {
		t.Errorf("Expected send ignored while awaiting, got %d requests", h.chat.count())
	}

	close(h.chat.block)
	h.awaitReply()
	if h.o.State() != StateAITurn {
		t.Errorf("Expected AI turn, got %s", h.o.State())
	}
}

func TestOrchestrator_SendBeforeHelloKeepsTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.chat.block = make(chan struct{})

	h.send(SendRequested{Text: "Tell me about yourself"})
	h.waitRequests(1)
	h.send(DeviceHello{Recognition: true, Synthesis: true})

	if h.o.State() != StateAwaitingResponse || !h.o.gates.AwaitingResponse() {
		t.Fatalf("Expected the hello to leave the request in flight, got %s", h.o.State())
	}
	if len(h.ui.messages) != 1 {
		t.Errorf("Expected the user message rendered once, got %d", len(h.ui.messages))
	}

	close(h.chat.block)
	h.awaitReply()
	if h.o.State() != StateAITurn || len(h.dev.spoken) != 1 {
		t.Fatalf("Expected the reply spoken, got state %s and %d utterances", h.o.State(), len(h.dev.spoken))
	}
	if len(h.store.checkpoints) != 1 {
		t.Errorf("Expected one checkpoint, got %d", len(h.store.checkpoints))
	}

	startsBefore := h.dev.starts
	h.finishPlayback()
	h.advance(time.Second)
	if h.o.State() != StateUserTurn || h.dev.starts <= startsBefore {
		t.Errorf("Expected listening re-armed, got state %s and %d new starts", h.o.State(), h.dev.starts-startsBefore)
	}
}

func TestOrchestrator_SendWhileBusyNotifies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.chat.block = make(chan struct{})
	h.greet()

	h.send(SendRequested{Text: "First answer"})
	h.waitRequests(1)
	h.send(SendRequested{Text: "Second answer"})

	if len(h.ui.notices) == 0 || h.ui.notices[len(h.ui.notices)-1] != busyNotice {
		t.Errorf("Expected busy notice, got %v", h.ui.notices)
	}
	if h.chat.count() != 1 {
		t.Errorf("Expected second send dropped, got %d requests", h.chat.count())
	}

	close(h.chat.block)
	h.awaitReply()
	h.send(SendRequested{Text: "Third answer"})
	if n := len(h.ui.notices); n < 2 || h.ui.notices[n-1] != busyNotice {
		t.Errorf("Expected busy notice during playback, got %v", h.ui.notices)
	}
}

func TestOrchestrator_ExplicitSendClearsPendingUtterance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.greet()

	h.send(RecognitionResult{Fragments: []voice.Fragment{{Text: "half a", Final: true}}})
	h.send(SendRequested{Text: "typed answer"})
	h.awaitReply()
	h.finishPlayback()
	h.advance(voice.DebounceDelay * 2)

	if h.chat.count() != 1 {
		t.Errorf("Expected only the typed message sent, got %d requests", h.chat.count())
	}
	if h.chat.lastRequest().Message != "typed answer" {
		t.Errorf("Expected typed text, got %q", h.chat.lastRequest().Message)
	}
}

func TestOrchestrator_BlankSendIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.greet()

	h.send(SendRequested{Text: "   "})

	if h.o.State() != StateUserTurn || h.chat.count() != 0 {
		t.Errorf("Expected blank send ignored, got state %s and %d requests", h.o.State(), h.chat.count())
	}
}

func TestOrchestrator_ConfirmedEndWhileAwaiting(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.chat.block = make(chan struct{})
	h.greet()

	h.send(SendRequested{Text: "Hello"})
	h.send(EndRequested{Confirmed: false})
	if h.o.State() != StateAwaitingResponse {
		t.Fatalf("Expected unconfirmed end ignored, got %s", h.o.State())
	}

	h.send(EndRequested{Confirmed: true})

	if h.o.State() != StateEnded {
		t.Fatalf("Expected ended, got %s", h.o.State())
	}
	if h.ui.loadingOn() {
		t.Error("Expected loading hidden")
	}
	if len(h.store.reviews) != 1 || len(h.store.reviews[0].ConversationHistory) != 1 {
		t.Errorf("Expected review with the sent message, got %+v", h.store.reviews)
	}
	if h.obs.ended[0] != EndReasonUser {
		t.Errorf("Expected user reason, got %v", h.obs.ended)
	}

	// The cancelled request completes after the end and is ignored.
	h.drain()
	startsBefore := h.dev.starts
	h.advance(time.Second)
	if h.dev.starts != startsBefore || len(h.ui.navigate) != 1 {
		t.Errorf("Expected nothing after end, got starts=%d navigate=%v", h.dev.starts-startsBefore, h.ui.navigate)
	}
}

func TestOrchestrator_EndDuringPlaybackCancelsSpeech(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.greet()
	h.say("Hello")
	id := h.dev.lastSpeakID()
	h.send(SynthesisStarted{ID: id})

	h.send(EndRequested{Confirmed: true})
	h.send(SynthesisEnded{ID: id})

	if h.dev.mouth {
		t.Error("Expected mouth stopped")
	}
	if len(h.store.reviews) != 1 || len(h.ui.navigate) != 1 {
		t.Errorf("Expected exactly one review and navigation, got %d and %d", len(h.store.reviews), len(h.ui.navigate))
	}
}

func TestOrchestrator_SaveFailureStillNavigates(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.store.completeErr = errNetworkDown
	h.greet()

	h.send(EndRequested{Confirmed: true})

	if len(h.ui.errors) != 1 || len(h.ui.navigate) != 1 {
		t.Errorf("Expected error and navigation, got errors=%v navigate=%v", h.ui.errors, h.ui.navigate)
	}
}

func TestOrchestrator_ResumeTerminalReplayEnds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, conversation.Resume(domain.SessionData{}, pairs(5)))

	h.send(DeviceHello{Recognition: true, Synthesis: true})

	if len(h.ui.messages) != 10 {
		t.Errorf("Expected restored history rendered, got %d messages", len(h.ui.messages))
	}
	h.finishPlayback()

	if h.o.State() != StateEnded {
		t.Errorf("Expected terminal replay to end the session, got %s", h.o.State())
	}
	if h.dev.starts != 0 {
		t.Errorf("Expected no listening, got %d starts", h.dev.starts)
	}
}

func TestOrchestrator_ResumeAfterUserMessageListens(t *testing.T) {
	t.Parallel()
	history := append(pairs(2), domain.UserMessage("unanswered"))
	h := newHarness(t, conversation.Resume(domain.SessionData{}, history))

	h.send(DeviceHello{Recognition: true, Synthesis: true})
	if h.o.State() != StateUserTurn || len(h.dev.spoken) != 0 {
		t.Fatalf("Expected user turn without replay, got %s", h.o.State())
	}
	h.advance(StartupDelay)

	if h.dev.starts != 1 {
		t.Errorf("Expected listening after startup delay, got %d starts", h.dev.starts)
	}
}

func TestOrchestrator_UnsupportedRecognition(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.send(DeviceHello{Recognition: false, Synthesis: true})
	h.advance(time.Second)
	h.send(MicToggled{})

	if h.dev.starts != 0 {
		t.Errorf("Expected no recognition start, got %d", h.dev.starts)
	}
	if len(h.ui.notices) != 2 {
		t.Errorf("Expected notices on hello and toggle, got %v", h.ui.notices)
	}

	h.send(SendRequested{Text: "typed only"})
	h.awaitReply()
	if h.o.State() != StateAITurn {
		t.Errorf("Expected typed turn to work, got %s", h.o.State())
	}

	h.finishPlayback()
	h.advance(time.Second)
	if h.o.State() != StateUserTurn {
		t.Errorf("Expected user turn after playback, got %s", h.o.State())
	}
	if h.dev.starts != 0 {
		t.Errorf("Expected re-arm to skip an unsupported recognizer, got %d starts", h.dev.starts)
	}
}

func TestOrchestrator_DegradedPlayback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.send(DeviceHello{Recognition: true, Synthesis: false})
	h.advance(StartupDelay)
	h.send(RecognitionStarted{})

	h.say("Hello")
	if len(h.dev.spoken) != 0 || !h.dev.mouth {
		t.Fatalf("Expected simulated playback, got spoken=%v mouth=%v", h.dev.spoken, h.dev.mouth)
	}
	h.advance(voice.FallbackDuration)

	if h.o.State() != StateUserTurn || h.dev.mouth {
		t.Errorf("Expected user turn after simulated playback, got %s", h.o.State())
	}
}

func TestOrchestrator_StoppedTimerCallbackDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	fired := false
	timer := h.o.sched.AfterFunc(time.Second, func() { fired = true })

	h.clock.Advance(time.Second)
	timer.Stop()
	h.drain()

	if fired {
		t.Error("Expected queued callback of a stopped timer to be dropped")
	}
}

func TestOrchestrator_RunReturnsAfterEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	errc := make(chan error, 1)
	go func() { errc <- h.o.Run(context.Background()) }()

	if !h.o.Post(EndRequested{Confirmed: true}) {
		t.Fatal("Expected post to succeed")
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Run")
	}
	if h.o.Post(MicToggled{}) {
		t.Error("Expected post after exit to fail")
	}
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.o.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Run")
	}
	if len(h.store.reviews) != 0 {
		t.Error("Expected disconnect to keep the live record")
	}
}
