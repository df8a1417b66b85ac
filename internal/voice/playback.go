package voice

import (
	"log/slog"
	"time"
)

// FallbackDuration is how long the mouth overlay runs when the device has no
// speech synthesis.
const FallbackDuration = 3000 * time.Millisecond

// PlaybackHooks are the two terminal actions of a playback. Exactly one runs
// per playback.
type PlaybackHooks struct {
	// Terminate runs after a final playback.
	Terminate func()
	// Rearmed runs after a non-final playback, before listening restarts.
	Rearmed func()
}

// PlaybackConfig wires a Playback to its collaborators.
type PlaybackConfig struct {
	Synthesizer Synthesizer
	Animator    Animator
	Listener    *Listener
	Scheduler   Scheduler
	Sink        Sink
	Hooks       PlaybackHooks
	Logger      *slog.Logger
}

type playbackRun struct {
	id       uint64
	final    bool
	started  bool
	done     bool
	fallback Timer
}

// Playback speaks replies and drives the mouth overlay in lockstep.
type Playback struct {
	gates    *Gates
	synth    Synthesizer
	anim     Animator
	listener *Listener
	sched    Scheduler
	sink     Sink
	hooks    PlaybackHooks
	logger   *slog.Logger

	available     bool
	catalog       []Voice
	voice         *Voice
	voiceResolved bool

	seq     uint64
	current *playbackRun
}

// NewPlayback creates a playback controller over the shared gates.
func NewPlayback(gates *Gates, cfg PlaybackConfig) *Playback {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Playback{
		gates:    gates,
		synth:    cfg.Synthesizer,
		anim:     cfg.Animator,
		listener: cfg.Listener,
		sched:    cfg.Scheduler,
		sink:     cfg.Sink,
		hooks:    cfg.Hooks,
		logger:   logger,
	}
}

// SetCatalog records the device's synthesis support and voice list and
// recomputes the selected voice.
func (p *Playback) SetCatalog(available bool, voices []Voice) {
	p.available = available
	p.catalog = append([]Voice(nil), voices...)
	p.resolveVoice()
}

// Voice returns the selected voice, or nil for the device default.
func (p *Playback) Voice() *Voice {
	return p.voice
}

// Active reports whether a playback is in progress.
func (p *Playback) Active() bool {
	return p.current != nil && !p.current.done
}

// Speak plays text and returns the playback id. final marks the session's
// last reply. The speaking gate is claimed immediately so that listening
// cannot resume before the device reports the start.
func (p *Playback) Speak(text string, final bool) uint64 {
	p.synth.Cancel()
	p.retire()

	p.seq++
	run := &playbackRun{id: p.seq, final: final}
	p.current = run

	p.gates.setSpeaking(true)
	p.listener.Stop()

	if !p.available {
		p.logger.Info("Speech synthesis unavailable, simulating playback", "playback_id", run.id)
		run.started = true
		p.anim.StartMouth()
		p.sink.Status(StatusSpeaking)
		run.fallback = p.sched.AfterFunc(FallbackDuration, func() { p.finish(run.id) })
		return run.id
	}

	if !p.voiceResolved {
		p.resolveVoice()
	}
	if err := p.synth.Speak(run.id, text, p.voice); err != nil {
		p.logger.Warn("Speech synthesis request failed", "playback_id", run.id, "error", err)
		p.finish(run.id)
	}
	return run.id
}

// HandleStarted processes the synthesis start event.
func (p *Playback) HandleStarted(id uint64) {
	run := p.lookup(id)
	if run == nil || run.started {
		return
	}
	run.started = true
	p.gates.setSpeaking(true)
	p.listener.Stop()
	p.anim.StartMouth()
	p.sink.Status(StatusSpeaking)
}

// HandleEnded processes the synthesis end event.
func (p *Playback) HandleEnded(id uint64) {
	p.finish(id)
}

// HandleFailed processes a synthesis error. It ends the turn the same way a
// normal end does.
func (p *Playback) HandleFailed(id uint64, code string) {
	if p.lookup(id) != nil {
		p.logger.Warn("Speech synthesis error", "playback_id", id, "code", code)
	}
	p.finish(id)
}

// Cancel silences any playback without running a terminal action.
func (p *Playback) Cancel() {
	p.retire()
	p.synth.Cancel()
	p.gates.setSpeaking(false)
	p.anim.StopMouth()
}

func (p *Playback) lookup(id uint64) *playbackRun {
	run := p.current
	if run == nil || run.id != id || run.done {
		return nil
	}
	return run
}

func (p *Playback) finish(id uint64) {
	run := p.lookup(id)
	if run == nil {
		return
	}
	run.done = true
	stopTimer(run.fallback)

	p.gates.setSpeaking(false)
	p.anim.StopMouth()

	if run.final {
		if p.hooks.Terminate != nil {
			p.hooks.Terminate()
		}
		return
	}
	if p.hooks.Rearmed != nil {
		p.hooks.Rearmed()
	}
	p.listener.Start()
}

// retire drops the current playback without a terminal action; the caller
// takes over the floor.
func (p *Playback) retire() {
	if p.current == nil || p.current.done {
		return
	}
	p.current.done = true
	stopTimer(p.current.fallback)
}

func (p *Playback) resolveVoice() {
	if len(p.catalog) == 0 {
		p.voice = nil
		p.voiceResolved = false
		return
	}
	p.voice = SelectVoice(p.catalog)
	p.voiceResolved = true
	name := "default"
	if p.voice != nil {
		name = p.voice.Name
	}
	p.logger.Debug("Voice selected", "voice", name)
}
