// Package call runs the lifecycle of a simulated incoming call: ringing,
// the answered conversation with its ambience and speech, and teardown.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keshucs12345/callsim/internal/ambient"
	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/clock"
	"github.com/keshucs12345/callsim/internal/dialogue"
	"github.com/keshucs12345/callsim/internal/events"
	"github.com/keshucs12345/callsim/internal/haptics"
	"github.com/keshucs12345/callsim/internal/persona"
	"github.com/keshucs12345/callsim/internal/ring"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/speech"
)

// DefaultAutoEndDelay is how long a call stays up after its last line.
const DefaultAutoEndDelay = 2 * time.Second

const tickInterval = time.Second

// Ringer plays the ring cadence. Stop must be idempotent and must not
// return while a tone or vibration can still fire.
type Ringer interface {
	Start()
	Stop()
}

// Ambience plays a background soundscape. Stop must be idempotent.
type Ambience interface {
	Start(p ambient.Profile)
	Stop()
}

// Speaker speaks a script. StopAll must be idempotent and cut off any
// utterance in progress.
type Speaker interface {
	Speak(ctx context.Context, lines []string, p persona.Persona, onLineStart func(i int, line string)) error
	StopAll()
}

// Publisher receives call events.
type Publisher interface {
	Publish(e events.Event)
}

// Config wires an Orchestrator. Every call gets fresh subsystems from the
// New* factories; nil factories produce silent defaults.
type Config struct {
	Generator dialogue.Generator
	Haptics   haptics.Haptics
	Clock     clock.Clock

	NewRinger   func() Ringer
	NewAmbience func() Ambience
	NewSpeaker  func() Speaker

	AutoEndDelay time.Duration

	// TargetDuration is the dialogue length requested for scenarios without
	// their own estimate. Zero means scenario.DefaultTargetDuration.
	TargetDuration time.Duration
}

// Orchestrator owns at most one call at a time.
type Orchestrator struct {
	cfg    Config
	pub    Publisher
	logger *slog.Logger

	mu      sync.Mutex
	session *session
	last    *Snapshot
	entropy *ulid.MonotonicEntropy

	wg sync.WaitGroup
}

// New returns an idle Orchestrator. A nil pub drops events.
func New(cfg Config, pub Publisher, logger *slog.Logger) *Orchestrator {
	logger = logger.With("subsystem", "call")
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Haptics == nil {
		cfg.Haptics = haptics.Nop
	}
	if cfg.Generator == nil {
		cfg.Generator = dialogue.Demo
	}
	if cfg.AutoEndDelay <= 0 {
		cfg.AutoEndDelay = DefaultAutoEndDelay
	}
	if cfg.NewRinger == nil {
		cfg.NewRinger = func() Ringer {
			return ring.New(audio.Discard, cfg.Haptics, logger, ring.WithClock(cfg.Clock))
		}
	}
	if cfg.NewAmbience == nil {
		cfg.NewAmbience = func() Ambience {
			return ambient.NewEngine(audio.Discard, logger, ambient.WithClock(cfg.Clock))
		}
	}
	if cfg.NewSpeaker == nil {
		cfg.NewSpeaker = func() Speaker {
			return speech.NewSequencer(speech.Silent{}, logger, speech.WithClock(cfg.Clock))
		}
	}
	if pub == nil {
		pub = discardPublisher{}
	}
	seed := cfg.Clock.Now().UnixNano()
	return &Orchestrator{
		cfg:     cfg,
		pub:     pub,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(events.Event) {}

// Start rings a new call for sc.
func (o *Orchestrator) Start(sc scenario.Scenario) (Snapshot, error) {
	if err := sc.Validate(); err != nil {
		return Snapshot{}, err
	}
	sc = sc.Normalized()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		return Snapshot{}, ErrSessionActive
	}

	now := o.cfg.Clock.Now()
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        ulid.MustNew(ulid.Timestamp(now), o.entropy).String(),
		scenario:  sc,
		state:     Incoming,
		startedAt: now,
		ctx:       ctx,
		cancel:    cancel,
		ringer:    o.cfg.NewRinger(),
		ambience:  o.cfg.NewAmbience(),
		speaker:   o.cfg.NewSpeaker(),
	}
	o.session = s
	o.last = nil

	o.logger.Info("call incoming", "session", s.id, "persona", sc.Persona, "urgency", sc.Urgency)
	o.publishState(s)
	s.ringer.Start()
	return s.snapshot(now), nil
}

// Answer picks up a ringing call. Ringing has fully stopped by the time
// Answer returns; the conversation continues in the background.
func (o *Orchestrator) Answer() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return o.noSessionError("answer")
	}
	if s.state != Incoming {
		return transitionError("answer", s.state)
	}

	s.ringer.Stop()
	s.state = Active
	s.answeredAt = o.cfg.Clock.Now()
	s.ticker = clock.Every(o.cfg.Clock, tickInterval, func() { o.tick(s) })

	o.logger.Info("call answered", "session", s.id)
	o.publishState(s)
	o.pulse(haptics.Medium)

	o.wg.Add(1)
	go o.converse(s)
	return nil
}

// Decline rejects a ringing call.
func (o *Orchestrator) Decline() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		return o.noSessionError("decline")
	}
	if s.state != Incoming {
		return transitionError("decline", s.state)
	}

	o.teardownLocked(s)
	o.finishLocked(s, Declined)
	return nil
}

// End hangs up a ringing or active call. When End returns, no ring tone,
// ambience, speech or haptic from the call will fire again. Ending a call
// that has already ended is a no-op.
func (o *Orchestrator) End() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s == nil {
		if o.last != nil {
			return nil
		}
		return o.noSessionError("end")
	}
	o.endLocked(s, HungUp)
	return nil
}

func (o *Orchestrator) endLocked(s *session, outcome Outcome) {
	o.teardownLocked(s)
	o.finishLocked(s, outcome)
	o.pulse(haptics.Light)
}

// teardownLocked stops everything the call started, in order: token,
// speech, ambience, ringing, timers.
func (o *Orchestrator) teardownLocked(s *session) {
	s.cancel()
	s.speaker.StopAll()
	s.ambience.Stop()
	s.ringer.Stop()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.autoEnd != nil {
		s.autoEnd.Stop()
	}
}

func (o *Orchestrator) finishLocked(s *session, outcome Outcome) {
	now := o.cfg.Clock.Now()
	s.elapsed = s.elapsedAt(now)
	s.state = Ended
	s.outcome = outcome
	s.endedAt = now

	o.logger.Info("call ended", "session", s.id, "outcome", outcome, "elapsed_seconds", s.elapsed)
	o.publishState(s)

	snap := s.snapshot(now)
	o.last = &snap
	o.session = nil
}

func (o *Orchestrator) noSessionError(op string) error {
	if o.last != nil {
		return transitionError(op, Ended)
	}
	return fmt.Errorf("%w: cannot %s, there is no call", ErrInvalidTransition, op)
}

// converse runs the answered call: ambience, script and speech.
func (o *Orchestrator) converse(s *session) {
	defer o.wg.Done()
	p := s.scenario.Persona

	if !o.whileActive(s, func() { s.ambience.Start(ambient.ProfileFor(p)) }) {
		return
	}

	target := s.scenario.TargetDuration()
	if s.scenario.EstimatedDuration <= 0 && o.cfg.TargetDuration > 0 {
		target = o.cfg.TargetDuration
	}
	script, err := o.cfg.Generator.Generate(s.ctx, dialogue.Request{
		Persona:        p,
		Situation:      s.scenario.Situation,
		Urgency:        s.scenario.Urgency,
		TargetDuration: target,
	})
	if s.ctx.Err() != nil {
		return
	}
	if err != nil {
		if dialogue.IsMissingCredential(err) {
			o.logger.Warn("dialogue service has no API key", "session", s.id)
			o.whileActive(s, func() {
				s.ambience.Stop()
				o.publish(s, events.Event{Type: events.MissingCredential})
			})
			return
		}
		o.logger.Warn("dialogue generation failed, using demo script", "session", s.id, "error", err)
		script = dialogue.DemoScript(p)
	}
	if lines := dialogue.Filter(script.Lines); len(lines) > 0 {
		script.Lines = lines
	} else {
		o.logger.Warn("generated script has no spoken lines, using demo script", "session", s.id)
		script = dialogue.DemoScript(p)
	}

	if !o.whileActive(s, func() {
		s.script = &script
		o.publish(s, events.Event{Type: events.ScriptReady, Source: string(script.Source), Lines: len(script.Lines)})
	}) {
		return
	}

	err = s.speaker.Speak(s.ctx, script.Lines, p, func(i int, line string) {
		o.whileActive(s, func() {
			s.currentLine = line
			o.publish(s, events.Event{Type: events.LineStarted, LineNumber: i + 1, Line: line})
		})
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Warn("speech stopped", "session", s.id, "error", err)
		}
		return
	}

	o.whileActive(s, func() {
		s.currentLine = ""
		s.autoEnd = o.cfg.Clock.AfterFunc(o.cfg.AutoEndDelay, func() { o.autoEnd(s) })
	})
}

// whileActive runs f under the lock if s is still the active call.
func (o *Orchestrator) whileActive(s *session, f func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != s || s.state != Active {
		return false
	}
	f()
	return true
}

func (o *Orchestrator) autoEnd(s *session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != s || s.state != Active {
		return
	}
	o.logger.Debug("dialogue finished, ending call", "session", s.id)
	o.endLocked(s, Completed)
}

func (o *Orchestrator) tick(s *session) {
	o.whileActive(s, func() {
		o.publish(s, events.Event{Type: events.Tick, ElapsedSeconds: s.elapsedAt(o.cfg.Clock.Now())})
	})
}

func (o *Orchestrator) publishState(s *session) {
	e := events.Event{Type: events.StateChanged, State: s.state.String()}
	if s.state == Ended {
		e.Outcome = s.outcome.String()
		e.ElapsedSeconds = s.elapsed
	}
	o.publish(s, e)
}

func (o *Orchestrator) publish(s *session, e events.Event) {
	e.SessionID = s.id
	e.Time = o.cfg.Clock.Now()
	o.pub.Publish(e)
}

func (o *Orchestrator) pulse(i haptics.Intensity) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("haptics pulse failed", "intensity", i.String(), "panic", r)
		}
	}()
	o.cfg.Haptics.Pulse(i)
}

// Current returns the call in progress, or the most recent call if none is
// in progress. It reports false if there has never been a call.
func (o *Orchestrator) Current() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		return o.session.snapshot(o.cfg.Clock.Now()), true
	}
	if o.last != nil {
		return *o.last, true
	}
	return Snapshot{}, false
}

// InCall reports whether a call is ringing or active.
func (o *Orchestrator) InCall() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil
}

// Close ends any call in progress and waits for its background work to
// finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if s := o.session; s != nil {
		o.endLocked(s, HungUp)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Wait blocks until the background work of every answered call has
// returned.
func (o *Orchestrator) Wait() { o.wg.Wait() }
