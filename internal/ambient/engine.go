package ambient

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/clock"
)

// Observer is told about every randomized event that plays.
type Observer func(env Environment, event string)

// Engine plays one soundscape at a time.
type Engine struct {
	out      audio.Output
	clock    clock.Clock
	rand     Rand
	observer Observer
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	run        uint64
	profile    Profile
	tickers    []*clock.Ticker
	drones     []audio.Voice
	transients []audio.Voice
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock driving event checks.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRand sets the randomness source. Calls are serialized by the engine.
func WithRand(r Rand) Option {
	return func(e *Engine) { e.rand = r }
}

// WithObserver registers a callback for played events.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine returns a stopped Engine. A nil out discards all sound.
func NewEngine(out audio.Output, logger *slog.Logger, opts ...Option) *Engine {
	if out == nil {
		out = audio.Discard
	}
	now := uint64(time.Now().UnixNano())
	e := &Engine{
		out:    out,
		clock:  clock.Real(),
		rand:   rand.New(rand.NewPCG(now, now>>1)),
		logger: logger.With("subsystem", "ambient"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start plays the soundscape for p, stopping any previous run first.
// Volume is clamped to [0, 1]. The None environment plays nothing.
func (e *Engine) Start(p Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	if math.IsNaN(p.Volume) {
		p.Volume = 0
	}
	p.Volume = min(max(p.Volume, 0), 1)
	e.profile = p

	scape, ok := soundscapes[p.Environment]
	if !ok {
		if p.Environment != None {
			e.logger.Warn("unknown environment, ambience disabled", "environment", p.Environment)
		}
		return
	}

	e.running = true
	run := e.run
	master := scape.mix * p.Volume
	for _, d := range scape.drones {
		t := d.tone(e.rand)
		t.Gain *= master
		if v := e.playLocked(t); v != nil {
			e.drones = append(e.drones, v)
		}
	}
	for _, ev := range scape.events {
		e.tickers = append(e.tickers, clock.Every(e.clock, ev.interval, func() {
			e.check(run, p.Environment, ev, master)
		}))
	}
	e.logger.Debug("ambience started", "environment", p.Environment, "volume", p.Volume,
		"drones", len(e.drones), "generators", len(e.tickers))
}

func (e *Engine) check(run uint64, env Environment, ev event, master float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.run != run {
		return
	}
	if e.rand.Float64() >= ev.probability {
		return
	}

	e.pruneLocked()
	for _, t := range ev.sounds(e.rand) {
		t.Gain *= master
		if v := e.playLocked(t); v != nil {
			e.transients = append(e.transients, v)
		}
	}
	if e.observer != nil {
		e.observer(env, ev.name)
	}
}

func (e *Engine) playLocked(t audio.Tone) (v audio.Voice) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("ambient output failed", "panic", r)
			v = nil
		}
	}()
	return e.out.Play(t)
}

// pruneLocked forgets transient voices that have already finished.
func (e *Engine) pruneLocked() {
	live := e.transients[:0]
	for _, v := range e.transients {
		if !audio.Finished(v) {
			live = append(live, v)
		}
	}
	clear(e.transients[len(live):])
	e.transients = live
}

// Stop silences the drones, stops every event generator and cuts any event
// still sounding. No event fires after Stop returns. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.logger.Debug("ambience stopped", "environment", e.profile.Environment)
	}
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.running = false
	e.run++
	for _, tk := range e.tickers {
		tk.Stop()
	}
	for _, v := range e.drones {
		v.Stop()
	}
	for _, v := range e.transients {
		v.Stop()
	}
	e.tickers = nil
	e.drones = nil
	e.transients = nil
}

// Running reports whether a soundscape is playing.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Profile returns the profile of the most recent Start, with volume clamped.
func (e *Engine) Profile() Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}
