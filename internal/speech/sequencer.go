package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keshucs12345/callsim/internal/clock"
	"github.com/keshucs12345/callsim/internal/persona"
)

// DefaultPause is the silence between two lines.
const DefaultPause = 1500 * time.Millisecond

// Sequencer speaks a script one line at a time. A Sequencer serves a single
// call: once StopAll has been called it never speaks again.
type Sequencer struct {
	synth    Synthesizer
	clock    clock.Clock
	pause    time.Duration
	language string
	logger   *slog.Logger

	mu      sync.Mutex
	stopped bool
	nextID  uint64
	cancels map[uint64]context.CancelFunc
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the clock timing the pause between lines.
func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithPause sets the pause between lines. Zero or less disables it.
func WithPause(d time.Duration) Option {
	return func(s *Sequencer) { s.pause = d }
}

// WithLanguage sets the language prefix used when no preferred voice is
// available, e.g. "en".
func WithLanguage(lang string) Option {
	return func(s *Sequencer) { s.language = lang }
}

// NewSequencer returns a Sequencer speaking through synth. A nil synth
// speaks silently.
func NewSequencer(synth Synthesizer, logger *slog.Logger, opts ...Option) *Sequencer {
	if synth == nil {
		synth = Silent{}
	}
	s := &Sequencer{
		synth:    synth,
		clock:    clock.Real(),
		pause:    DefaultPause,
		language: "en",
		logger:   logger.With("subsystem", "speech"),
		cancels:  make(map[uint64]context.CancelFunc),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak speaks lines in order with the voice of p. onLineStart, if not
// nil, is called with each line's index just before it is spoken.
//
// Speak returns the context error once ctx is done or StopAll is called,
// without starting any further line. A line that fails to synthesize is
// logged and treated as spoken.
func (s *Sequencer) Speak(ctx context.Context, lines []string, p persona.Persona, onLineStart func(i int, line string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	id, ok := s.track(cancel)
	if !ok {
		return context.Canceled
	}
	defer s.untrack(id)

	vp := ProfileFor(p)
	voice, _ := SelectVoice(s.synth.Voices(), vp.Preferences, s.language)
	params := Params{Voice: voice, Pitch: vp.Pitch, Rate: vp.Rate}
	s.logger.Debug("speaking script", "persona", p, "lines", len(lines), "voice", voice.Name)

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onLineStart != nil {
			onLineStart(i, line)
		}
		if err := s.synth.Speak(ctx, line, params); err != nil && ctx.Err() == nil {
			s.logger.Warn("speech synthesis failed", "line", i, "error", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == len(lines)-1 || s.pause <= 0 {
			continue
		}
		if err := clock.Sleep(ctx, s.clock, s.pause); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) track(cancel context.CancelFunc) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, false
	}
	s.nextID++
	s.cancels[s.nextID] = cancel
	return s.nextID, true
}

func (s *Sequencer) untrack(id uint64) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// StopAll cancels every Speak in progress and cuts off the current
// utterance. It is idempotent.
func (s *Sequencer) StopAll() {
	s.mu.Lock()
	s.stopped = true
	for _, cancel := range s.cancels {
		cancel()
	}
	clear(s.cancels)
	s.mu.Unlock()

	s.synth.Stop()
}

// Stopped reports whether StopAll has been called.
func (s *Sequencer) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
