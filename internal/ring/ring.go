// Package ring plays the incoming-call ring tone and vibration cadence.
package ring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/clock"
	"github.com/keshucs12345/callsim/internal/haptics"
)

const (
	// DefaultToneGap is the wait between a ring tone and its vibration.
	DefaultToneGap = time.Second
	// DefaultCycleGap is the wait between a vibration and the next tone.
	DefaultCycleGap = 2 * time.Second
)

// Tone is the short beep played at the start of every ring cycle.
var Tone = audio.Tone{
	Waveform:  audio.Sine,
	Frequency: 800,
	Gain:      0.3,
	Duration:  500 * time.Millisecond,
	Decay:     true,
	Floor:     0.01,
}

// Controller rings until stopped. The zero value is not usable; use New.
type Controller struct {
	out      audio.Output
	haptics  haptics.Haptics
	clock    clock.Clock
	logger   *slog.Logger
	toneGap  time.Duration
	cycleGap time.Duration

	mu     sync.Mutex
	armed  bool
	cancel context.CancelFunc
	done   chan struct{}
	voice  audio.Voice
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock driving the ring cadence.
func WithClock(c clock.Clock) Option {
	return func(rc *Controller) { rc.clock = c }
}

// WithCadence overrides the tone-to-vibration and vibration-to-tone waits.
func WithCadence(toneGap, cycleGap time.Duration) Option {
	return func(rc *Controller) {
		rc.toneGap = toneGap
		rc.cycleGap = cycleGap
	}
}

// New returns a stopped Controller. A nil out or h is replaced by a no-op.
func New(out audio.Output, h haptics.Haptics, logger *slog.Logger, opts ...Option) *Controller {
	if out == nil {
		out = audio.Discard
	}
	if h == nil {
		h = haptics.Nop
	}
	c := &Controller{
		out:      out,
		haptics:  h,
		clock:    clock.Real(),
		logger:   logger.With("subsystem", "ring"),
		toneGap:  DefaultToneGap,
		cycleGap: DefaultCycleGap,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start fires a heavy pulse and begins the ring loop. Starting a ringing
// controller is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed {
		return
	}
	c.armed = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	c.haptics.Pulse(haptics.Heavy)
	c.logger.Debug("ringing started")
	go c.loop(ctx, c.done)
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if !c.fire(c.playTone) {
			return
		}
		if clock.Sleep(ctx, c.clock, c.toneGap) != nil {
			return
		}
		if !c.fire(func() { c.haptics.Pulse(haptics.Medium) }) {
			return
		}
		if clock.Sleep(ctx, c.clock, c.cycleGap) != nil {
			return
		}
	}
}

// fire runs f while holding the lock, and only if the controller is still
// armed, so nothing can sound once Stop has taken the lock.
func (c *Controller) fire(f func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("ring output failed", "panic", r)
		}
	}()
	f()
	return true
}

func (c *Controller) playTone() {
	c.voice = c.out.Play(Tone)
}

// Stop ends the ring loop and waits for it to exit. No tone or vibration
// fires after Stop returns. Stop is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return
	}
	c.armed = false
	c.cancel()
	done := c.done
	if c.voice != nil {
		c.voice.Stop()
		c.voice = nil
	}
	c.mu.Unlock()

	<-done
	c.logger.Debug("ringing stopped")
}

// Ringing reports whether the controller is running.
func (c *Controller) Ringing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}
