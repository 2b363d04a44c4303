// Package haptics delivers fire-and-forget vibration pulses.
package haptics

import (
	"log/slog"
	"sync"
)

// Intensity is the strength of a pulse.
type Intensity int

const (
	Light Intensity = iota
	Medium
	Heavy
)

func (i Intensity) String() string {
	switch i {
	case Light:
		return "light"
	case Medium:
		return "medium"
	case Heavy:
		return "heavy"
	}
	return "unknown"
}

// Haptics fires a pulse. Implementations must not block for long and must
// swallow their own failures.
type Haptics interface {
	Pulse(i Intensity)
}

// Func adapts a function to Haptics.
type Func func(Intensity)

func (f Func) Pulse(i Intensity) { f(i) }

// Nop discards every pulse.
var Nop Haptics = Func(func(Intensity) {})

// Multi fans a pulse out to several devices. A panicking device does not
// stop the others.
func Multi(logger *slog.Logger, hs ...Haptics) Haptics {
	return Func(func(i Intensity) {
		for _, h := range hs {
			safePulse(logger, h, i)
		}
	})
}

func safePulse(logger *slog.Logger, h Haptics, i Intensity) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("haptics pulse failed", "intensity", i.String(), "panic", r)
		}
	}()
	h.Pulse(i)
}

// Log writes each pulse to a logger. It stands in for a vibration motor on
// hosts that have none.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log haptics device.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("subsystem", "haptics")}
}

func (l *Log) Pulse(i Intensity) {
	l.logger.Debug("pulse", "intensity", i.String())
}

// Recorder keeps every pulse in memory.
type Recorder struct {
	mu     sync.Mutex
	pulses []Intensity
}

func (r *Recorder) Pulse(i Intensity) {
	r.mu.Lock()
	r.pulses = append(r.pulses, i)
	r.mu.Unlock()
}

// Pulses returns the pulses received so far.
func (r *Recorder) Pulses() []Intensity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intensity, len(r.pulses))
	copy(out, r.pulses)
	return out
}

// Count returns how many pulses of intensity i were received.
func (r *Recorder) Count(i Intensity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.pulses {
		if p == i {
			n++
		}
	}
	return n
}
