// Package audio renders procedural tones and PCM speech to an output device.
package audio

import (
	"math"
	"time"
)

// Waveform is the shape of an oscillator.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	}
	return "unknown"
}

// sample returns the waveform value in [-1, 1] at phase p in [0, 1).
func (w Waveform) sample(p float64) float64 {
	switch w {
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*p - 1
	case Triangle:
		return 4*math.Abs(p-0.5) - 1
	default:
		return math.Sin(2 * math.Pi * p)
	}
}

// DefaultFloor is the fraction of its starting gain a decaying tone ramps
// down to before it ends.
const DefaultFloor = 0.001

// Tone is a single oscillator voice.
type Tone struct {
	Waveform  Waveform
	Frequency float64
	// SweepTo glides the frequency exponentially to this value over
	// Duration. Zero keeps the frequency fixed.
	SweepTo float64
	Gain    float64
	// Delay postpones the start of the tone.
	Delay time.Duration
	// Duration is how long the tone sounds. Zero means it is sustained
	// until the voice is stopped.
	Duration time.Duration
	// Decay ramps the gain exponentially down to Floor times Gain across
	// Duration.
	Decay bool
	// Floor is a ratio in (0, 1). Zero or out of range selects DefaultFloor.
	Floor float64
}

// Sustained reports whether the tone runs until stopped.
func (t Tone) Sustained() bool { return t.Duration <= 0 }

// GainAt returns the tone's gain at elapsed time into the tone.
func (t Tone) GainAt(elapsed time.Duration) float64 {
	if elapsed < 0 {
		return 0
	}
	if t.Sustained() {
		return t.Gain
	}
	if elapsed >= t.Duration {
		return 0
	}
	if !t.Decay || t.Gain <= 0 {
		return t.Gain
	}
	floor := t.Floor
	if floor <= 0 || floor >= 1 {
		floor = DefaultFloor
	}
	frac := float64(elapsed) / float64(t.Duration)
	return t.Gain * math.Pow(floor, frac)
}

// FrequencyAt returns the oscillator frequency at elapsed time into the tone.
func (t Tone) FrequencyAt(elapsed time.Duration) float64 {
	if t.SweepTo <= 0 || t.Sustained() || t.Frequency <= 0 {
		return t.Frequency
	}
	frac := math.Min(1, math.Max(0, float64(elapsed)/float64(t.Duration)))
	return t.Frequency * math.Pow(t.SweepTo/t.Frequency, frac)
}

// End returns the offset from scheduling at which the tone finishes, or
// zero for sustained tones.
func (t Tone) End() time.Duration {
	if t.Sustained() {
		return 0
	}
	return t.Delay + t.Duration
}
