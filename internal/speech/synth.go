package speech

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/clock"
)

// Params are the per-utterance voice settings.
type Params struct {
	Voice Voice
	Pitch float64
	Rate  float64
}

// Synthesizer turns text into audible speech.
type Synthesizer interface {
	// Voices lists the voices the synthesizer can speak with.
	Voices() []Voice
	// Speak blocks until text has been spoken, ctx is done or Stop is
	// called. Nothing may start sounding once ctx is done.
	Speak(ctx context.Context, text string, p Params) error
	// Stop halts any utterance in progress.
	Stop()
}

// playbackMargin is how long an utterance may overrun its buffer length
// before it is treated as finished.
const playbackMargin = 500 * time.Millisecond

// player streams decoded PCM to an output and tracks the utterance in
// flight so it can be cut off.
type player struct {
	out   audio.Output
	clock clock.Clock

	mu    sync.Mutex
	voice audio.Voice
}

// SynthOption configures playback for the OpenAI and Deepgram synthesizers.
type SynthOption func(*player)

// WithPlaybackClock sets the clock that bounds how long an utterance may
// play.
func WithPlaybackClock(c clock.Clock) SynthOption {
	return func(p *player) { p.clock = c }
}

func newPlayer(out audio.Output, opts ...SynthOption) *player {
	if out == nil {
		out = audio.Discard
	}
	p := &player{out: out, clock: clock.Real()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// playbackBound is the buffer length at the effective rate plus
// playbackMargin.
func playbackBound(n int, rate float64) time.Duration {
	return time.Duration(float64(n)/rate*float64(time.Second)) + playbackMargin
}

// play streams samples recorded at sampleRate. Pitch is applied by scaling
// the playback rate. An output that never finishes the voice is cut off
// once the buffer's length has elapsed, and the utterance counts as spoken.
func (p *player) play(ctx context.Context, samples []int16, sampleRate float64, pitch float64) error {
	if pitch <= 0 {
		pitch = 1
	}
	p.mu.Lock()
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return err
	}
	v := p.out.Stream(samples, sampleRate*pitch, 1)
	p.voice = v
	p.mu.Unlock()

	expired := make(chan struct{})
	timer := p.clock.AfterFunc(playbackBound(len(samples), sampleRate*pitch), func() { close(expired) })
	defer timer.Stop()

	select {
	case <-v.Done():
		return nil
	case <-expired:
		v.Stop()
		return nil
	case <-ctx.Done():
		v.Stop()
		return ctx.Err()
	}
}

func (p *player) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voice != nil {
		p.voice.Stop()
		p.voice = nil
	}
}

// Silent speaks nothing. With a zero WordsPerSecond every utterance
// resolves at once; otherwise Speak waits as long as reading the text
// aloud would take at that pace, scaled by the rate multiplier.
type Silent struct {
	Clock          clock.Clock
	WordsPerSecond float64
}

func (Silent) Voices() []Voice { return nil }

func (s Silent) Speak(ctx context.Context, text string, p Params) error {
	if s.WordsPerSecond <= 0 {
		return ctx.Err()
	}
	rate := p.Rate
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(text))
	secs := math.Ceil(float64(words)/s.WordsPerSecond) / rate
	c := s.Clock
	if c == nil {
		c = clock.Real()
	}
	return clock.Sleep(ctx, c, time.Duration(secs*float64(time.Second)))
}

func (Silent) Stop() {}
