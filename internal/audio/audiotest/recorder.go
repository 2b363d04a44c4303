// Package audiotest provides an in-memory audio.Output for tests.
package audiotest

import (
	"sync"

	"github.com/keshucs12345/callsim/internal/audio"
)

// Recorder is an audio.Output that records what was played.
//
// Transient tones finish immediately. Sustained tones stay active until
// stopped. Streams finish immediately unless HoldStreams is set, in which
// case they run until stopped or FinishStreams is called.
type Recorder struct {
	HoldStreams bool

	mu      sync.Mutex
	tones   []audio.Tone
	streams int
	voices  []*Voice
}

// Voice is a recorded voice.
type Voice struct {
	Tone      audio.Tone
	Stream    bool
	Sustained bool

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	once    sync.Once
}

func (v *Voice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
	v.finish()
}

func (v *Voice) Done() <-chan struct{} { return v.done }

// Stopped reports whether Stop was called.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

func (v *Voice) finish() { v.once.Do(func() { close(v.done) }) }

// Play records t.
func (r *Recorder) Play(t audio.Tone) audio.Voice {
	v := &Voice{Tone: t, Sustained: t.Sustained(), done: make(chan struct{})}
	if !v.Sustained {
		v.finish()
	}
	r.mu.Lock()
	r.tones = append(r.tones, t)
	r.voices = append(r.voices, v)
	r.mu.Unlock()
	return v
}

// Stream records a PCM stream.
func (r *Recorder) Stream(samples []int16, sampleRate float64, gain float64) audio.Voice {
	v := &Voice{Stream: true, done: make(chan struct{})}
	r.mu.Lock()
	hold := r.HoldStreams
	r.streams++
	r.voices = append(r.voices, v)
	r.mu.Unlock()
	if !hold {
		v.finish()
	}
	return v
}

// Tones returns every tone played so far.
func (r *Recorder) Tones() []audio.Tone {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audio.Tone, len(r.tones))
	copy(out, r.tones)
	return out
}

// ToneCount returns the number of tones played so far.
func (r *Recorder) ToneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tones)
}

// Streams returns the number of PCM streams played so far.
func (r *Recorder) Streams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams
}

// Sounding returns the number of sustained tones and streams that have not
// been stopped or finished.
func (r *Recorder) Sounding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.voices {
		if (v.Sustained || v.Stream) && !audio.Finished(v) {
			n++
		}
	}
	return n
}

// FinishStreams completes every held stream as if playback ended naturally.
func (r *Recorder) FinishStreams() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.voices {
		if v.Stream {
			v.finish()
		}
	}
}
