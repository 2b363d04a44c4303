// Package speechtest provides a scriptable speech.Synthesizer for tests.
package speechtest

import (
	"context"
	"sync"

	"github.com/keshucs12345/callsim/internal/speech"
)

// Synth records every utterance. When Hold is set, each Speak blocks until
// Release is called or its context is done.
type Synth struct {
	Hold     bool
	Err      error
	VoiceSet []speech.Voice

	once    sync.Once
	started chan string
	release chan struct{}

	mu     sync.Mutex
	spoken []string
	params []speech.Params
	stops  int
}

func (s *Synth) init() {
	s.once.Do(func() {
		s.started = make(chan string, 64)
		s.release = make(chan struct{})
	})
}

func (s *Synth) Voices() []speech.Voice { return s.VoiceSet }

func (s *Synth) Speak(ctx context.Context, text string, p speech.Params) error {
	s.init()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.params = append(s.params, p)
	s.mu.Unlock()
	s.started <- text

	if s.Hold {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Err
}

func (s *Synth) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

// Started delivers the text of each utterance as it begins.
func (s *Synth) Started() <-chan string {
	s.init()
	return s.started
}

// Release lets one held utterance finish.
func (s *Synth) Release() {
	s.init()
	s.release <- struct{}{}
}

// Spoken returns every line passed to Speak.
func (s *Synth) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Params returns the parameters of every utterance.
func (s *Synth) Params() []speech.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Params(nil), s.params...)
}

// Stops returns how many times Stop was called.
func (s *Synth) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
