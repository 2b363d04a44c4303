package speech_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/audio/audiotest"
	"github.com/keshucs12345/callsim/internal/clock"
	"github.com/keshucs12345/callsim/internal/persona"
	"github.com/keshucs12345/callsim/internal/speech"
	"github.com/keshucs12345/callsim/internal/speech/speechtest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var script = []string{"one", "two", "three", "four", "five"}

var platformVoices = []speech.Voice{
	{Name: "Fred", Lang: "en-US", Gender: "male", Default: true},
	{Name: "Amélie", Lang: "fr-CA", Gender: "female"},
	{Name: "Samantha", Lang: "en-US", Gender: "female"},
	{Name: "Daniel", Lang: "en-GB", Gender: "male"},
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		persona     persona.Persona
		pitch, rate float64
	}{
		{persona.Mum, 1.15, 0.7},
		{persona.Boss, 0.85, 0.8},
		{persona.Friend, 1.05, 0.85},
		{persona.Custom, 1.0, 0.8},
	}
	for _, tt := range tests {
		vp := speech.ProfileFor(tt.persona)
		assert.Equal(t, tt.pitch, vp.Pitch, tt.persona)
		assert.Equal(t, tt.rate, vp.Rate, tt.persona)
		assert.NotEmpty(t, vp.Preferences)
	}
	assert.Equal(t, speech.ProfileFor(persona.Custom), speech.ProfileFor("stranger"))
}

func TestSelectVoice(t *testing.T) {
	v, ok := speech.SelectVoice(platformVoices, speech.ProfileFor(persona.Mum).Preferences, "en")
	require.True(t, ok)
	assert.Equal(t, "Samantha", v.Name)

	v, _ = speech.SelectVoice(platformVoices, speech.ProfileFor(persona.Boss).Preferences, "en")
	assert.Equal(t, "Daniel", v.Name)

	v, _ = speech.SelectVoice(platformVoices, []string{"female"}, "en")
	assert.Equal(t, "Amélie", v.Name, "gender preference beats language")

	v, _ = speech.SelectVoice(platformVoices, []string{"default"}, "fr")
	assert.Equal(t, "Fred", v.Name)

	v, _ = speech.SelectVoice(platformVoices, []string{"Nobody"}, "fr")
	assert.Equal(t, "Amélie", v.Name, "falls back to language")

	v, _ = speech.SelectVoice(platformVoices, nil, "de")
	assert.Equal(t, "Fred", v.Name, "falls back to any voice")

	_, ok = speech.SelectVoice(nil, []string{"female"}, "en")
	assert.False(t, ok)
}

func TestSequencerSpeaksInOrder(t *testing.T) {
	synth := &speechtest.Synth{VoiceSet: platformVoices}
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	var started []int
	err := seq.Speak(context.Background(), script, persona.Boss, func(i int, line string) {
		assert.Equal(t, script[i], line)
		started = append(started, i)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, started)
	assert.Equal(t, script, synth.Spoken())
	p := synth.Params()[0]
	assert.Equal(t, "Daniel", p.Voice.Name)
	assert.Equal(t, 0.85, p.Pitch)
	assert.Equal(t, 0.8, p.Rate)
}

func TestSequencerStopAfterSecondLine(t *testing.T) {
	synth := &speechtest.Synth{Hold: true}
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	var mu sync.Mutex
	var started []string
	done := make(chan error, 1)
	go func() {
		done <- seq.Speak(context.Background(), script, persona.Friend, func(_ int, line string) {
			mu.Lock()
			started = append(started, line)
			mu.Unlock()
		})
	}()

	assert.Equal(t, "one", <-synth.Started())
	synth.Release()
	assert.Equal(t, "two", <-synth.Started())

	seq.StopAll()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, []string{"one", "two"}, started)
	mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, synth.Spoken())
	assert.Equal(t, 1, synth.Stops())
	assert.True(t, seq.Stopped())

	seq.StopAll()
	assert.ErrorIs(t, seq.Speak(context.Background(), script, persona.Friend, nil), context.Canceled)
	assert.Len(t, synth.Spoken(), 2)
}

func TestSequencerPause(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	synth := &speechtest.Synth{}
	seq := speech.NewSequencer(synth, testLogger(), speech.WithClock(clk))

	done := make(chan error, 1)
	go func() { done <- seq.Speak(context.Background(), script[:3], persona.Mum, nil) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntil(ctx, 1))
	assert.Equal(t, "one", <-synth.Started())

	clk.Advance(speech.DefaultPause - time.Millisecond)
	assert.Equal(t, []string{"one"}, synth.Spoken())

	clk.Advance(time.Millisecond)
	assert.Equal(t, "two", <-synth.Started())

	require.NoError(t, clk.BlockUntil(ctx, 1))
	clk.Advance(speech.DefaultPause)
	require.NoError(t, <-done)
	assert.Equal(t, script[:3], synth.Spoken())
	assert.Zero(t, clk.Pending(), "no pause after the last line")
}

func TestSequencerPauseIsInterruptible(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	synth := &speechtest.Synth{}
	seq := speech.NewSequencer(synth, testLogger(), speech.WithClock(clk))

	done := make(chan error, 1)
	go func() { done <- seq.Speak(context.Background(), script, persona.Mum, nil) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntil(ctx, 1))

	seq.StopAll()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, clk.Pending())

	clk.Advance(time.Minute)
	assert.Equal(t, []string{"one"}, synth.Spoken())
}

func TestSequencerParentCancel(t *testing.T) {
	synth := &speechtest.Synth{Hold: true}
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Speak(ctx, script, persona.Custom, nil) }()

	<-synth.Started()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, synth.Spoken(), 1)
	assert.False(t, seq.Stopped())
}

func TestSequencerSurvivesSynthFailure(t *testing.T) {
	synth := &speechtest.Synth{Err: errors.New("no voices installed")}
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	require.NoError(t, seq.Speak(context.Background(), script, persona.Mum, nil))
	assert.Equal(t, script, synth.Spoken())
}

func TestSilentPacing(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	s := speech.Silent{Clock: clk, WordsPerSecond: 3}

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "one two three four", speech.Params{Rate: 1}) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntil(ctx, 1))
	clk.Advance(2 * time.Second)
	require.NoError(t, <-done)

	assert.NoError(t, speech.Silent{}.Speak(context.Background(), "instant", speech.Params{}))
	assert.Empty(t, speech.Silent{}.Voices())
}

func TestDeepgramSynthesizer(t *testing.T) {
	pcm := audio.PCM16ToBytes([]int16{1, 2, 3, 4})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "aura-orion-en", r.URL.Query().Get("model"))
		assert.Equal(t, "linear16", r.URL.Query().Get("encoding"))

		var body struct{ Text string }
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "We need you in the office.", body.Text)
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	out := &audiotest.Recorder{}
	synth := speech.NewDeepgramSynthesizer("dg-key", srv.URL, out, testLogger())
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	require.NoError(t, seq.Speak(context.Background(), []string{"We need you in the office."}, persona.Boss, nil))
	assert.Equal(t, 1, out.Streams())
}

func TestDeepgramSynthesizerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	out := &audiotest.Recorder{}
	synth := speech.NewDeepgramSynthesizer("bad", srv.URL, out, testLogger())
	err := synth.Speak(context.Background(), "hello", speech.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Zero(t, out.Streams())
}

func TestDeepgramStopCutsUtterance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audio.PCM16ToBytes(make([]int16, 1600)))
	}))
	defer srv.Close()

	out := &audiotest.Recorder{HoldStreams: true}
	synth := speech.NewDeepgramSynthesizer("k", srv.URL, out, testLogger())

	done := make(chan error, 1)
	go func() { done <- synth.Speak(context.Background(), "a long sentence", speech.Params{Pitch: 1.2}) }()

	require.Eventually(t, func() bool { return out.Sounding() == 1 }, 2*time.Second, 5*time.Millisecond)
	synth.Stop()
	require.NoError(t, <-done)
	assert.Zero(t, out.Sounding())
	synth.Stop()
}

func pcmServer(t *testing.T, samples int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audio.PCM16ToBytes(make([]int16, samples)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStalledOutputDoesNotBlockScript(t *testing.T) {
	srv := pcmServer(t, 1600)
	clk := clock.NewManual(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	out := audio.NewMixer(audio.SampleRate) // nothing renders it
	synth := speech.NewDeepgramSynthesizer("k", srv.URL, out, testLogger(), speech.WithPlaybackClock(clk))
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0), speech.WithClock(clk))

	var mu sync.Mutex
	var started []int
	done := make(chan error, 1)
	go func() {
		done <- seq.Speak(context.Background(), []string{"Are you nearly here?", "I'll wait outside."}, persona.Friend, func(i int, _ string) {
			mu.Lock()
			started = append(started, i)
			mu.Unlock()
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range 2 {
		require.NoError(t, clk.BlockUntil(ctx, 1))
		clk.Advance(time.Second)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("script still waiting on an output that never plays")
	}
	mu.Lock()
	assert.Equal(t, []int{0, 1}, started)
	mu.Unlock()
	assert.Zero(t, out.Active())
}

func TestClosedOutputFinishesAtOnce(t *testing.T) {
	srv := pcmServer(t, 1600)
	out := audio.NewMixer(audio.SampleRate)
	out.Close()
	synth := speech.NewDeepgramSynthesizer("k", srv.URL, out, testLogger())
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	done := make(chan error, 1)
	go func() { done <- seq.Speak(context.Background(), []string{"one", "two"}, persona.Mum, nil) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("closed output held the script")
	}
}

func TestSynthesizerHonorsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audio.PCM16ToBytes(make([]int16, 16)))
	}))
	defer srv.Close()

	out := &audiotest.Recorder{}
	synth := speech.NewDeepgramSynthesizer("k", srv.URL, out, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, synth.Speak(ctx, "never heard", speech.Params{}))
	assert.Zero(t, out.Streams())
}

func TestOpenAISynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var req openai.CreateSpeechRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openai.VoiceNova, req.Voice)
		assert.Equal(t, openai.SpeechResponseFormatPcm, req.ResponseFormat)
		assert.Equal(t, 0.7, req.Speed)
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(audio.PCM16ToBytes([]int16{5, 6, 7}))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	out := &audiotest.Recorder{}
	synth := speech.NewOpenAISynthesizer(openai.NewClientWithConfig(cfg), out, testLogger())
	seq := speech.NewSequencer(synth, testLogger(), speech.WithPause(0))

	require.NoError(t, seq.Speak(context.Background(), []string{"Hi sweetheart"}, persona.Mum, nil))
	assert.Equal(t, 1, out.Streams())
}
