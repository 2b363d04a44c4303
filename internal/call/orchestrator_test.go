package call

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshucs12345/callsim/internal/ambient"
	"github.com/keshucs12345/callsim/internal/audio/audiotest"
	"github.com/keshucs12345/callsim/internal/clock"
	"github.com/keshucs12345/callsim/internal/dialogue"
	"github.com/keshucs12345/callsim/internal/events"
	"github.com/keshucs12345/callsim/internal/haptics"
	"github.com/keshucs12345/callsim/internal/persona"
	"github.com/keshucs12345/callsim/internal/ring"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/speech"
	"github.com/keshucs12345/callsim/internal/speech/speechtest"
)

var t0 = time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) ofType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range r.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) states() []string {
	var out []string
	for _, e := range r.ofType(events.StateChanged) {
		out = append(out, e.State)
	}
	return out
}

type quietRand struct{}

func (quietRand) Float64() float64 { return 0.99 }

type harness struct {
	o       *Orchestrator
	clock   *clock.Manual
	out     *audiotest.Recorder
	haptics *haptics.Recorder
	synth   *speechtest.Synth
	pub     *recorder
}

func newHarness(t *testing.T, gen dialogue.Generator) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		clock:   clock.NewManual(t0),
		out:     &audiotest.Recorder{},
		haptics: &haptics.Recorder{},
		synth:   &speechtest.Synth{},
		pub:     &recorder{},
	}
	h.o = New(Config{
		Generator: gen,
		Haptics:   h.haptics,
		Clock:     h.clock,
		NewRinger: func() Ringer {
			return ring.New(h.out, h.haptics, logger, ring.WithClock(h.clock))
		},
		NewAmbience: func() Ambience {
			return ambient.NewEngine(h.out, logger, ambient.WithClock(h.clock), ambient.WithRand(quietRand{}))
		},
		NewSpeaker: func() Speaker {
			return speech.NewSequencer(h.synth, logger, speech.WithClock(h.clock), speech.WithPause(0))
		},
	}, h.pub, logger)
	t.Cleanup(h.o.Close)
	return h
}

func (h *harness) waitPending(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntil(ctx, n))
}

func (h *harness) nextLine(t *testing.T) string {
	t.Helper()
	select {
	case line := <-h.synth.Started():
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no line started")
		return ""
	}
}

func failing(err error) dialogue.Generator {
	return dialogue.GeneratorFunc(func(context.Context, dialogue.Request) (dialogue.Script, error) {
		return dialogue.Script{}, err
	})
}

func fixed(lines ...string) dialogue.Generator {
	return dialogue.GeneratorFunc(func(context.Context, dialogue.Request) (dialogue.Script, error) {
		return dialogue.Script{Lines: lines, Source: dialogue.SourceGenerated}, nil
	})
}

// blocking generates nothing until the call is cancelled.
var blocking = dialogue.GeneratorFunc(func(ctx context.Context, _ dialogue.Request) (dialogue.Script, error) {
	<-ctx.Done()
	return dialogue.Script{}, ctx.Err()
})

var (
	bossHigh   = scenario.Scenario{Persona: persona.Boss, Urgency: persona.High}
	customCall = scenario.Scenario{Persona: persona.Custom, Situation: "Vet calling about Rex", Urgency: persona.Medium}
)

func TestStartRejectsInvalidScenario(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.Start(scenario.Scenario{Persona: persona.Custom, Urgency: persona.Low})
	require.ErrorIs(t, err, ErrInvalidScenario)

	assert.False(t, h.o.InCall())
	assert.Empty(t, h.haptics.Pulses())
	assert.Empty(t, h.pub.all())
	assert.Zero(t, h.out.ToneCount())
}

func TestStartRings(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.o.Start(bossHigh)
	require.NoError(t, err)

	assert.Equal(t, Incoming, snap.State)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, t0, snap.StartedAt)
	assert.Equal(t, []haptics.Intensity{haptics.Heavy}, h.haptics.Pulses())
	assert.Equal(t, []string{"incoming"}, h.pub.states())

	h.waitPending(t, 1)
	assert.Equal(t, 1, h.out.ToneCount())

	_, err = h.o.Start(bossHigh)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestAnswerStopsRinging(t *testing.T) {
	h := newHarness(t, blocking)
	_, err := h.o.Start(customCall)
	require.NoError(t, err)
	h.waitPending(t, 1)

	require.NoError(t, h.o.Answer())
	snap, _ := h.o.Current()
	assert.Equal(t, Active, snap.State)
	assert.Equal(t, []haptics.Intensity{haptics.Heavy, haptics.Medium}, h.haptics.Pulses())

	tones := h.out.ToneCount()
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, tones, h.out.ToneCount(), "no ring after answer")
	assert.Equal(t, 1, h.haptics.Count(haptics.Medium), "no ring vibration after answer")

	assert.ErrorIs(t, h.o.Answer(), ErrInvalidTransition)
	assert.ErrorIs(t, h.o.Decline(), ErrInvalidTransition)
}

func TestFallbackScriptAutoEnds(t *testing.T) {
	h := newHarness(t, failing(&dialogue.GenerationError{Cause: dialogue.NetworkOrService, Err: errors.New("502")}))
	_, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	require.NoError(t, h.o.Answer())

	demo := dialogue.DemoScript(persona.Boss).Lines
	for _, want := range demo {
		assert.Equal(t, want, h.nextLine(t))
	}

	// elapsed ticker, two office generators and the auto-end timer
	h.waitPending(t, 4)
	snap, _ := h.o.Current()
	assert.Equal(t, Active, snap.State)
	require.NotNil(t, snap.Script)
	assert.Equal(t, dialogue.SourceFallback, snap.Script.Source)

	h.clock.Advance(DefaultAutoEndDelay - time.Millisecond)
	snap, _ = h.o.Current()
	assert.Equal(t, Active, snap.State)

	h.clock.Advance(time.Millisecond)
	snap, _ = h.o.Current()
	assert.Equal(t, Ended, snap.State)
	assert.Equal(t, Completed, snap.Outcome)
	assert.Equal(t, 2, snap.ElapsedSeconds)

	assert.Equal(t, demo, h.synth.Spoken())
	assert.Len(t, h.pub.ofType(events.LineStarted), 5)
	assert.Equal(t, []string{"incoming", "active", "ended"}, h.pub.states())
	ready := h.pub.ofType(events.ScriptReady)
	require.Len(t, ready, 1)
	assert.Equal(t, "fallback", ready[0].Source)
	assert.Equal(t, 1, h.haptics.Count(haptics.Light))

	assert.Zero(t, h.out.Sounding(), "office drones stopped")
	assert.Zero(t, h.clock.Pending())
	assert.False(t, h.o.InCall())
}

func TestElapsedSeconds(t *testing.T) {
	h := newHarness(t, blocking)
	_, err := h.o.Start(customCall)
	require.NoError(t, err)
	h.waitPending(t, 1)
	h.clock.Advance(5 * time.Second)

	require.NoError(t, h.o.Answer())
	h.clock.Advance(3400 * time.Millisecond)

	snap, _ := h.o.Current()
	assert.Equal(t, 3, snap.ElapsedSeconds)

	var ticks []int
	for _, e := range h.pub.ofType(events.Tick) {
		ticks = append(ticks, e.ElapsedSeconds)
	}
	assert.Equal(t, []int{1, 2, 3}, ticks)

	require.NoError(t, h.o.End())
	h.clock.Advance(time.Minute)
	snap, _ = h.o.Current()
	assert.Equal(t, 3, snap.ElapsedSeconds, "frozen at end")
	assert.Equal(t, HungUp, snap.Outcome)
	assert.Len(t, h.pub.ofType(events.Tick), 3)
}

func TestEndStopsEverything(t *testing.T) {
	tests := []struct {
		name   string
		answer bool
	}{
		{"incoming", false},
		{"active", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fixed("first line", "second line"))
			h.synth.Hold = true
			_, err := h.o.Start(bossHigh)
			require.NoError(t, err)
			h.waitPending(t, 1)
			if tt.answer {
				require.NoError(t, h.o.Answer())
				assert.Equal(t, "first line", h.nextLine(t))
			}

			require.NoError(t, h.o.End())
			h.o.Wait()

			snap, _ := h.o.Current()
			assert.Equal(t, Ended, snap.State)
			assert.Equal(t, HungUp, snap.Outcome)
			assert.Zero(t, h.out.Sounding())
			assert.Zero(t, h.clock.Pending())

			published, pulses, tones := len(h.pub.all()), len(h.haptics.Pulses()), h.out.ToneCount()
			h.clock.Advance(time.Minute)
			assert.Len(t, h.pub.all(), published)
			assert.Len(t, h.haptics.Pulses(), pulses)
			assert.Equal(t, tones, h.out.ToneCount())
			assert.Equal(t, haptics.Light, h.haptics.Pulses()[pulses-1])

			require.NoError(t, h.o.End(), "ending twice is a no-op")
			assert.Len(t, h.pub.all(), published)
			assert.ErrorIs(t, h.o.Answer(), ErrInvalidTransition)
		})
	}
}

func TestEndAfterSecondLine(t *testing.T) {
	h := newHarness(t, fixed("one", "two", "three", "four", "five"))
	h.synth.Hold = true
	_, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	require.NoError(t, h.o.Answer())

	assert.Equal(t, "one", h.nextLine(t))
	h.synth.Release()
	assert.Equal(t, "two", h.nextLine(t))

	require.NoError(t, h.o.End())
	h.o.Wait()

	assert.Equal(t, []string{"one", "two"}, h.synth.Spoken())
	lines := h.pub.ofType(events.LineStarted)
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[1].LineNumber)
	assert.Equal(t, "two", lines[1].Line)
}

func TestDecline(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	h.waitPending(t, 1)
	h.clock.Advance(4 * time.Second)

	require.NoError(t, h.o.Decline())
	snap, ok := h.o.Current()
	require.True(t, ok)
	assert.Equal(t, Ended, snap.State)
	assert.Equal(t, Declined, snap.Outcome)
	assert.Zero(t, snap.ElapsedSeconds)
	assert.Zero(t, h.haptics.Count(haptics.Light), "no end pulse when declined")
	assert.Zero(t, h.clock.Pending())
	assert.Empty(t, h.synth.Spoken())

	assert.ErrorIs(t, h.o.Decline(), ErrInvalidTransition)
	assert.ErrorIs(t, h.o.Answer(), ErrInvalidTransition)
	assert.NoError(t, h.o.End())
}

func TestNoCall(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.o.Answer(), ErrInvalidTransition)
	assert.ErrorIs(t, h.o.Decline(), ErrInvalidTransition)
	assert.ErrorIs(t, h.o.End(), ErrInvalidTransition)
	_, ok := h.o.Current()
	assert.False(t, ok)
}

func TestMissingCredential(t *testing.T) {
	h := newHarness(t, failing(&dialogue.GenerationError{Cause: dialogue.MissingCredential}))
	_, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	require.NoError(t, h.o.Answer())
	h.o.Wait()

	require.Len(t, h.pub.ofType(events.MissingCredential), 1)
	assert.Empty(t, h.pub.ofType(events.ScriptReady))
	assert.Empty(t, h.synth.Spoken())
	assert.Zero(t, h.out.Sounding(), "ambience stopped")

	snap, _ := h.o.Current()
	assert.Equal(t, Active, snap.State, "the caller decides when to hang up")

	require.NoError(t, h.o.End())
	assert.Zero(t, h.clock.Pending())
}

func TestEndDuringGeneration(t *testing.T) {
	h := newHarness(t, blocking)
	_, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	require.NoError(t, h.o.Answer())

	require.NoError(t, h.o.End())
	h.o.Wait()
	assert.Empty(t, h.pub.ofType(events.ScriptReady))
	assert.Empty(t, h.synth.Spoken())
}

func TestManualEndCancelsAutoEnd(t *testing.T) {
	h := newHarness(t, fixed("only line"))
	_, err := h.o.Start(customCall)
	require.NoError(t, err)
	require.NoError(t, h.o.Answer())
	h.nextLine(t)
	h.waitPending(t, 2)

	require.NoError(t, h.o.End())
	h.clock.Advance(time.Minute)

	snap, _ := h.o.Current()
	assert.Equal(t, HungUp, snap.Outcome)
	assert.Equal(t, []string{"incoming", "active", "ended"}, h.pub.states())
}

func TestEmptyScriptFallsBack(t *testing.T) {
	h := newHarness(t, fixed("(sighs)", "[background noise]"))
	_, err := h.o.Start(customCall)
	require.NoError(t, err)
	require.NoError(t, h.o.Answer())
	h.o.Wait()

	assert.Equal(t, dialogue.DemoScript(persona.Custom).Lines, h.synth.Spoken())
}

func TestNewCallAfterEnd(t *testing.T) {
	h := newHarness(t, nil)
	first, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	require.NoError(t, h.o.End())

	second, err := h.o.Start(customCall)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, Incoming, second.State)
	assert.True(t, h.o.InCall())
}

func TestSnapshotJSON(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.Start(bossHigh)
	require.NoError(t, err)
	require.NoError(t, h.o.Decline())

	snap, _ := h.o.Current()
	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "ended", got["state"])
	assert.Equal(t, "declined", got["outcome"])
	assert.NotContains(t, got, "answered_at")
}

func TestSilentBackends(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(Config{
		AutoEndDelay: time.Millisecond,
		NewSpeaker: func() Speaker {
			return speech.NewSequencer(speech.Silent{}, logger, speech.WithPause(0))
		},
	}, nil, logger)
	defer o.Close()

	_, err := o.Start(scenario.Scenario{Persona: persona.Friend})
	require.NoError(t, err)
	require.NoError(t, o.Answer())
	o.Wait()

	require.Eventually(t, func() bool { return !o.InCall() }, 5*time.Second, 5*time.Millisecond)
	snap, _ := o.Current()
	assert.Equal(t, Completed, snap.Outcome)
	require.NotNil(t, snap.Script)
	assert.Len(t, snap.Script.Lines, 5)
}

func TestTargetDuration(t *testing.T) {
	requests := make(chan dialogue.Request, 2)
	gen := dialogue.GeneratorFunc(func(_ context.Context, req dialogue.Request) (dialogue.Script, error) {
		requests <- req
		return dialogue.Script{Lines: []string{"hi"}}, nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(Config{
		Generator:      gen,
		TargetDuration: 45 * time.Second,
		NewSpeaker: func() Speaker {
			return speech.NewSequencer(&speechtest.Synth{}, logger, speech.WithPause(0))
		},
	}, nil, logger)
	defer o.Close()

	for _, sc := range []scenario.Scenario{bossHigh, {Persona: persona.Mum, EstimatedDuration: 20}} {
		_, err := o.Start(sc)
		require.NoError(t, err)
		require.NoError(t, o.Answer())
		o.Wait()
		require.NoError(t, o.End())
	}
	assert.Equal(t, 45*time.Second, (<-requests).TargetDuration)
	assert.Equal(t, 20*time.Second, (<-requests).TargetDuration)
}
