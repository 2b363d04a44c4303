package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshucs12345/callsim/internal/call"
	"github.com/keshucs12345/callsim/internal/events"
	"github.com/keshucs12345/callsim/internal/persona"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/schedule"
)

func newTestConsole(t *testing.T) (*console, *bytes.Buffer, *call.Orchestrator, *schedule.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := call.New(call.Config{}, nil, logger)
	t.Cleanup(orch.Close)
	reg := schedule.NewRegistry(func(sc scenario.Scenario) error {
		_, err := orch.Start(sc)
		return err
	}, logger)
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })

	var out bytes.Buffer
	return newConsole(&out, orch, reg, scenario.NewCatalog()), &out, orch, reg
}

func TestConsoleCallFlow(t *testing.T) {
	c, out, orch, _ := newTestConsole(t)

	assert.False(t, c.exec("call boss-urgent"))
	snap, ok := orch.Current()
	require.True(t, ok)
	assert.Equal(t, call.Incoming, snap.State)
	assert.Equal(t, persona.Boss, snap.Scenario.Persona)

	assert.False(t, c.exec("decline"))
	snap, _ = orch.Current()
	assert.Equal(t, call.Declined, snap.Outcome)

	assert.False(t, c.exec("answer"))
	assert.Contains(t, out.String(), "error:")

	assert.False(t, c.exec("custom Landlord about a burst pipe"))
	snap, _ = orch.Current()
	assert.Equal(t, persona.Custom, snap.Scenario.Persona)
	assert.Equal(t, "Landlord about a burst pipe", snap.Scenario.Situation)
	assert.False(t, c.exec("end"))
	snap, _ = orch.Current()
	assert.Equal(t, call.HungUp, snap.Outcome)

	assert.True(t, c.exec("quit"))
}

func TestConsoleSchedule(t *testing.T) {
	c, out, orch, reg := newTestConsole(t)

	c.exec("call mum 10m")
	assert.False(t, orch.InCall())
	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, persona.Mum, list[0].Scenario.Persona)
	assert.Contains(t, out.String(), "Scheduled mum in 10m 0s")

	c.exec("call friend-pickup immediate")
	assert.Equal(t, 2, reg.PendingCount())

	c.exec("cancel " + list[0].ID)
	assert.Equal(t, 1, reg.PendingCount())
	c.exec("cancel all")
	assert.Zero(t, reg.PendingCount())

	out.Reset()
	c.exec("call mum soonish")
	assert.Contains(t, out.String(), "invalid delay")
}

func TestConsoleUnknownInput(t *testing.T) {
	c, out, _, _ := newTestConsole(t)

	c.exec("call grandpa")
	assert.Contains(t, out.String(), `no scenario or persona named "grandpa"`)
	c.exec("dance")
	assert.Contains(t, out.String(), `unknown command "dance"`)
	c.exec("status")
	assert.Contains(t, out.String(), "No call yet.")
	assert.False(t, c.exec("   "))
}

func TestConsoleRunStopsAtEOF(t *testing.T) {
	c, out, _, _ := newTestConsole(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(context.Background(), strings.NewReader("help\nlist\n"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop at end of input")
	}
	assert.Contains(t, out.String(), "commands:")
	assert.Contains(t, out.String(), "pet-emergency")
}

func TestConsolePrintsEvents(t *testing.T) {
	c, out, _, _ := newTestConsole(t)

	c.handleEvent(events.Event{Type: events.LineStarted, LineNumber: 2, Line: "Can you come now?"})
	c.handleEvent(events.Event{Type: events.StateChanged, State: "ended", Outcome: "completed", ElapsedSeconds: 75})
	c.handleEvent(events.Event{Type: events.MissingCredential})

	s := out.String()
	assert.Contains(t, s, "2: Can you come now?")
	assert.Contains(t, s, "Call ended (completed) after 1:15.")
	assert.Contains(t, s, "OPENAI_API_KEY")
}

func TestParseDelay(t *testing.T) {
	d, err := parseDelay("5m")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = parseDelay("immediate")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = parseDelay("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDelay("later")
	assert.ErrorIs(t, err, schedule.ErrInvalidDelay)
}
