package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshucs12345/callsim/internal/events"
)

type fakeCalls bool

func (f fakeCalls) InCall() bool { return bool(f) }

type fakeSchedule int

func (f fakeSchedule) PendingCount() int { return int(f) }

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveCallEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	for _, e := range []events.Event{
		{Type: events.StateChanged, State: "incoming"},
		{Type: events.StateChanged, State: "active"},
		{Type: events.ScriptReady, Source: "fallback"},
		{Type: events.LineStarted, LineNumber: 1},
		{Type: events.LineStarted, LineNumber: 2},
		{Type: events.StateChanged, State: "ended", Outcome: "completed"},
		{Type: events.StateChanged, State: "incoming"},
		{Type: events.StateChanged, State: "ended", Outcome: "declined"},
		{Type: events.MissingCredential},
		{Type: events.Tick, ElapsedSeconds: 3},
	} {
		m.Observe(e)
	}
	m.AmbientEvent("office", "typing")

	out := scrape(t, reg)
	assert.Contains(t, out, "callsim_calls_started_total 2")
	assert.Contains(t, out, "callsim_calls_answered_total 1")
	assert.Contains(t, out, `callsim_calls_ended_total{outcome="completed"} 1`)
	assert.Contains(t, out, `callsim_calls_ended_total{outcome="declined"} 1`)
	assert.Contains(t, out, `callsim_dialogue_scripts_total{source="fallback"} 1`)
	assert.Contains(t, out, `callsim_dialogue_scripts_total{source="missing_credential"} 1`)
	assert.Contains(t, out, "callsim_dialogue_lines_spoken_total 2")
	assert.Contains(t, out, `callsim_ambient_events_total{environment="office",event="typing"} 1`)
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(fakeCalls(true), fakeSchedule(3), time.Now().Add(-time.Minute)))

	out := scrape(t, reg)
	assert.Contains(t, out, "callsim_call_active 1")
	assert.Contains(t, out, "callsim_scheduled_calls 3")
	assert.Contains(t, out, "callsim_uptime_seconds")
}

func TestCollectorWithoutProviders(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(nil, nil, time.Now()))

	out := scrape(t, reg)
	assert.NotContains(t, out, "callsim_call_active")
	assert.Contains(t, out, "callsim_uptime_seconds")
}
