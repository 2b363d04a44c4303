// Package metrics exposes call simulator activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keshucs12345/callsim/internal/events"
)

const namespace = "callsim"

// Metrics holds the counters fed by call events.
type Metrics struct {
	callsStarted  prometheus.Counter
	callsAnswered prometheus.Counter
	callsEnded    *prometheus.CounterVec
	scripts       *prometheus.CounterVec
	linesSpoken   prometheus.Counter
	ambientEvents *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_started_total",
			Help:      "Calls that started ringing",
		}),
		callsAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_answered_total",
			Help:      "Calls that were answered",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Calls that ended, by outcome",
		}, []string{"outcome"}),
		scripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_scripts_total",
			Help:      "Dialogue scripts prepared, by source (generated, fallback, missing_credential)",
		}, []string{"source"}),
		linesSpoken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_lines_spoken_total",
			Help:      "Dialogue lines started",
		}),
		ambientEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambient_events_total",
			Help:      "Randomized ambient sounds played, by environment and event",
		}, []string{"environment", "event"}),
	}
	reg.MustRegister(m.callsStarted, m.callsAnswered, m.callsEnded, m.scripts, m.linesSpoken, m.ambientEvents)
	return m
}

// Observe updates the counters from a call event. Subscribe it to an
// events.Hub.
func (m *Metrics) Observe(e events.Event) {
	switch e.Type {
	case events.StateChanged:
		switch e.State {
		case "incoming":
			m.callsStarted.Inc()
		case "active":
			m.callsAnswered.Inc()
		case "ended":
			m.callsEnded.WithLabelValues(e.Outcome).Inc()
		}
	case events.ScriptReady:
		m.scripts.WithLabelValues(e.Source).Inc()
	case events.MissingCredential:
		m.scripts.WithLabelValues("missing_credential").Inc()
	case events.LineStarted:
		m.linesSpoken.Inc()
	}
}

// AmbientEvent counts a played ambient sound.
func (m *Metrics) AmbientEvent(environment, event string) {
	m.ambientEvents.WithLabelValues(environment, event).Inc()
}

// CallStateProvider reports whether a call is in progress.
type CallStateProvider interface {
	InCall() bool
}

// SchedulePendingCounter returns the number of scheduled calls waiting to fire.
type SchedulePendingCounter interface {
	PendingCount() int
}

// Collector gathers point-in-time state at scrape time. Either provider
// may be nil.
type Collector struct {
	calls     CallStateProvider
	schedule  SchedulePendingCounter
	startTime time.Time

	callActiveDesc *prometheus.Desc
	scheduledDesc  *prometheus.Desc
	uptimeDesc     *prometheus.Desc
}

// NewCollector creates a scrape-time collector.
func NewCollector(calls CallStateProvider, schedule SchedulePendingCounter, startTime time.Time) *Collector {
	return &Collector{
		calls:     calls,
		schedule:  schedule,
		startTime: startTime,

		callActiveDesc: prometheus.NewDesc(
			namespace+"_call_active",
			"Whether a call is ringing or in progress (1) or not (0)",
			nil, nil,
		),
		scheduledDesc: prometheus.NewDesc(
			namespace+"_scheduled_calls",
			"Scheduled calls waiting to ring",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			namespace+"_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callActiveDesc
	ch <- c.scheduledDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.calls != nil {
		v := 0.0
		if c.calls.InCall() {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.callActiveDesc, prometheus.GaugeValue, v)
	}
	if c.schedule != nil {
		ch <- prometheus.MustNewConstMetric(c.scheduledDesc, prometheus.GaugeValue,
			float64(c.schedule.PendingCount()))
	}
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds())
}
