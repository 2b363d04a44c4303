package call

import (
	"context"
	"time"

	"github.com/keshucs12345/callsim/internal/clock"
	"github.com/keshucs12345/callsim/internal/dialogue"
	"github.com/keshucs12345/callsim/internal/scenario"
)

// session is the live call. Every field is guarded by Orchestrator.mu.
type session struct {
	id         string
	scenario   scenario.Scenario
	state      State
	outcome    Outcome
	startedAt  time.Time
	answeredAt time.Time
	endedAt    time.Time
	elapsed    int

	// ctx is the cancellation token of the call. It is cancelled exactly
	// once, when the call ends.
	ctx    context.Context
	cancel context.CancelFunc

	ringer   Ringer
	ambience Ambience
	speaker  Speaker

	ticker  *clock.Ticker
	autoEnd clock.Timer

	script      *dialogue.Script
	currentLine string
}

// elapsedAt returns whole seconds spent active. It stops counting when the
// call ends.
func (s *session) elapsedAt(now time.Time) int {
	if s.state == Active {
		return int(now.Sub(s.answeredAt) / time.Second)
	}
	return s.elapsed
}

// Snapshot is a point-in-time copy of a call.
type Snapshot struct {
	ID             string            `json:"id"`
	Scenario       scenario.Scenario `json:"scenario"`
	State          State             `json:"state"`
	Outcome        Outcome           `json:"outcome,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	AnsweredAt     time.Time         `json:"answered_at,omitzero"`
	EndedAt        time.Time         `json:"ended_at,omitzero"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
	CurrentLine    string            `json:"current_line,omitempty"`
	Script         *dialogue.Script  `json:"script,omitempty"`
}

func (s *session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Scenario:       s.scenario,
		State:          s.state,
		Outcome:        s.outcome,
		StartedAt:      s.startedAt,
		AnsweredAt:     s.answeredAt,
		EndedAt:        s.endedAt,
		ElapsedSeconds: s.elapsedAt(now),
		CurrentLine:    s.currentLine,
	}
	if s.script != nil {
		sc := *s.script
		sc.Lines = append([]string(nil), s.script.Lines...)
		snap.Script = &sc
	}
	return snap
}
