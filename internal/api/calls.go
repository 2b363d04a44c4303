package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keshucs12345/callsim/internal/persona"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/schedule"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var list []scenario.Scenario
	switch {
	case q.Get("list") == "quick":
		list = s.deps.Catalog.Quick()
	case q.Get("list") == "casual":
		list = s.deps.Catalog.Casual()
	case q.Get("persona") != "":
		p, err := persona.Parse(q.Get("persona"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list = s.deps.Catalog.ByPersona(p)
	case q.Get("urgency") != "":
		u, err := persona.ParseUrgency(q.Get("urgency"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list = s.deps.Catalog.ByUrgency(u)
	default:
		list = s.deps.Catalog.All()
	}
	if list == nil {
		list = []scenario.Scenario{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.deps.Catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "scenario not found")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// createCallRequest starts a call from a catalog scenario or an inline
// one. A delay or preset schedules the call instead of ringing now.
type createCallRequest struct {
	ScenarioID        string          `json:"scenario_id"`
	Persona           persona.Persona `json:"persona"`
	Situation         string          `json:"situation"`
	Urgency           persona.Urgency `json:"urgency"`
	EstimatedDuration int             `json:"estimated_duration"`

	DelaySeconds *float64 `json:"delay_seconds"`
	Preset       string   `json:"preset"`
}

func (req createCallRequest) delay() (time.Duration, bool, error) {
	if req.Preset != "" {
		p, ok := schedule.PresetByName(req.Preset)
		if !ok {
			return 0, false, fmt.Errorf("%w: unknown preset %q", schedule.ErrInvalidDelay, req.Preset)
		}
		return p.Delay, true, nil
	}
	if req.DelaySeconds != nil {
		return time.Duration(*req.DelaySeconds * float64(time.Second)), true, nil
	}
	return 0, false, nil
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var sc scenario.Scenario
	if req.ScenarioID != "" {
		var ok bool
		if sc, ok = s.deps.Catalog.Get(req.ScenarioID); !ok {
			writeError(w, http.StatusNotFound, "scenario not found")
			return
		}
	} else {
		sc = scenario.Scenario{
			Persona:           req.Persona,
			Situation:         req.Situation,
			Urgency:           req.Urgency,
			EstimatedDuration: req.EstimatedDuration,
		}
	}

	delay, scheduled, err := req.delay()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if scheduled {
		c, err := s.deps.Schedule.Schedule(sc, delay)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s.scheduledView(c))
		return
	}

	snap, err := s.deps.Calls.Start(sc)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleCurrentCall(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Calls.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no call")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Calls.Answer)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Calls.Decline)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Calls.End)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func() error) {
	if err := op(); err != nil {
		s.writeErr(w, r, err)
		return
	}
	snap, _ := s.deps.Calls.Current()
	writeJSON(w, http.StatusOK, snap)
}

type scheduledCall struct {
	schedule.Call
	Remaining string `json:"remaining"`
}

func (s *Server) scheduledView(c schedule.Call) scheduledCall {
	return scheduledCall{Call: c, Remaining: schedule.FormatRemaining(c.Remaining(s.now()))}
}

func (s *Server) handleListSchedule(w http.ResponseWriter, r *http.Request) {
	calls := s.deps.Schedule.List()
	out := make([]scheduledCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, s.scheduledView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelScheduled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Schedule.Cancel(id); err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scheduled call not found")
			return
		}
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleCancelAllScheduled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": s.deps.Schedule.CancelAll()})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schedule.Presets)
}
