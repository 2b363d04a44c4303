package scenario

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keshucs12345/callsim/internal/persona"
)

// ErrInvalidScenario is returned when a scenario cannot start a call.
var ErrInvalidScenario = errors.New("invalid scenario")

// DefaultTargetDuration is the dialogue length requested when a scenario
// does not carry its own estimate.
const DefaultTargetDuration = 30 * time.Second

// Scenario describes who is calling and why.
type Scenario struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Persona     persona.Persona `json:"persona" yaml:"persona"`
	Situation   string          `json:"situation,omitempty" yaml:"situation"`
	Urgency     persona.Urgency `json:"urgency" yaml:"urgency"`
	// EstimatedDuration is the intended dialogue length in seconds.
	EstimatedDuration int `json:"estimated_duration,omitempty" yaml:"estimated_duration"`
}

// Validate checks the scenario before any side effect happens.
func (s Scenario) Validate() error {
	if !s.Persona.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidScenario, s.Persona)
	}
	if s.Urgency != "" && !s.Urgency.Valid() {
		return fmt.Errorf("%w: unknown urgency %q", ErrInvalidScenario, s.Urgency)
	}
	if s.Persona == persona.Custom && strings.TrimSpace(s.Situation) == "" {
		return fmt.Errorf("%w: custom persona requires a situation", ErrInvalidScenario)
	}
	if s.EstimatedDuration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidScenario)
	}
	return nil
}

// TargetDuration returns the requested dialogue length.
func (s Scenario) TargetDuration() time.Duration {
	if s.EstimatedDuration <= 0 {
		return DefaultTargetDuration
	}
	return time.Duration(s.EstimatedDuration) * time.Second
}

// Normalized returns a copy with defaults applied.
func (s Scenario) Normalized() Scenario {
	if s.Urgency == "" {
		s.Urgency = persona.Medium
	}
	if s.ID == "" {
		s.ID = string(s.Persona)
	}
	if s.Title == "" {
		s.Title = "Custom Call"
	}
	s.Situation = strings.TrimSpace(s.Situation)
	return s
}
