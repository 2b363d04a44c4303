package call

import (
	"errors"
	"fmt"

	"github.com/keshucs12345/callsim/internal/scenario"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current call state.
	ErrInvalidTransition = errors.New("invalid call transition")
	// ErrSessionActive is returned by Start while another call is in progress.
	ErrSessionActive = errors.New("a call is already in progress")
	// ErrInvalidScenario is returned by Start for a scenario that cannot
	// ring, before any side effect.
	ErrInvalidScenario = scenario.ErrInvalidScenario
)

// State is the lifecycle stage of a call.
type State int

const (
	Incoming State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Incoming:
		return "incoming"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome records how a call ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// Declined calls were rejected while ringing.
	Declined
	// Completed calls ended by themselves after the dialogue finished.
	Completed
	// HungUp calls were ended by the user.
	HungUp
)

func (o Outcome) String() string {
	switch o {
	case Declined:
		return "declined"
	case Completed:
		return "completed"
	case HungUp:
		return "hung_up"
	}
	return ""
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func transitionError(op string, s State) error {
	return fmt.Errorf("%w: cannot %s a call that is %s", ErrInvalidTransition, op, s)
}
