package persona

import (
	"fmt"
	"strings"
)

// Persona is the simulated caller identity.
type Persona string

const (
	Mum    Persona = "mum"
	Boss   Persona = "boss"
	Friend Persona = "friend"
	Custom Persona = "custom"
)

// All lists every persona in display order.
var All = []Persona{Mum, Boss, Friend, Custom}

// Parse converts a string to a Persona. Matching is case-insensitive.
func Parse(s string) (Persona, error) {
	p := Persona(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown persona %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the known personas.
func (p Persona) Valid() bool {
	switch p {
	case Mum, Boss, Friend, Custom:
		return true
	}
	return false
}

func (p Persona) String() string { return string(p) }

// Urgency controls how pressing the generated dialogue sounds.
type Urgency string

const (
	Low    Urgency = "low"
	Medium Urgency = "medium"
	High   Urgency = "high"
)

// ParseUrgency converts a string to an Urgency. An empty string yields Medium.
func ParseUrgency(s string) (Urgency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Medium, nil
	}
	u := Urgency(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown urgency %q", s)
	}
	return u, nil
}

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case Low, Medium, High:
		return true
	}
	return false
}

func (u Urgency) String() string { return string(u) }
