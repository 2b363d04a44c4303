// Package dialogue produces the lines a simulated caller speaks.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/keshucs12345/callsim/internal/persona"
)

// Request describes the call a script is generated for.
type Request struct {
	Persona        persona.Persona
	Situation      string
	Urgency        persona.Urgency
	TargetDuration time.Duration
}

// Source records where a script came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Script is an ordered set of lines for one call.
type Script struct {
	Lines             []string `json:"lines"`
	EstimatedDuration int      `json:"estimated_duration_seconds"`
	Source            Source   `json:"source"`
}

// Generator produces a script for a call.
type Generator interface {
	Generate(ctx context.Context, req Request) (Script, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Script, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Script, error) {
	return f(ctx, req)
}

// Cause classifies a generation failure.
type Cause int

const (
	// NetworkOrService covers every failure other than a missing credential.
	NetworkOrService Cause = iota
	// MissingCredential means no usable API key is configured.
	MissingCredential
)

func (c Cause) String() string {
	if c == MissingCredential {
		return "missing_credential"
	}
	return "network_or_service"
}

// ErrEmptyScript is returned when a response has no speakable lines.
var ErrEmptyScript = errors.New("dialogue: no spoken lines in response")

// GenerationError is returned by a Generator that could not produce a script.
type GenerationError struct {
	Cause Cause
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dialogue generation failed: %s", e.Cause)
	}
	return fmt.Sprintf("dialogue generation failed: %s: %v", e.Cause, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsMissingCredential reports whether err is a GenerationError caused by a
// missing credential.
func IsMissingCredential(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Cause == MissingCredential
}

// EstimateDuration returns the seconds needed to speak lines at three
// words per second, rounded up.
func EstimateDuration(lines []string) int {
	words := len(strings.Fields(strings.Join(lines, " ")))
	return int(math.Ceil(float64(words) / 3))
}

func newScript(lines []string, src Source) Script {
	return Script{Lines: lines, EstimatedDuration: EstimateDuration(lines), Source: src}
}
