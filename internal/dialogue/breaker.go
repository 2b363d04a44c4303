package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerFailures uint32        = 3
	defaultBreakerTimeout  time.Duration = 30 * time.Second
	defaultBreakerInterval time.Duration = 60 * time.Second
)

// BreakerConfig tunes the circuit breaker around a Generator.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a trial request is allowed.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while closed. Zero never clears them.
	Interval time.Duration `yaml:"interval"`
}

// Breaker stops calling a failing Generator for a while so that calls fall
// back to demo scripts at once instead of waiting on a dead service.
type Breaker struct {
	next    Generator
	breaker *gobreaker.CircuitBreaker[Script]
}

// NewBreaker wraps next. Zero config fields take defaults.
func NewBreaker(next Generator, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	cb := gobreaker.NewCircuitBreaker[Script](gobreaker.Settings{
		Name:        "dialogue",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A missing key or an abandoned call says nothing about the
		// service's health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsMissingCredential(err) || errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{next: next, breaker: cb}
}

// Generate implements Generator.
func (b *Breaker) Generate(ctx context.Context, req Request) (Script, error) {
	s, err := b.breaker.Execute(func() (Script, error) {
		return b.next.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Script{}, &GenerationError{Cause: NetworkOrService, Err: err}
	}
	return s, err
}

// State returns the circuit state for monitoring.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }
