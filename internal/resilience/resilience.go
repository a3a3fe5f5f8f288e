// Package resilience guards calls to flaky remote dependencies with a
// circuit breaker.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgard/nlud/internal/logger"
)

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Config holds the settings of a CircuitBreaker.
type Config struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before letting a trial request through.
	OpenTimeout time.Duration
}

// CircuitBreaker wraps gobreaker with context-aware operations and slog logging.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a CircuitBreaker. Zero settings get defaults.
func NewCircuitBreaker(cfg Config, log *slog.Logger) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "circuit_breaker", "name", cfg.Name)

	maxFailures := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs operation through the breaker. A canceled ctx is not counted
// as a failure of the guarded dependency.
func (b *CircuitBreaker) Execute(ctx context.Context, operation func(context.Context) error) error {
	var ctxErr error
	_, err := b.cb.Execute(func() (interface{}, error) {
		err := operation(ctx)
		if err != nil && ctx.Err() != nil {
			ctxErr = err
			return nil, nil
		}
		return nil, err
	})
	if ctxErr != nil {
		return ctxErr
	}
	return err
}

// State returns the current state name: "closed", "half-open" or "open".
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}
