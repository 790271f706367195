// Package breaker builds the circuit breakers that guard LLM providers and
// the weather and places sources.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"weatherdine/internal/infra/config"
)

const (
	DefaultMaxFailures uint32 = 5
	DefaultOpenTimeout        = 30 * time.Second
	DefaultInterval           = 60 * time.Second
)

// New returns a breaker that opens after cfg.MaxFailures consecutive
// failures and half-opens after cfg.Timeout. A disabled config never trips.
//
// Errors matching one of neutral, and context cancellation, are caller
// problems and count as successes. Zero config fields use the defaults.
func New[T any](name string, cfg config.CircuitBreakerConfig, logger *slog.Logger, neutral ...error) *gobreaker.CircuitBreaker[T] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultOpenTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	enabled := cfg.Enabled

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return enabled && c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			for _, n := range neutral {
				if errors.Is(err, n) {
					return true
				}
			}
			return false
		},
	})
}

// Rejected reports whether err came from the breaker itself rather than the
// guarded call.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
