// Package circuitbreaker wraps sony/gobreaker with application defaults.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fdemarco/cyclearb/internal/apperror"
)

// Config holds circuit breaker settings.
type Config struct {
	Name          string
	MaxRequests   uint32        // requests allowed in half-open state
	Interval      time.Duration // cyclic period in closed state for clearing counts
	Timeout       time.Duration // open state duration before half-open
	FailureRatio  float64       // trip when ratio of failures exceeds this
	MinRequests   uint32        // minimum requests before the ratio is considered
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns breaker settings tuned for exchange API calls.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      15 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// Breaker is a typed circuit breaker for calls returning T.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a Breaker from the given config.
func New[T any](cfg Config) *Breaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
	}

	return &Breaker[T]{
		cb: gobreaker.NewCircuitBreaker[T](settings),
	}
}

// Execute runs fn through the breaker. When the breaker is open the call is
// not attempted and a CodeCircuitOpen error is returned.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return result, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithContext(b.cb.Name()),
				apperror.WithCause(err))
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return result, apperror.New(apperror.CodeCircuitHalfOpen,
				apperror.WithContext(b.cb.Name()),
				apperror.WithCause(err))
		}
		return result, err
	}
	return result, nil
}

// State returns the breaker's current state.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}
