package ratelimit

import (
	"context"
	"sync"
	"time"
)

// ErrDelayed is returned by WaitBounded when the limiter admitted the call
// but only after a delay exceeding the configured bound. Callers treat this
// as a degraded-data signal, not a failure: the call itself proceeded.
type DelayedError struct {
	Exchange string
	Delay    time.Duration
}

func (e *DelayedError) Error() string {
	return "ratelimit: " + e.Exchange + " delayed " + e.Delay.String()
}

// Registry holds one limiter per exchange. Fetch and execute paths share the
// same limiter so both call types count against one budget.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	maxDelay time.Duration
}

// NewRegistry creates a registry. maxDelay bounds how long a caller may be
// queued before the wait is reported as degraded; zero disables the check.
func NewRegistry(maxDelay time.Duration) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		maxDelay: maxDelay,
	}
}

// Add registers a limiter for an exchange, replacing any existing one.
func (r *Registry) Add(exchange string, requestsPerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[exchange] = New(requestsPerSecond)
}

// Get returns the limiter for an exchange, or nil if none is registered.
func (r *Registry) Get(exchange string) *Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[exchange]
}

// Wait blocks until the exchange's limiter admits the call or ctx is done.
// Unknown exchanges are admitted immediately.
func (r *Registry) Wait(ctx context.Context, exchange string) error {
	l := r.Get(exchange)
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// WaitBounded waits like Wait but returns a *DelayedError (after waiting)
// when the queueing delay exceeded the registry's bound. Calls are queued,
// never dropped; the error only marks the result as degraded.
func (r *Registry) WaitBounded(ctx context.Context, exchange string) error {
	l := r.Get(exchange)
	if l == nil {
		return nil
	}

	delay := l.Delay()
	if err := l.Wait(ctx); err != nil {
		return err
	}
	if r.maxDelay > 0 && delay > r.maxDelay {
		return &DelayedError{Exchange: exchange, Delay: delay}
	}
	return nil
}
