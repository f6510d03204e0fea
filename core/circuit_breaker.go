package core

import (
	"context"
	"time"
)

// CircuitBreaker is the failure-gate contract implemented by
// breaker.Breaker. Callers that only need "run this under breaker
// protection" semantics depend on this interface rather than the
// concrete FSM, keeping the dispatcher's allow/record flow and the
// wrapped-execution style interchangeable.
type CircuitBreaker interface {
	// Execute runs fn with circuit breaker protection. If the circuit
	// denies the call, it returns the implementation's open-circuit
	// error without invoking fn; otherwise fn's result is recorded as
	// a success or failure.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout is Execute with a deadline applied to ctx, for
	// operations that might hang.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns the current state: "closed", "open", or "half_open".
	GetState() string

	// GetMetrics returns current counters and timing for the breaker.
	GetMetrics() map[string]interface{}

	// Reset forces the breaker back to closed with counters cleared.
	Reset()

	// CanExecute reports whether a call would currently be allowed.
	CanExecute() bool
}
