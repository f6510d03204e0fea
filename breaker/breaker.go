// Package breaker implements a per-analyzer circuit breaker with a
// three-state FSM (closed/open/half-open) driven by consecutive failure
// counts rather than error-rate windows.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arclight-systems/logdist/core"
)

// State represents the state of a Breaker.
type State int

const (
	// StateClosed allows all requests through.
	StateClosed State = iota
	// StateOpen blocks all requests until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows probe requests through to test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrInvalidConfig is returned by New when the supplied thresholds or
// cooldown are not strictly positive.
var ErrInvalidConfig = errors.New("breaker: thresholds and recovery timeout must be positive")

// Config holds the tunable thresholds for a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures in CLOSED
	// that trips the breaker to OPEN.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays OPEN before allowing
	// a probe request through (transitioning to HALF_OPEN).
	RecoveryTimeout time.Duration
	// HalfOpenSuccessThreshold is the number of consecutive successes in
	// HALF_OPEN required to transition back to CLOSED.
	HalfOpenSuccessThreshold int
	// Logger receives structured transition and failure records.
	Logger core.Logger
}

// Validate rejects non-positive thresholds and non-positive cooldown.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 || c.RecoveryTimeout <= 0 || c.HalfOpenSuccessThreshold <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Snapshot is a lock-consistent, point-in-time read of a Breaker's state.
type Snapshot struct {
	Name                     string  `json:"name"`
	State                    string  `json:"state"`
	ConsecutiveFailures      int     `json:"consecutive_failures"`
	HalfOpenSuccesses        int     `json:"half_open_successes"`
	OpenedForSecs            float64 `json:"opened_for_secs"`
	FailureThreshold         int     `json:"failure_threshold"`
	RecoveryTimeoutSecs      float64 `json:"recovery_timeout_secs"`
	HalfOpenSuccessThreshold int     `json:"half_open_success_threshold"`
}

// Breaker is a per-destination circuit breaker gated on consecutive
// failure counts. The zero value is not usable; construct with New.
//
// All operations are safe under concurrent invocation on the same
// instance: a single mutex serializes state reads and transitions so that
// the cooldown check and the OPEN->HALF_OPEN promotion inside Allow form
// one critical section. Splitting them would race concurrent callers.
type Breaker struct {
	name   string
	config Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	openedAt            time.Time
	hasOpenedAt         bool

	now func() time.Time
}

// New constructs a Breaker for the given analyzer name. It rejects
// non-positive thresholds and non-positive cooldown.
func New(name string, config Config) (*Breaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}, nil
}

// Allow reports whether a call should be attempted now.
//
//   - CLOSED: always true.
//   - HALF_OPEN: always true (lets the probe through; concurrent probes
//     are not serialized by this method).
//   - OPEN: true only once the recovery timeout has elapsed, in which
//     case it atomically transitions to HALF_OPEN before returning.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.config.RecoveryTimeout {
			b.transitionLocked(StateHalfOpen, "recovery_timeout_elapsed")
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call.
//
// In HALF_OPEN, increments the half-open success count and closes the
// breaker once the threshold is reached. In CLOSED, resets the
// consecutive failure count. In OPEN this is a no-op (Allow should have
// already blocked the caller).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.HalfOpenSuccessThreshold {
			b.transitionLocked(StateClosed, "half_open_success_threshold_reached")
			b.clearCountersLocked()
		}
	case StateClosed:
		b.consecutiveFailures = 0
	}
}

// RecordFailure records a failed call.
//
// In HALF_OPEN, any single failure trips the breaker back to OPEN
// immediately. In CLOSED, increments the consecutive failure count and
// trips to OPEN once the failure threshold is reached. In OPEN this is a
// no-op.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	pre := b.snapshotLocked()
	b.config.Logger.Debug("circuit_fail", map[string]interface{}{
		"name":     b.name,
		"snapshot": pre,
	})

	switch b.state {
	case StateHalfOpen:
		b.tripOpenLocked("half_open_probe_failed")
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.tripOpenLocked("failure_threshold_reached")
		}
	}
}

// Snapshot returns a lock-consistent read of the breaker's current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() Snapshot {
	openedFor := -1.0
	if b.hasOpenedAt {
		openedFor = b.now().Sub(b.openedAt).Seconds()
	}
	return Snapshot{
		Name:                     b.name,
		State:                    b.state.String(),
		ConsecutiveFailures:      b.consecutiveFailures,
		HalfOpenSuccesses:        b.halfOpenSuccesses,
		OpenedForSecs:            openedFor,
		FailureThreshold:         b.config.FailureThreshold,
		RecoveryTimeoutSecs:      b.config.RecoveryTimeout.Seconds(),
		HalfOpenSuccessThreshold: b.config.HalfOpenSuccessThreshold,
	}
}

func (b *Breaker) tripOpenLocked(reason string) {
	b.openedAt = b.now()
	b.hasOpenedAt = true
	b.transitionLocked(StateOpen, reason)
	b.clearCountersLocked()
}

func (b *Breaker) clearCountersLocked() {
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	if b.state != StateOpen {
		b.hasOpenedAt = false
	}
}

func (b *Breaker) transitionLocked(to State, reason string) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.hasOpenedAt = false
	}
	b.config.Logger.Info("circuit_state_change", map[string]interface{}{
		"name":                        b.name,
		"from":                        from.String(),
		"to":                          to.String(),
		"reason":                      reason,
		"failure_threshold":           b.config.FailureThreshold,
		"recovery_timeout_secs":       b.config.RecoveryTimeout.Seconds(),
		"half_open_success_threshold": b.config.HalfOpenSuccessThreshold,
	})
}

// Execute runs fn under circuit breaker protection, conforming to
// core.CircuitBreaker. If the circuit denies the call, it returns
// ErrOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// ExecuteWithTimeout runs fn with both circuit breaker protection and a
// deadline, conforming to core.CircuitBreaker. If fn has not returned
// when the deadline expires, the context error is returned and recorded
// as a failure; fn keeps running in its own goroutine.
func (b *Breaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.Execute(ctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// GetState conforms to core.CircuitBreaker.
func (b *Breaker) GetState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// GetMetrics conforms to core.CircuitBreaker.
func (b *Breaker) GetMetrics() map[string]interface{} {
	s := b.Snapshot()
	return map[string]interface{}{
		"state":                s.State,
		"consecutive_failures": s.ConsecutiveFailures,
		"half_open_successes":  s.HalfOpenSuccesses,
		"opened_for_secs":      s.OpenedForSecs,
	}
}

// Reset conforms to core.CircuitBreaker: manually force the breaker back
// to CLOSED with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed, "manual_reset")
	b.clearCountersLocked()
}

// CanExecute conforms to core.CircuitBreaker. It shares Allow's
// OPEN->HALF_OPEN promotion behavior, so callers that intend to invoke
// the protected call should use Allow directly.
func (b *Breaker) CanExecute() bool {
	return b.Allow()
}

// ErrOpen is returned by Execute when the breaker denies the call.
var ErrOpen = fmt.Errorf("breaker: circuit open")

var _ core.CircuitBreaker = (*Breaker)(nil)
