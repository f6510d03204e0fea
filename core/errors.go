package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is(). Kept narrow and
// domain-specific rather than the sprawling agent/discovery taxonomy a
// multi-purpose framework needs, since this repository only has
// startup/config, connectivity, and exhaustion failure modes.
var (
	// ErrInvalidConfiguration is wrapped by startup validation failures
	// (malformed ANALYZERS entries, malformed weight pairs).
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrMissingConfiguration is wrapped when a required environment
	// variable or config file value is absent.
	ErrMissingConfiguration = errors.New("missing required configuration")

	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("operation timeout")
	// ErrConnectionFailed marks a transport-level failure to reach a
	// downstream (Redis or an analyzer).
	ErrConnectionFailed = errors.New("connection failed")
	// ErrRequestFailed marks a non-2xx response from a downstream.
	ErrRequestFailed = errors.New("request failed")

	// ErrNoAnalyzers is returned when the configured analyzer set is
	// empty at startup or dispatch time.
	ErrNoAnalyzers = errors.New("no analyzers configured")
	// ErrAllAnalyzersBlocked is returned by the dispatcher when every
	// candidate's breaker denies the call.
	ErrAllAnalyzersBlocked = errors.New("all analyzers blocked by circuit breakers")
)

// FrameworkError provides structured error information with context: the
// operation that failed, a coarse kind for programmatic matching, an
// optional entity ID, and the wrapped cause.
type FrameworkError struct {
	Op      string
	Kind    string
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError.
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

// IsRetryable reports whether err represents a transient condition worth
// retrying: a timeout or a connection failure (rpc.Error maps onto both).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// IsConfigurationError reports whether err is a startup/config failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) || errors.Is(err, ErrMissingConfiguration)
}
