package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, cfg Config) *Breaker {
	t.Helper()
	b, err := New("A", cfg)
	require.NoError(t, err)
	return b
}

func TestNewRejectsNonPositiveConfig(t *testing.T) {
	cases := []Config{
		{FailureThreshold: 0, RecoveryTimeout: time.Second, HalfOpenSuccessThreshold: 1},
		{FailureThreshold: 1, RecoveryTimeout: 0, HalfOpenSuccessThreshold: 1},
		{FailureThreshold: 1, RecoveryTimeout: time.Second, HalfOpenSuccessThreshold: 0},
		{FailureThreshold: -1, RecoveryTimeout: time.Second, HalfOpenSuccessThreshold: 1},
	}
	for _, c := range cases {
		_, err := New("A", c)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestClosedOpensAtKthConsecutiveFailure(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, HalfOpenSuccessThreshold: 1})

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateClosed.String(), b.GetState())
	b.RecordFailure()
	assert.Equal(t, StateClosed.String(), b.GetState())
	b.RecordFailure()
	assert.Equal(t, StateOpen.String(), b.GetState())
}

func TestSuccessBeforeThresholdResetsCounter(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, HalfOpenSuccessThreshold: 1})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, 0, b.Snapshot().ConsecutiveFailures)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed.String(), b.GetState())
	b.RecordFailure()
	assert.Equal(t, StateOpen.String(), b.GetState())
}

func TestOpenBlocksUntilRecoveryTimeoutThenPromotesOnce(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: 50 * time.Millisecond, HalfOpenSuccessThreshold: 1})
	b.RecordFailure()
	require.Equal(t, StateOpen.String(), b.GetState())

	assert.False(t, b.Allow())
	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen.String(), b.GetState())
}

func TestHalfOpenRequiresExactSuccessesNoIntervening(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, HalfOpenSuccessThreshold: 2})
	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, StateHalfOpen.String(), b.GetState())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen.String(), b.GetState())
	b.RecordSuccess()
	assert.Equal(t, StateClosed.String(), b.GetState())
}

func TestHalfOpenAnyFailureTripsOpenAndResetsCounters(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, HalfOpenSuccessThreshold: 5})
	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())
	b.RecordSuccess()
	b.RecordSuccess()
	require.Equal(t, 2, b.Snapshot().HalfOpenSuccesses)

	b.RecordFailure()
	s := b.Snapshot()
	assert.Equal(t, StateOpen.String(), s.State)
	assert.Equal(t, 0, s.HalfOpenSuccesses)
	assert.Equal(t, 0, s.ConsecutiveFailures)
}

func TestSnapshotOpenedForSecs(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenSuccessThreshold: 1})
	assert.Equal(t, -1.0, b.Snapshot().OpenedForSecs)
	b.RecordFailure()
	assert.GreaterOrEqual(t, b.Snapshot().OpenedForSecs, 0.0)
}

func TestConcurrentAllowAndRecordDoNotTearSnapshot(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 5, RecoveryTimeout: 10 * time.Millisecond, HalfOpenSuccessThreshold: 3})
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			if b.Allow() {
				if i%2 == 0 {
					b.RecordSuccess()
				} else {
					b.RecordFailure()
				}
			}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	s := b.Snapshot()
	assert.Contains(t, []string{"closed", "open", "half_open"}, s.State)
}

func TestExecuteConformsToCoreCircuitBreaker(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenSuccessThreshold: 1})
	err := b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.True(t, b.CanExecute())
}
