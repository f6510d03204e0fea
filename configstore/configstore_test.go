package configstore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireRedis skips the test when Redis is not reachable at
// localhost:6379.
func requireRedis(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	conn, err := net.DialTimeout("tcp", "localhost:6379", time.Second)
	if err != nil {
		t.Skip("redis not available at localhost:6379")
	}
	conn.Close()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	requireRedis(t)
	s, err := New(Options{RedisURL: "redis://localhost:6379", Namespace: "logdist_test"})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWeightsMissingDocumentReportsNotOK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetWeights(ctx, nil))

	_, ok, err := s.Weights(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetAndReadWeights(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetWeights(ctx, map[string]float64{"A": 1, "B": 3}))
	values, ok, err := s.Weights(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, values["A"])
	assert.Equal(t, 3.0, values["B"])
}

func TestActiveFlagDefaultsTrueWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.IsActive(ctx, "ghost-analyzer")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSetActiveFlagRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "A", false))
	active, err := s.IsActive(ctx, "A")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, s.SetActive(ctx, "A", true))
	active, err = s.IsActive(ctx, "A")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestWatchWeightsAppliesUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.SetWeights(ctx, map[string]float64{"A": 1}))

	updates := make(chan map[string]float64, 4)
	s.WatchWeights(ctx, 20*time.Millisecond, func(m map[string]float64) { updates <- m })

	select {
	case m := <-updates:
		assert.Equal(t, 1.0, m["A"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for weight update")
	}

	require.NoError(t, s.SetWeights(ctx, map[string]float64{"A": 0, "B": 1}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-updates:
			if m["B"] == 1 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for weight update to reflect B:1")
		}
	}
}
