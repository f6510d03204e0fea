package dispatcher

import "sync/atomic"

// WeightStore holds the live analyzer weight map with single-writer,
// many-reader, copy-on-write semantics: the Config Watcher calls Replace
// with a freshly read document on every poll tick, and every ingest call
// reads a consistent snapshot via Snapshot without taking a lock.
type WeightStore struct {
	v atomic.Value // map[string]float64
}

// NewWeightStore constructs a store seeded with initial, e.g. the
// DEFAULT_WEIGHTS parsed at startup before the first config store poll
// completes.
func NewWeightStore(initial map[string]float64) *WeightStore {
	s := &WeightStore{}
	s.Replace(initial)
	return s
}

// Replace atomically swaps in a new weight map. Safe for concurrent use
// with Snapshot from any number of goroutines.
func (s *WeightStore) Replace(weights map[string]float64) {
	cp := make(map[string]float64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	s.v.Store(cp)
}

// Snapshot returns the current weight map. The returned map must not be
// mutated by the caller.
func (s *WeightStore) Snapshot() map[string]float64 {
	m, _ := s.v.Load().(map[string]float64)
	return m
}
