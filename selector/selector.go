// Package selector implements weighted-random candidate selection over a
// live weight map, with a uniform fallback when the candidate weight sum
// is non-positive.
package selector

import (
	"math/rand"
	"sync"

	"github.com/arclight-systems/logdist/core"
)

// Selector samples one candidate from a shrinking candidate set using a
// process-wide weighted PRNG. It is safe for concurrent use.
type Selector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger core.Logger
}

// New constructs a Selector seeded from seed. Use a time-derived seed in
// production and a fixed seed in statistical tests that need
// reproducibility.
func New(seed int64, logger core.Logger) *Selector {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Selector{rng: rand.New(rand.NewSource(seed)), logger: logger}
}

// Choose samples one name from candidates, weighted by weights[name].
// Candidates absent from weights are treated as weight 0. Negative
// weights are floored to 0. If the resulting weight sum is <= 0, Choose
// logs a warning and falls back to a uniform choice over candidates.
//
// candidates must be non-empty; callers are expected to have already
// handled the empty-candidate-set case (service unavailable).
func (s *Selector) Choose(candidates []string, weights map[string]float64) string {
	w := make([]float64, len(candidates))
	var sum float64
	for i, c := range candidates {
		v := weights[c]
		if v < 0 {
			v = 0
		}
		w[i] = v
		sum += v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sum <= 0 {
		s.logger.Warn("sum of candidate weights is not positive, using uniform distribution", map[string]interface{}{
			"candidates": candidates,
		})
		return candidates[s.rng.Intn(len(candidates))]
	}

	pick := s.rng.Float64() * sum
	var cursor float64
	for i, v := range w {
		cursor += v
		if pick < cursor {
			return candidates[i]
		}
	}
	// Floating point rounding can leave pick fractionally beyond the last
	// cursor; fall back to the last candidate rather than panic.
	return candidates[len(candidates)-1]
}
