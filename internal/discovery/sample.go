package discovery

import (
	"math/rand"

	"github.com/paycrawl/paycrawl/internal/discovery/source"
)

// sample returns k elements drawn uniformly at random from candidates using
// reservoir sampling. The input slice is not modified. Sampling bounds the
// probing cost of a large (ranking-list sized) candidate set; it is a
// best-effort budget, not a representativeness guarantee.
func sample(candidates []source.CandidateDomain, k int) []source.CandidateDomain {
	if len(candidates) <= k {
		return candidates
	}

	reservoir := make([]source.CandidateDomain, k)
	copy(reservoir, candidates[:k])

	for i := k; i < len(candidates); i++ {
		j := rand.Intn(i + 1)
		if j < k {
			reservoir[j] = candidates[i]
		}
	}
	return reservoir
}
