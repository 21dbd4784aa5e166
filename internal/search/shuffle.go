package search

import (
	"math/rand/v2"
	"slices"
)

// newRand returns the generator driving exploration order and the seed it
// was built from. Without a seed one is drawn at random so the run can
// still be replayed.
func newRand(seed *int64) (*rand.Rand, int64) {
	s := rand.Int64()
	if seed != nil {
		s = *seed
	}
	return rand.New(rand.NewPCG(uint64(s), uint64(s)^0x9e3779b97f4a7c15)), s
}

// shuffled returns a uniformly permuted copy of xs (Fisher-Yates).
func shuffled[T any](r *rand.Rand, xs []T) []T {
	out := slices.Clone(xs)
	for i := len(out) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
