package clv

import (
	"math"
	"math/rand/v2"
)

// split partitions row indices 0..n-1 into a training and a held-out set by a
// seeded permutation. The test set takes ceil(testSize*n) rows, at least one,
// and always leaves at least one row for training. Callers ensure n >= 2.
func split(n int, testSize float64, seed uint64) (train, test []int) {
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)

	testN := int(math.Ceil(testSize * float64(n)))
	testN = max(testN, 1)
	testN = min(testN, n-1)

	return perm[testN:], perm[:testN]
}
