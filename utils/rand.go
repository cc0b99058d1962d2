package utils

import (
	"math/rand"
	"time"
)

// NewSeededRand returns a generator seeded with `seed`, or with the current time when seed is 0.
// Components take an explicit generator so tests can be deterministic.
func NewSeededRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	//nolint:gosec
	return rand.New(rand.NewSource(seed))
}
