/*
File Name:  rng.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package addrbook

import (
	"math/rand"
	"time"
)

// bookRNG is the randomness source for Add's stochastic alias-growth
// suppression, Select's rejection sampling, and GetAddr's prefix
// Fisher-Yates shuffle. In deterministic mode it is seeded to a fixed
// value so test runs are reproducible, matching spec §3's "deterministic
// mode" requirement.
type bookRNG struct {
	r *rand.Rand
}

func newBookRNG(deterministic bool) *bookRNG {
	seed := int64(1)
	if !deterministic {
		seed = time.Now().UnixNano()
	}
	return &bookRNG{r: rand.New(rand.NewSource(seed))}
}

// Intn returns a pseudo-random int in [0, n).
func (b *bookRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return b.r.Intn(n)
}

// Bool returns a pseudo-random boolean.
func (b *bookRNG) Bool() bool {
	return b.r.Intn(2) == 1
}

// Chance reports true with probability 1/n.
func (b *bookRNG) Chance(n int) bool {
	if n <= 0 {
		return true
	}
	return b.r.Intn(n) == 0
}

// Float64 returns a pseudo-random float64 in [0, 1).
func (b *bookRNG) Float64() float64 {
	return b.r.Float64()
}
