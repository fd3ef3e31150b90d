// Package substrate provides the deterministic primitives every other
// engine component draws from: a seeded stream RNG, the virtual clock, and
// the monotonic allocation-id counter.
//
// Everything here is a pure function of the seed and the call sequence.
// None of it touches host time, goroutines, or global state.
package substrate

// RNG is a counter-based SplitMix64 stream generator.
//
// Each draw advances an internal counter; the output for draw n is a pure
// function of (seed, n). Reseeding resets the counter, so two RNGs with the
// same seed always produce the same stream regardless of history.
type RNG struct {
	seed    uint64
	counter uint64
}

// NewRNG creates a generator for the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{seed: seed}
}

// Reseed resets the stream to a new seed. The draw counter restarts at zero.
func (r *RNG) Reseed(seed uint64) {
	r.seed = seed
	r.counter = 0
}

// Seed returns the current seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Draws returns the number of draws taken from the current seed.
func (r *RNG) Draws() uint64 {
	return r.counter
}

// DrawU64 returns the next value in the stream.
func (r *RNG) DrawU64() uint64 {
	r.counter++
	z := r.seed + r.counter*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// DrawRange returns a value in [lo, hi). Panics if hi <= lo; callers
// validate ranges before drawing so a bad range is an engine bug.
func (r *RNG) DrawRange(lo, hi uint64) uint64 {
	if hi <= lo {
		panic("substrate: DrawRange requires lo < hi")
	}
	return lo + r.DrawU64()%(hi-lo)
}

// Pick returns an index in [0, n). Panics if n <= 0.
func (r *RNG) Pick(n int) int {
	if n <= 0 {
		panic("substrate: Pick requires n > 0")
	}
	return int(r.DrawU64() % uint64(n))
}
