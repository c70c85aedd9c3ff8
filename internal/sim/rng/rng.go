// Package rng provides the seeded random stream owned by a single simulation run.
// A Stream is not safe for concurrent use; each replicate gets its own.
package rng

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

type Stream struct {
	seed uint64
	src  *rand.PCG
	r    *rand.Rand
}

func New(seed uint64) *Stream {
	src := rand.NewPCG(seed, mix64(seed))
	return &Stream{seed: seed, src: src, r: rand.New(src)}
}

// Seed returns the seed the stream was created (or last reseeded) with.
func (s *Stream) Seed() uint64 { return s.seed }

// Reseed restarts the stream as if it had been created with seed.
func (s *Stream) Reseed(seed uint64) {
	s.seed = seed
	s.src.Seed(seed, mix64(seed))
}

// Uniform returns a draw in [0,1).
func (s *Stream) Uniform() float64 { return s.r.Float64() }

// Intn returns a draw in [0,n). n must be > 0.
func (s *Stream) Intn(n int) int { return s.r.IntN(n) }

// Gamma draws from a gamma distribution with the given shape and scale.
func (s *Stream) Gamma(shape, scale float64) float64 {
	if shape <= 0 || scale <= 0 {
		return 0
	}
	return distuv.Gamma{Alpha: shape, Beta: 1 / scale, Src: s.src}.Rand()
}

// Binomial draws the number of successes out of n trials.
func (s *Stream) Binomial(n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: p, Src: s.src}.Rand())
}

// Shuffle permutes ids in place.
func (s *Stream) Shuffle(ids []int) {
	s.r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// SeedFor derives the seed of replicate i from a batch base seed. The result depends only on
// (base, i), so a batch is reproducible regardless of which worker runs which replicate.
func SeedFor(base int64, replicate int) uint64 {
	v := uint64(base) ^ (uint64(uint32(int32(replicate))) * 0x9e3779b97f4a7c15)
	return mix64(v)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
