package model

import "epiworld.sim/internal/sim/rng"

// NoOutcome is returned by Roulette when the draw lands on the residual mass.
const NoOutcome = -1

// Roulette selects index i with probability weights[i], or NoOutcome with probability
// 1 - sum(weights). When the weights add up to more than one they are treated as
// relative and an outcome is always selected. Non-positive weights are never selected.
// Exactly one uniform draw is consumed.
func Roulette(weights []float64, s *rng.Stream) int {
	u := s.Uniform()
	sum := 0.0
	last := NoOutcome
	for i, w := range weights {
		if w > 0 {
			sum += w
			last = i
		}
	}
	if last == NoOutcome {
		return NoOutcome
	}
	if sum > 1 {
		u *= sum
	}
	acc := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if u < acc {
			return i
		}
	}
	if sum > 1 {
		return last
	}
	return NoOutcome
}
