package evo

import (
	"fmt"
	"math/rand"
)

// TournamentDraw picks size distinct member indices from a population,
// shrinking the candidate range as members are taken.
func TournamentDraw(rng *rand.Rand, populationSize, size int) ([]int, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if populationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if size <= 0 || size > populationSize {
		return nil, fmt.Errorf("tournament size %d must be in [1, %d]", size, populationSize)
	}
	candidates := make([]int, populationSize)
	for i := range candidates {
		candidates[i] = i
	}
	picks := make([]int, size)
	for t := 0; t < size; t++ {
		j := t + rng.Intn(populationSize-t)
		candidates[t], candidates[j] = candidates[j], candidates[t]
		picks[t] = candidates[t]
	}
	return picks, nil
}

// BestIndex returns the index of the highest fitness; on ties the
// earliest index wins.
func BestIndex(fitnesses []float64) int {
	best := 0
	for i := 1; i < len(fitnesses); i++ {
		if fitnesses[i] > fitnesses[best] {
			best = i
		}
	}
	return best
}

// WorstIndex returns the index of the lowest fitness; on ties the
// earliest index wins.
func WorstIndex(fitnesses []float64) int {
	worst := 0
	for i := 1; i < len(fitnesses); i++ {
		if fitnesses[i] < fitnesses[worst] {
			worst = i
		}
	}
	return worst
}
