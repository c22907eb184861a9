package evo

import (
	"math/rand"

	"gephyra/internal/genotype"
	"gephyra/internal/model"
)

// BreedStrategy produces one offspring genome to replace the worst
// tournament member. Parents are the two best remaining members in
// tournament order; population is the whole population the offspring
// will join.
type BreedStrategy interface {
	Name() string
	Breed(rng *rand.Rand, parents [2]model.Genome, population []model.Genome) (model.Genome, error)
}

// CrossoverBreed recombines the two parents and mutates the result: the
// goal-rational social action.
type CrossoverBreed struct {
	Schema model.Schema
	Rates  genotype.Rates
}

func (CrossoverBreed) Name() string { return "goal-rational" }

func (b CrossoverBreed) Breed(rng *rand.Rand, parents [2]model.Genome, _ []model.Genome) (model.Genome, error) {
	return genotype.Crossover(rng, parents[0], parents[1], b.Schema, b.Rates)
}

// TraditionalBreed replaces the worst member with the population's
// representative state: the positionwise median genome.
type TraditionalBreed struct {
	Schema model.Schema
}

func (TraditionalBreed) Name() string { return "traditional" }

func (b TraditionalBreed) Breed(_ *rand.Rand, _ [2]model.Genome, population []model.Genome) (model.Genome, error) {
	return genotype.Median(population, b.Schema)
}

// RandomBreed replaces the worst member with a freshly initialised
// genome, the control for traditional action.
type RandomBreed struct {
	Schema model.Schema
}

func (RandomBreed) Name() string { return "random" }

func (b RandomBreed) Breed(rng *rand.Rand, _ [2]model.Genome, _ []model.Genome) (model.Genome, error) {
	return genotype.Reinitialize(b.Schema, rng)
}

// ChooseStrategy dispatches one breeding step: draws under the
// rationality threshold act goal-rationally, the rest use the
// configured alternative.
func ChooseStrategy(draw, rationality float64, crossover, alternative BreedStrategy) BreedStrategy {
	if draw < rationality {
		return crossover
	}
	return alternative
}
