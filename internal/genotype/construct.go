package genotype

import (
	"fmt"
	"math/rand"
	"time"

	"gephyra/internal/model"
)

// Breeding rates of the steady-state algorithm. CrossoverRate is the chance
// a weight column undergoes single-point crossover instead of whole-column
// inheritance; MutationRate is the standard deviation of the Gaussian noise
// added to every offspring weight; ModulationRate is the chance exactly one
// modulation flag of the offspring is flipped.
const (
	DefaultCrossoverRate  = 0.05
	DefaultMutationRate   = 0.01
	DefaultModulationRate = 0.15
)

// Rates bundles the stochastic parameters of the genetic operators.
type Rates struct {
	Crossover  float64
	Mutation   float64
	Modulation float64
}

func DefaultRates() Rates {
	return Rates{
		Crossover:  DefaultCrossoverRate,
		Mutation:   DefaultMutationRate,
		Modulation: DefaultModulationRate,
	}
}

// Validate checks the probabilities lie in [0,1] and the noise scale is
// non-negative.
func (r Rates) Validate() error {
	if r.Crossover < 0 || r.Crossover > 1 {
		return fmt.Errorf("crossover rate %v outside [0,1]", r.Crossover)
	}
	if r.Modulation < 0 || r.Modulation > 1 {
		return fmt.Errorf("modulation rate %v outside [0,1]", r.Modulation)
	}
	if r.Mutation < 0 {
		return fmt.Errorf("mutation scale %v is negative", r.Mutation)
	}
	return nil
}

// NewRandom builds a genome with weights drawn uniformly from [-1, 1) and
// every modulation flag cleared, matching the population-initialization
// lifecycle.
func NewRandom(schema model.Schema, rng *rand.Rand) (model.Genome, error) {
	if err := schema.Validate(); err != nil {
		return model.Genome{}, err
	}
	rng = ensureRNG(rng)

	g := model.Genome{
		Weights:    make([][][]float64, schema.Transitions()),
		Modulation: make([][]bool, schema.HiddenLayers()),
	}
	for i := 0; i < schema.Transitions(); i++ {
		rows, cols := schema.WeightShape(i)
		w := make([][]float64, rows)
		for r := 0; r < rows; r++ {
			row := make([]float64, cols)
			for c := 0; c < cols; c++ {
				row[c] = randomUnit(rng)
			}
			w[r] = row
		}
		g.Weights[i] = w
	}
	for i := 0; i < schema.HiddenLayers(); i++ {
		g.Modulation[i] = make([]bool, schema.LayerSizes[i+1])
	}
	return g, nil
}

// CloneGenome deep-copies g so the copy can mutate freely.
func CloneGenome(g model.Genome) model.Genome {
	out := model.Genome{
		Weights:    make([][][]float64, len(g.Weights)),
		Modulation: make([][]bool, len(g.Modulation)),
	}
	for i, w := range g.Weights {
		layer := make([][]float64, len(w))
		for r, row := range w {
			layer[r] = append([]float64(nil), row...)
		}
		out.Weights[i] = layer
	}
	for i, flags := range g.Modulation {
		out.Modulation[i] = append([]bool(nil), flags...)
	}
	return out
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// randomUnit draws uniformly from [-1, 1).
func randomUnit(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

func coinFlip(rng *rand.Rand) bool {
	return rng.Intn(2) == 0
}
