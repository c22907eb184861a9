package genotype

import (
	"fmt"
	"math/rand"

	"gephyra/internal/model"
)

// Crossover combines two parent genomes into a fresh offspring. Each output
// column of every weight matrix is treated independently: with probability
// 1-rates.Crossover the whole column is inherited from a coin-flipped
// parent, otherwise a single-point crossover splits the column at a uniform
// row, a coin flip deciding which parent supplies the prefix. Every weight
// of the resulting column then receives additive Gaussian noise with
// standard deviation rates.Mutation. Modulation flag vectors are inherited
// en bloc per hidden layer from a coin-flipped parent; afterwards, with
// probability rates.Modulation, exactly one uniformly-chosen flag across
// the whole offspring is toggled. Neither parent is modified.
func Crossover(rng *rand.Rand, a, b model.Genome, schema model.Schema, rates Rates) (model.Genome, error) {
	if err := schema.Validate(); err != nil {
		return model.Genome{}, err
	}
	if !schema.Matches(a) {
		return model.Genome{}, fmt.Errorf("first parent does not match the layer schedule %v", schema.LayerSizes)
	}
	if !schema.Matches(b) {
		return model.Genome{}, fmt.Errorf("second parent does not match the layer schedule %v", schema.LayerSizes)
	}
	rng = ensureRNG(rng)

	offspring := model.Genome{
		Weights:    make([][][]float64, schema.Transitions()),
		Modulation: make([][]bool, schema.HiddenLayers()),
	}
	for layer := 0; layer < schema.Transitions(); layer++ {
		rows, cols := schema.WeightShape(layer)
		w := make([][]float64, rows)
		for r := range w {
			w[r] = make([]float64, cols)
		}
		for col := 0; col < cols; col++ {
			if rng.Float64() > rates.Crossover {
				// whole column from one parent
				src := a
				if !coinFlip(rng) {
					src = b
				}
				for row := 0; row < rows; row++ {
					w[row][col] = src.Weights[layer][row][col]
				}
			} else {
				// single-point crossover within the column
				point := rng.Intn(rows)
				first := coinFlip(rng)
				for row := 0; row < rows; row++ {
					fromA := first
					if row >= point {
						fromA = !first
					}
					if fromA {
						w[row][col] = a.Weights[layer][row][col]
					} else {
						w[row][col] = b.Weights[layer][row][col]
					}
				}
			}
			for row := 0; row < rows; row++ {
				w[row][col] += rng.NormFloat64() * rates.Mutation
			}
		}
		offspring.Weights[layer] = w
	}

	for layer := 0; layer < schema.HiddenLayers(); layer++ {
		src := a
		if !coinFlip(rng) {
			src = b
		}
		offspring.Modulation[layer] = append([]bool(nil), src.Modulation[layer]...)
	}
	if rng.Float64() < rates.Modulation {
		flipOneFlag(rng, offspring.Modulation)
	}
	return offspring, nil
}

// flipOneFlag toggles one flag chosen uniformly across all hidden layers.
func flipOneFlag(rng *rand.Rand, modulation [][]bool) {
	total := 0
	for _, flags := range modulation {
		total += len(flags)
	}
	if total == 0 {
		return
	}
	idx := rng.Intn(total)
	for _, flags := range modulation {
		if idx < len(flags) {
			flags[idx] = !flags[idx]
			return
		}
		idx -= len(flags)
	}
}

// Reinitialize discards ancestry entirely and returns a brand-new random
// genome, the "immigrant" breeding path.
func Reinitialize(schema model.Schema, rng *rand.Rand) (model.Genome, error) {
	return NewRandom(schema, rng)
}
