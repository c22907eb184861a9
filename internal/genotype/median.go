package genotype

import (
	"fmt"
	"sort"

	"gephyra/internal/model"
)

// Median assembles the representative-state genome of a population: for
// every weight position the upper median (sorted values at index n/2)
// across all individuals, and for every modulation flag a per-position
// majority vote with ties resolved to unset. Every member must match the
// schema.
func Median(population []model.Genome, schema model.Schema) (model.Genome, error) {
	if err := schema.Validate(); err != nil {
		return model.Genome{}, err
	}
	if len(population) == 0 {
		return model.Genome{}, fmt.Errorf("median of an empty population is undefined")
	}
	for i, g := range population {
		if !schema.Matches(g) {
			return model.Genome{}, fmt.Errorf("population member %d does not match the layer schedule %v", i, schema.LayerSizes)
		}
	}

	out := model.Genome{
		Weights:    make([][][]float64, schema.Transitions()),
		Modulation: make([][]bool, schema.HiddenLayers()),
	}
	values := make([]float64, len(population))
	for layer := 0; layer < schema.Transitions(); layer++ {
		rows, cols := schema.WeightShape(layer)
		w := make([][]float64, rows)
		for row := 0; row < rows; row++ {
			w[row] = make([]float64, cols)
			for col := 0; col < cols; col++ {
				for i, g := range population {
					values[i] = g.Weights[layer][row][col]
				}
				sort.Float64s(values)
				w[row][col] = values[len(values)/2]
			}
		}
		out.Weights[layer] = w
	}
	for layer := 0; layer < schema.HiddenLayers(); layer++ {
		size := schema.LayerSizes[layer+1]
		flags := make([]bool, size)
		for pos := 0; pos < size; pos++ {
			set := 0
			for _, g := range population {
				if g.Modulation[layer][pos] {
					set++
				}
			}
			flags[pos] = set*2 > len(population)
		}
		out.Modulation[layer] = flags
	}
	return out, nil
}

