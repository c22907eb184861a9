package model

import "fmt"

// DefaultLayerSizes is the standard decision-network schedule: six status
// inputs, three hidden layers, three desire outputs.
var DefaultLayerSizes = []int{6, 8, 6, 4, 3}

// Schema fixes the layer-size schedule of a genome for the lifetime of a
// run. The first entry is the input width, the last the output width; every
// entry in between is a hidden layer.
type Schema struct {
	LayerSizes []int `json:"layer_sizes"`
}

// DefaultSchema returns a schema over DefaultLayerSizes.
func DefaultSchema() Schema {
	return Schema{LayerSizes: append([]int(nil), DefaultLayerSizes...)}
}

func (s Schema) Validate() error {
	if len(s.LayerSizes) < 2 {
		return fmt.Errorf("schema needs at least an input and an output layer, got %d layers", len(s.LayerSizes))
	}
	for i, n := range s.LayerSizes {
		if n <= 0 {
			return fmt.Errorf("schema layer %d has non-positive size %d", i, n)
		}
	}
	return nil
}

// Transitions is the number of weight matrices (one per adjacent layer pair).
func (s Schema) Transitions() int {
	return len(s.LayerSizes) - 1
}

// HiddenLayers is the number of modulation flag vectors (layers that are
// neither input nor output).
func (s Schema) HiddenLayers() int {
	if len(s.LayerSizes) < 2 {
		return 0
	}
	return len(s.LayerSizes) - 2
}

func (s Schema) InputSize() int {
	return s.LayerSizes[0]
}

func (s Schema) OutputSize() int {
	return s.LayerSizes[len(s.LayerSizes)-1]
}

// WeightShape returns the (rows, cols) of the weight matrix for transition i.
func (s Schema) WeightShape(i int) (rows, cols int) {
	return s.LayerSizes[i], s.LayerSizes[i+1]
}

// Matches reports whether g has exactly the shapes this schema prescribes.
func (s Schema) Matches(g Genome) bool {
	if len(g.Weights) != s.Transitions() || len(g.Modulation) != s.HiddenLayers() {
		return false
	}
	for i, w := range g.Weights {
		rows, cols := s.WeightShape(i)
		if len(w) != rows {
			return false
		}
		for _, row := range w {
			if len(row) != cols {
				return false
			}
		}
	}
	for i, flags := range g.Modulation {
		if len(flags) != s.LayerSizes[i+1] {
			return false
		}
	}
	return true
}
