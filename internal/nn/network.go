package nn

import (
	"fmt"
	"math"

	"gephyra/internal/model"
)

// OutputThreshold is the symmetric discretization bound for the final
// layer: values above it saturate to 1, below its negation to -1.
const OutputThreshold = 0.3

// Forward propagates input through the genome's weight matrices in
// schedule order. After every matrix product except the last the values
// pass through tanh and then, when neuromodulation is enabled, the
// modulation pass: a hidden unit whose flag is set has negative values
// forced to zero while positive values pass unchanged. The final layer is
// returned raw, without activation. Forward is a pure function of its
// arguments; repeated calls with identical inputs return identical
// outputs.
func Forward(g model.Genome, schema model.Schema, input []float64, neuromodulation bool) ([]float64, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if !schema.Matches(g) {
		return nil, fmt.Errorf("genome does not match the layer schedule %v", schema.LayerSizes)
	}
	if len(input) != schema.InputSize() {
		return nil, fmt.Errorf("input length %d, want %d", len(input), schema.InputSize())
	}

	current := append([]float64(nil), input...)
	last := schema.Transitions() - 1
	for layer := 0; layer <= last; layer++ {
		next := matVec(current, g.Weights[layer])
		if layer == last {
			return next, nil
		}
		for i := range next {
			next[i] = math.Tanh(next[i])
		}
		if neuromodulation {
			for i, gated := range g.Modulation[layer] {
				if gated && next[i] < 0 {
					next[i] = 0
				}
			}
		}
		current = next
	}
	return current, nil
}

// Discretize maps raw output values onto the sub-goal alphabet {-1, 0, 1}
// using the symmetric ±OutputThreshold bounds.
func Discretize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		switch {
		case v > OutputThreshold:
			out[i] = 1
		case v < -OutputThreshold:
			out[i] = -1
		}
	}
	return out
}

// Decide runs Forward and discretizes the result into desire values.
func Decide(g model.Genome, schema model.Schema, input []float64, neuromodulation bool) ([]float64, error) {
	raw, err := Forward(g, schema, input, neuromodulation)
	if err != nil {
		return nil, err
	}
	return Discretize(raw), nil
}

// matVec multiplies a row vector by a rows×cols matrix.
func matVec(in []float64, w [][]float64) []float64 {
	cols := len(w[0])
	out := make([]float64, cols)
	for c := 0; c < cols; c++ {
		sum := 0.0
		for r := range in {
			sum += in[r] * w[r][c]
		}
		out[c] = sum
	}
	return out
}
