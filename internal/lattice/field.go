package lattice

import (
	"fmt"
	"math"
)

// Shunting-equation parameters. Iota doubles as the stimulus magnitude and
// the activation ceiling; there is no lower bound, so a field may dig
// arbitrarily deep repulsive valleys.
const (
	Iota        = 15.0
	Decay       = 0.2
	SnapEpsilon = 1e-4
)

// Moore neighborhood in fixed order NW, N, NE, W, E, SW, S, SE with the
// matching center distances. Wiring is a pure function of the grid shape.
var (
	mooreOffsets = [8][2]int{
		{-1, -1}, {-1, 0}, {-1, 1},
		{0, -1}, {0, 1},
		{1, -1}, {1, 0}, {1, 1},
	}
	mooreDistances = [8]float64{
		math.Sqrt2, 1, math.Sqrt2,
		1, 1,
		math.Sqrt2, 1, math.Sqrt2,
	}
)

// Field is a rows×cols lattice of scalar activations updated synchronously
// from an external stimulus grid.
type Field struct {
	rows  int
	cols  int
	cells [][]float64
}

// NeighborValue is one existing Moore neighbor's position and activation.
type NeighborValue struct {
	Row        int
	Col        int
	Activation float64
}

func New(rows, cols int) (*Field, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("field dimensions must be positive, got %dx%d", rows, cols)
	}
	cells := make([][]float64, rows)
	for i := range cells {
		cells[i] = make([]float64, cols)
	}
	return &Field{rows: rows, cols: cols, cells: cells}, nil
}

func (f *Field) Rows() int { return f.rows }
func (f *Field) Cols() int { return f.cols }

// Step advances the field one tick. Every new value is computed from the
// old grid before any replacement happens:
//
//	new = min(Iota, -Decay*old + stimulus + Σ max(0, old[nbr]) / (6*dist))
//
// summed over the existing Moore neighbors. Results within SnapEpsilon of
// zero are snapped to exactly zero to suppress floating noise.
func (f *Field) Step(stimulus [][]float64) error {
	if len(stimulus) != f.rows {
		return fmt.Errorf("stimulus has %d rows, want %d", len(stimulus), f.rows)
	}
	for i, row := range stimulus {
		if len(row) != f.cols {
			return fmt.Errorf("stimulus row %d has %d cols, want %d", i, len(row), f.cols)
		}
	}

	next := make([][]float64, f.rows)
	for i := 0; i < f.rows; i++ {
		next[i] = make([]float64, f.cols)
		for j := 0; j < f.cols; j++ {
			sum := -Decay*f.cells[i][j] + stimulus[i][j]
			for k, off := range mooreOffsets {
				r, c := i+off[0], j+off[1]
				if r < 0 || r >= f.rows || c < 0 || c >= f.cols {
					continue
				}
				if v := f.cells[r][c]; v > 0 {
					sum += v / (6 * mooreDistances[k])
				}
			}
			v := math.Min(Iota, sum)
			if math.Abs(v) < SnapEpsilon {
				v = 0
			}
			next[i][j] = v
		}
	}
	f.cells = next
	return nil
}

// Activation returns the current value at (r, c).
func (f *Field) Activation(r, c int) float64 {
	return f.cells[r][c]
}

// Landscape returns a copy of the current activation grid.
func (f *Field) Landscape() [][]float64 {
	out := make([][]float64, f.rows)
	for i := range out {
		out[i] = append([]float64(nil), f.cells[i]...)
	}
	return out
}

// NeighborValues lists the existing Moore neighbors of (r, c) in fixed
// order, skipping positions beyond the grid edge.
func (f *Field) NeighborValues(r, c int) []NeighborValue {
	out := make([]NeighborValue, 0, 8)
	for _, off := range mooreOffsets {
		nr, nc := r+off[0], c+off[1]
		if nr < 0 || nr >= f.rows || nc < 0 || nc >= f.cols {
			continue
		}
		out = append(out, NeighborValue{Row: nr, Col: nc, Activation: f.cells[nr][nc]})
	}
	return out
}

// ZeroStimulus allocates an all-zero stimulus grid matching the field.
func (f *Field) ZeroStimulus() [][]float64 {
	out := make([][]float64, f.rows)
	for i := range out {
		out[i] = make([]float64, f.cols)
	}
	return out
}
