// Package reactive couples the deliberative network's desire outputs to
// the activity field. Each tick the current desires and world state are
// translated into a stimulus grid of Iota values which is fed to the
// field; movement then follows the field's activation landscape.
package reactive

import (
	"fmt"

	"gephyra/internal/lattice"
	"gephyra/internal/model"
)

// Options configures a reactive layer for one policy.
type Options struct {
	// Rows and Cols give the field dimensions; they must match the world.
	Rows int
	Cols int
	// TargetIDs lists the resource identifiers this policy is assigned to
	// collect. Any other resource repels regardless of desire.
	TargetIDs []int
	// PartnerRepulsion, when set, marks cells occupied by another agent
	// with -Iota so the landscape steers around them.
	PartnerRepulsion bool
}

// Layer owns the activity field for one policy and knows how to convert
// desires plus a world snapshot into stimulus.
type Layer struct {
	field            *lattice.Field
	targets          map[int]bool
	partnerRepulsion bool
}

// New builds a reactive layer over a fresh, all-zero field.
func New(opts Options) (*Layer, error) {
	field, err := lattice.New(opts.Rows, opts.Cols)
	if err != nil {
		return nil, err
	}
	targets := make(map[int]bool, len(opts.TargetIDs))
	for _, id := range opts.TargetIDs {
		targets[id] = true
	}
	return &Layer{
		field:            field,
		targets:          targets,
		partnerRepulsion: opts.PartnerRepulsion,
	}, nil
}

// Update translates the desire vector and world snapshot into stimulus and
// advances the field one tick. Desire indices are fixed: 0 collect
// resources, 1 gather stones, 2 approach water. The partialBridge flag
// switches the water mapping from blanket attraction to steering toward
// the shallowest cells.
func (l *Layer) Update(desires []float64, partialBridge bool, grid [][]model.CellView) error {
	stim, err := l.stimulus(desires, partialBridge, grid)
	if err != nil {
		return err
	}
	return l.field.Step(stim)
}

func (l *Layer) stimulus(desires []float64, partialBridge bool, grid [][]model.CellView) ([][]float64, error) {
	if len(desires) < 3 {
		return nil, fmt.Errorf("desire vector has %d entries, want at least 3", len(desires))
	}
	if len(grid) != l.field.Rows() {
		return nil, fmt.Errorf("grid has %d rows, want %d", len(grid), l.field.Rows())
	}
	stim := l.field.ZeroStimulus()
	for i, row := range grid {
		if len(row) != l.field.Cols() {
			return nil, fmt.Errorf("grid row %d has %d columns, want %d", i, len(row), l.field.Cols())
		}
		for j, cell := range row {
			v := 0.0
			switch cell.Kind {
			case model.CellResource:
				if desires[0] >= 1 {
					v = lattice.Iota
				} else if desires[0] <= -1 {
					v = -lattice.Iota
				}
				// a resource allocated to someone else always repels
				if !l.targets[cell.ResourceID] {
					v = -lattice.Iota
				}
			case model.CellStone:
				if desires[1] >= 1 {
					v = lattice.Iota
				} else if desires[1] <= -1 {
					v = -lattice.Iota
				}
			case model.CellWater:
				if desires[2] >= 1 {
					if partialBridge && cell.WaterDepth > 1 {
						v = -lattice.Iota
					} else {
						v = lattice.Iota
					}
				} else if desires[2] <= -1 {
					v = -lattice.Iota
				}
			}
			if l.partnerRepulsion && cell.Occupied {
				v = -lattice.Iota
			}
			stim[i][j] = v
		}
	}
	return stim, nil
}

// Landscape returns a copy of the current activation landscape.
func (l *Layer) Landscape() [][]float64 {
	return l.field.Landscape()
}

// Activation returns the field value at one cell.
func (l *Layer) Activation(row, col int) float64 {
	return l.field.Activation(row, col)
}

// NeighborValues returns the in-bounds Moore neighbourhood of a cell in
// fixed scan order.
func (l *Layer) NeighborValues(row, col int) []lattice.NeighborValue {
	return l.field.NeighborValues(row, col)
}
