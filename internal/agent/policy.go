// Package agent binds one genome to its two decision layers: the
// deliberative network that picks sub-goals from the status vector, and
// the reactive field that turns sub-goals plus world state into movement.
package agent

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"gephyra/internal/genotype"
	"gephyra/internal/model"
	"gephyra/internal/nn"
	"gephyra/internal/reactive"
)

// Options fixes the per-policy configuration for the lifetime of the
// policy. Rows and Cols size the reactive field and must match the world
// the policy is evaluated in.
type Options struct {
	Schema           model.Schema
	Rows             int
	Cols             int
	Aware            bool
	Neuromodulation  bool
	PartnerRepulsion bool
}

// Policy is one evolvable individual: a genome, its decision machinery,
// and the fitness bookkeeping for the evaluation in progress.
type Policy struct {
	id   string
	opts Options

	genome model.Genome

	reactiveLayer *reactive.Layer
	lastDecisions []float64

	fitness    float64
	hasFitness bool
	cumulative float64
	episodes   []model.EpisodeStats
}

// New builds a policy around a genome. The genome must match the schema.
func New(genome model.Genome, opts Options) (*Policy, error) {
	if err := opts.Schema.Validate(); err != nil {
		return nil, err
	}
	if !opts.Schema.Matches(genome) {
		return nil, fmt.Errorf("genome does not match the layer schedule %v", opts.Schema.LayerSizes)
	}
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return nil, fmt.Errorf("field dimensions %dx%d must be positive", opts.Rows, opts.Cols)
	}
	return &Policy{
		id:            uuid.NewString(),
		opts:          opts,
		genome:        genotype.CloneGenome(genome),
		lastDecisions: make([]float64, opts.Schema.OutputSize()),
	}, nil
}

// ID returns the policy's unique identifier.
func (p *Policy) ID() string { return p.id }

// Aware reports whether this policy receives its partner's decisions in
// place of the tail of its status vector.
func (p *Policy) Aware() bool { return p.opts.Aware }

// Neuromodulated reports whether the modulation pass is applied during
// forward propagation.
func (p *Policy) Neuromodulated() bool { return p.opts.Neuromodulation }

// Genome returns a deep copy of the policy's genome.
func (p *Policy) Genome() model.Genome { return genotype.CloneGenome(p.genome) }

// StartEpisode discards any previous reactive state and builds a fresh
// field targeting the given resource identifiers. Cached decisions reset
// to zero so partners observing them see a neutral vector at tick zero.
func (p *Policy) StartEpisode(targetIDs []int) error {
	layer, err := reactive.New(reactive.Options{
		Rows:             p.opts.Rows,
		Cols:             p.opts.Cols,
		TargetIDs:        targetIDs,
		PartnerRepulsion: p.opts.PartnerRepulsion,
	})
	if err != nil {
		return err
	}
	p.reactiveLayer = layer
	for i := range p.lastDecisions {
		p.lastDecisions[i] = 0
	}
	return nil
}

// Decide runs one full decision tick from the cell at (row, col): the
// deliberative forward pass picks sub-goals, the reactive field absorbs
// them together with the current world view, and the move is the Moore
// neighbour with the highest activation (first in scan order on ties).
// The returned offsets are relative to (row, col); (0, 0) means stay.
func (p *Policy) Decide(status []float64, partialBridge bool, view [][]model.CellView, row, col int) (int, int, error) {
	if p.reactiveLayer == nil {
		return 0, 0, fmt.Errorf("policy %s: no episode in progress", p.id)
	}
	desires, err := nn.Decide(p.genome, p.opts.Schema, status, p.opts.Neuromodulation)
	if err != nil {
		return 0, 0, err
	}
	copy(p.lastDecisions, desires)
	if err := p.reactiveLayer.Update(desires, partialBridge, view); err != nil {
		return 0, 0, err
	}

	neighbors := p.reactiveLayer.NeighborValues(row, col)
	if len(neighbors) == 0 {
		return 0, 0, nil
	}
	activations := make([]float64, len(neighbors))
	for i, nv := range neighbors {
		activations[i] = nv.Activation
	}
	best := neighbors[floats.MaxIdx(activations)]
	return best.Row - row, best.Col - col, nil
}

// LastDecisions returns a copy of the most recent discretized output, or
// all zeros before the first decision of an episode.
func (p *Policy) LastDecisions() []float64 {
	return append([]float64(nil), p.lastDecisions...)
}

// Landscape exposes the current reactive activation landscape, or nil
// when no episode is in progress.
func (p *Policy) Landscape() [][]float64 {
	if p.reactiveLayer == nil {
		return nil
	}
	return p.reactiveLayer.Landscape()
}

// BeginEvaluation clears the cumulative fitness and the episode log ahead
// of a fresh evaluation. The fitness reverts to unset until the evaluation
// finishes.
func (p *Policy) BeginEvaluation() {
	p.fitness = 0
	p.hasFitness = false
	p.cumulative = 0
	p.episodes = nil
}

// RecordEpisode appends one episode's stats and folds its fitness into
// the cumulative total.
func (p *Policy) RecordEpisode(stats model.EpisodeStats) {
	p.episodes = append(p.episodes, stats)
	p.cumulative += stats.Fitness
}

// FinishEvaluation promotes the cumulative total to the policy's fitness
// and returns it.
func (p *Policy) FinishEvaluation() float64 {
	p.fitness = p.cumulative
	p.hasFitness = true
	return p.fitness
}

// Fitness returns the evaluated fitness; the second return is false until
// FinishEvaluation has run.
func (p *Policy) Fitness() (float64, bool) {
	return p.fitness, p.hasFitness
}

// CumulativeFitness returns the running per-evaluation total.
func (p *Policy) CumulativeFitness() float64 { return p.cumulative }

// Episodes returns a copy of the episode log of the current evaluation.
func (p *Policy) Episodes() []model.EpisodeStats {
	return append([]model.EpisodeStats(nil), p.episodes...)
}
