package scape

import (
	"context"
	"fmt"
	"math/rand"

	"gephyra/internal/agent"
	"gephyra/internal/genotype"
	"gephyra/internal/model"
)

// Canonical world dimensions and episode length.
const (
	DefaultRows      = 19
	DefaultCols      = 19
	DefaultTimeSteps = 500
)

// Fitness shaping. Completing the goal dominates; partial progress
// (resources, bridge building, carrying, surviving) earns smaller
// rewards, and each move costs a little so shorter solutions win ties.
const (
	goalReward     = 100.0
	resourceReward = 20.0
	stoneReward    = 10.0
	carryReward    = 5.0
	surviveReward  = 5.0
	movePenalty    = 0.01
)

// Layout places the objects in the world. Resource identifiers are the
// indices into Resources; policy at lineup slot k is assigned every
// resource whose index has the same parity as k, one on either side of
// the river.
type Layout struct {
	Resources  [][2]int
	Stones     [][2]int
	RiverCol   int
	RiverDepth int
	Starts     [][2]int
}

// DefaultLayout returns the canonical arrangement: four resources and
// eight stones split across a two-deep river down the middle column, with
// start cells in opposite corners.
func DefaultLayout() Layout {
	return Layout{
		Resources:  [][2]int{{2, 16}, {16, 2}, {13, 5}, {5, 13}},
		Stones:     [][2]int{{1, 12}, {17, 6}, {3, 4}, {15, 14}, {6, 7}, {12, 11}, {10, 17}, {9, 1}},
		RiverCol:   9,
		RiverDepth: 2,
		Starts:     [][2]int{{0, 0}, {18, 18}},
	}
}

// RiverOptions sizes the world. Zero values fall back to the defaults.
type RiverOptions struct {
	Rows      int
	Cols      int
	TimeSteps int
}

// River is the river-crossing world: a grid with resources to collect,
// stones to carry, and a deep river that must be bridged before it can be
// crossed alive.
type River struct {
	rows      int
	cols      int
	timeSteps int
	layout    Layout
}

// NewRiver builds the world with the canonical layout.
func NewRiver(opts RiverOptions) (*River, error) {
	return NewRiverWithLayout(opts, DefaultLayout())
}

// NewRiverWithLayout builds a world with a custom object arrangement.
func NewRiverWithLayout(opts RiverOptions, layout Layout) (*River, error) {
	if opts.Rows == 0 {
		opts.Rows = DefaultRows
	}
	if opts.Cols == 0 {
		opts.Cols = DefaultCols
	}
	if opts.TimeSteps == 0 {
		opts.TimeSteps = DefaultTimeSteps
	}
	if opts.Rows < 1 || opts.Cols < 1 {
		return nil, fmt.Errorf("world dimensions %dx%d must be positive", opts.Rows, opts.Cols)
	}
	if opts.TimeSteps < 1 {
		return nil, fmt.Errorf("time steps %d must be positive", opts.TimeSteps)
	}
	if len(layout.Starts) == 0 {
		return nil, fmt.Errorf("layout has no start cells")
	}
	inBounds := func(p [2]int) bool {
		return p[0] >= 0 && p[0] < opts.Rows && p[1] >= 0 && p[1] < opts.Cols
	}
	for _, p := range layout.Resources {
		if !inBounds(p) {
			return nil, fmt.Errorf("resource at %v is out of bounds", p)
		}
	}
	for _, p := range layout.Stones {
		if !inBounds(p) {
			return nil, fmt.Errorf("stone at %v is out of bounds", p)
		}
	}
	for _, p := range layout.Starts {
		if !inBounds(p) {
			return nil, fmt.Errorf("start cell at %v is out of bounds", p)
		}
	}
	if layout.RiverDepth > 0 && (layout.RiverCol < 0 || layout.RiverCol >= opts.Cols) {
		return nil, fmt.Errorf("river column %d is out of bounds", layout.RiverCol)
	}
	return &River{
		rows:      opts.Rows,
		cols:      opts.Cols,
		timeSteps: opts.TimeSteps,
		layout:    layout,
	}, nil
}

func (r *River) Name() string { return "river-crossing" }

// Rows returns the number of grid rows.
func (r *River) Rows() int { return r.rows }

// Cols returns the number of grid columns.
func (r *River) Cols() int { return r.cols }

// TimeSteps returns the episode length bound.
func (r *River) TimeSteps() int { return r.timeSteps }

// TargetIDs returns the resource identifiers assigned to the policy at a
// lineup slot: every resource index sharing the slot's parity.
func (r *River) TargetIDs(slot int) []int {
	var ids []int
	for i := range r.layout.Resources {
		if i%2 == slot%2 {
			ids = append(ids, i)
		}
	}
	return ids
}

// Evaluate runs one evaluation cycle for the members of a tournament
// slot and writes each member's fitness and episode log onto the policy.
// With one environment all members share a single episode (a transient
// partner is added when the plan has no consistent one). With more, even
// episodes run the first member alone and odd episodes pair it: the
// consistent partner is members[1] (members[2], when present, for the
// second paired episode), and transient partners are seeded from the
// generation index. Transient partners are never scored.
func (r *River) Evaluate(ctx context.Context, members []*agent.Policy, plan EvalPlan) error {
	if len(members) == 0 {
		return fmt.Errorf("no members to evaluate")
	}
	for _, m := range members {
		m.BeginEvaluation()
	}

	if plan.Environments <= 1 {
		lineup := append([]*agent.Policy(nil), members...)
		recordFor := make([]int, len(members))
		for i := range recordFor {
			recordFor[i] = i
		}
		if !plan.ConsistentPartner && len(members) == 1 {
			partner, err := r.transientPartner(plan, int64(plan.Generation))
			if err != nil {
				return err
			}
			lineup = append(lineup, partner)
			recordFor = append(recordFor, -1)
		}
		if err := r.runScoredEpisode(ctx, members, lineup, recordFor); err != nil {
			return err
		}
	} else {
		for eval := 0; eval < plan.Environments; eval++ {
			lineup := []*agent.Policy{members[0]}
			recordFor := []int{0}
			if eval%2 == 1 {
				if plan.ConsistentPartner {
					if len(members) < 2 {
						return fmt.Errorf("consistent partner requires a second member")
					}
					partnerIndex := 1
					if eval > 1 && len(members) > 2 {
						partnerIndex = 2
					}
					lineup = append(lineup, members[partnerIndex])
					recordFor = append(recordFor, partnerIndex)
				} else {
					seed := int64(plan.Generation)
					if eval > 1 {
						seed = int64(plan.Generation + plan.GenerationSpan)
					}
					partner, err := r.transientPartner(plan, seed)
					if err != nil {
						return err
					}
					lineup = append(lineup, partner)
					recordFor = append(recordFor, -1)
				}
			}
			if err := r.runScoredEpisode(ctx, members, lineup, recordFor); err != nil {
				return err
			}
		}
	}

	for _, m := range members {
		m.FinishEvaluation()
	}
	return nil
}

func (r *River) runScoredEpisode(ctx context.Context, members, lineup []*agent.Policy, recordFor []int) error {
	stats, err := r.RunEpisode(ctx, lineup)
	if err != nil {
		return err
	}
	for i, memberIndex := range recordFor {
		if memberIndex >= 0 {
			members[memberIndex].RecordEpisode(stats[i])
		}
	}
	return nil
}

// transientPartner builds a throwaway random-genome policy so a lone
// member still experiences a shared world.
func (r *River) transientPartner(plan EvalPlan, seed int64) (*agent.Policy, error) {
	genome, err := genotype.NewRandom(plan.PartnerOptions.Schema, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	return agent.New(genome, plan.PartnerOptions)
}

// crosser is the embodied per-episode state of one policy.
type crosser struct {
	policy         *agent.Policy
	row, col       int
	alive          bool
	carrying       bool
	hasCarried     bool
	droppedInRiver bool
	achievedGoal   bool
	moves          int
	stonesPlaced   int
	resourcesFound int
	targets        map[int]bool
}

type gridCell struct {
	kind       model.CellKind
	resourceID int
	depth      int
}

// RunEpisode places the lineup into a fresh world and runs it for up to
// TimeSteps ticks, ending early when every crosser is dead or every
// crosser has achieved its goal. It returns one stats entry per lineup
// slot, in order.
func (r *River) RunEpisode(ctx context.Context, lineup []*agent.Policy) ([]model.EpisodeStats, error) {
	if len(lineup) == 0 {
		return nil, fmt.Errorf("empty lineup")
	}
	if len(lineup) > len(r.layout.Starts) {
		return nil, fmt.Errorf("lineup of %d needs %d start cells, have %d", len(lineup), len(lineup), len(r.layout.Starts))
	}

	grid := r.buildGrid()
	crossers := make([]*crosser, len(lineup))
	for i, p := range lineup {
		ids := r.TargetIDs(i)
		if len(ids) == 0 {
			return nil, fmt.Errorf("lineup slot %d has no target resources", i)
		}
		if err := p.StartEpisode(ids); err != nil {
			return nil, err
		}
		targets := make(map[int]bool, len(ids))
		for _, id := range ids {
			targets[id] = true
		}
		start := r.layout.Starts[i]
		crossers[i] = &crosser{
			policy:  p,
			row:     start[0],
			col:     start[1],
			alive:   true,
			targets: targets,
		}
	}

	partialBridge := false
	for tick := 0; tick < r.timeSteps; tick++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// decisions visible to partners are always the previous tick's
		previous := make([][]float64, len(crossers))
		for i, c := range crossers {
			previous[i] = c.policy.LastDecisions()
		}

		for i, c := range crossers {
			if !c.alive {
				continue
			}
			status := r.statusVector(grid, c, partialBridge)
			if c.policy.Aware() {
				partner := previous[(i+1)%len(crossers)]
				copy(status[len(status)-len(partner):], partner)
			}
			view := r.viewFor(grid, crossers, i)
			dr, dc, err := c.policy.Decide(status, partialBridge, view, c.row, c.col)
			if err != nil {
				return nil, err
			}
			if r.applyMove(grid, c, dr, dc) {
				partialBridge = true
			}
		}

		if r.episodeOver(crossers) {
			break
		}
	}

	stats := make([]model.EpisodeStats, len(crossers))
	for i, c := range crossers {
		stats[i] = model.EpisodeStats{
			Fitness:        scoreEpisode(c),
			Moves:          c.moves,
			Alive:          c.alive,
			HasCarried:     c.hasCarried,
			DroppedInRiver: c.droppedInRiver,
			StonesPlaced:   c.stonesPlaced,
			ResourcesFound: c.resourcesFound,
			AchievedGoal:   c.achievedGoal,
		}
	}
	return stats, nil
}

func (r *River) buildGrid() [][]gridCell {
	grid := make([][]gridCell, r.rows)
	for i := range grid {
		grid[i] = make([]gridCell, r.cols)
	}
	if r.layout.RiverDepth > 0 {
		for i := 0; i < r.rows; i++ {
			grid[i][r.layout.RiverCol] = gridCell{kind: model.CellWater, depth: r.layout.RiverDepth}
		}
	}
	for id, p := range r.layout.Resources {
		grid[p[0]][p[1]] = gridCell{kind: model.CellResource, resourceID: id}
	}
	for _, p := range r.layout.Stones {
		grid[p[0]][p[1]] = gridCell{kind: model.CellStone}
	}
	return grid
}

// statusVector reports what the crosser stands on plus its carrying state
// and the shared bridge flag, as 0/1 features.
func (r *River) statusVector(grid [][]gridCell, c *crosser, partialBridge bool) []float64 {
	cell := grid[c.row][c.col]
	status := make([]float64, 6)
	status[0] = boolFeature(cell.kind == model.CellEmpty)
	status[1] = boolFeature(cell.kind == model.CellResource)
	status[2] = boolFeature(cell.kind == model.CellStone)
	status[3] = boolFeature(cell.kind == model.CellWater)
	status[4] = boolFeature(c.carrying)
	status[5] = boolFeature(partialBridge)
	return status
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// viewFor snapshots the grid for one crosser, marking cells occupied by
// any other living crosser.
func (r *River) viewFor(grid [][]gridCell, crossers []*crosser, self int) [][]model.CellView {
	view := make([][]model.CellView, r.rows)
	for i := range view {
		view[i] = make([]model.CellView, r.cols)
		for j := range view[i] {
			cell := grid[i][j]
			view[i][j] = model.CellView{
				Kind:       cell.kind,
				ResourceID: cell.resourceID,
				WaterDepth: cell.depth,
			}
		}
	}
	for i, c := range crossers {
		if i == self || !c.alive {
			continue
		}
		view[c.row][c.col].Occupied = true
	}
	return view
}

// applyMove executes one decision. Every decision counts as a move, a
// stone drop included. The return value reports whether a stone entered
// the river this move.
func (r *River) applyMove(grid [][]gridCell, c *crosser, dr, dc int) bool {
	c.moves++
	nr, nc := c.row+dr, c.col+dc
	if nr < 0 || nr >= r.rows || nc < 0 || nc >= r.cols {
		return false
	}
	dest := &grid[nr][nc]
	switch dest.kind {
	case model.CellResource:
		if c.targets[dest.resourceID] {
			delete(c.targets, dest.resourceID)
			c.resourcesFound++
			if len(c.targets) == 0 {
				c.achievedGoal = true
			}
			*dest = gridCell{}
		}
		c.row, c.col = nr, nc
	case model.CellStone:
		if !c.carrying {
			c.carrying = true
			c.hasCarried = true
			*dest = gridCell{}
		}
		c.row, c.col = nr, nc
	case model.CellWater:
		if dest.depth > 0 {
			if c.carrying {
				// drop the stone in; the crosser stays on the bank
				dest.depth--
				c.carrying = false
				c.stonesPlaced++
				c.droppedInRiver = true
				return true
			}
			c.row, c.col = nr, nc
			c.alive = false
			return false
		}
		c.row, c.col = nr, nc
	default:
		c.row, c.col = nr, nc
	}
	return false
}

func (r *River) episodeOver(crossers []*crosser) bool {
	anyAlive := false
	allAchieved := true
	for _, c := range crossers {
		if c.alive {
			anyAlive = true
		}
		if !c.achievedGoal {
			allAchieved = false
		}
	}
	return !anyAlive || allAchieved
}

func scoreEpisode(c *crosser) float64 {
	score := 0.0
	if c.achievedGoal {
		score += goalReward
	}
	score += resourceReward * float64(c.resourcesFound)
	score += stoneReward * float64(c.stonesPlaced)
	if c.hasCarried {
		score += carryReward
	}
	if c.alive {
		score += surviveReward
	}
	score -= movePenalty * float64(c.moves)
	return score
}
