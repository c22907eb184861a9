// Package evo runs the steady state tournament loop that breeds
// deliberative genomes against a scape.
//
// Each generation draws one tournament per population, evaluates the
// drawn members on the world, replaces the tournament's worst genome
// with offspring bred from the remaining members, and immediately
// scores the newcomer. Two populations evolve in lockstep: slot k of
// population A is always evaluated alongside slot k of population B.
package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gephyra/internal/agent"
	"gephyra/internal/genotype"
	"gephyra/internal/model"
	"gephyra/internal/scape"
)

var (
	// ErrPartnerConfig marks population/partner combinations that have
	// no coherent evaluation schedule.
	ErrPartnerConfig = errors.New("evo: invalid partner configuration")

	// ErrNoPopulation is returned when a resume carries no genomes to
	// continue from.
	ErrNoPopulation = errors.New("evo: no population to evolve")
)

// Defaults applied by NewEngine when the corresponding Config field is
// left zero.
const (
	DefaultPopulationSize = 25
	DefaultTournamentSize = 3
	DefaultGenerations    = 500
)

// Action names the breeding strategy used when the goal-rationality
// draw rejects crossover.
type Action string

const (
	// ActionGoalRational breeds by rate-driven crossover of the two
	// strongest tournament members.
	ActionGoalRational Action = "goal-rational"

	// ActionTraditional breeds the component-wise median genome of the
	// whole population.
	ActionTraditional Action = "traditional"

	// ActionRandom breeds a freshly drawn random genome.
	ActionRandom Action = "random"
)

// Config drives a single evolutionary run.
type Config struct {
	// World evaluates lineups of policies and assigns their fitness.
	World scape.Evaluator

	// Schema is the network shape shared by every genome. Zero value
	// selects model.DefaultSchema.
	Schema model.Schema

	// Populations is 1 for a lone lineage or 2 for co-evolving
	// lineages. Zero selects 1.
	Populations int

	// PopulationSize is the number of genomes per population.
	PopulationSize int

	// TournamentSize is the number of members drawn and evaluated per
	// generation. Must be at least 3 so a best, a worst and a second
	// parent all exist.
	TournamentSize int

	// Generations is the number of tournament rounds after the initial
	// whole-population evaluation.
	Generations int

	// GoalRationality in [0,1] is the probability that a generation
	// breeds by crossover rather than by the configured Action.
	GoalRationality float64

	// Action is the alternative breeding strategy. Empty selects
	// ActionGoalRational, which makes the dispatch draw a no-op.
	Action Action

	// Neuromodulation gates the genome's modulation masks during
	// forward passes.
	Neuromodulation bool

	// Environments is the episode count per evaluation. Values above 1
	// alternate solo and paired episodes.
	Environments int

	// ConsistentPartner pairs members with live genomes instead of
	// throwaway random partners.
	ConsistentPartner bool

	// Aware marks, per population slot, whether an agent's status
	// vector carries its partner's previous decisions.
	Aware [2]bool

	// Seeds optionally fixes the master stream per population. A zero
	// entry, a missing entry or Randomize draws a fresh seed.
	Seeds []int64

	// Randomize ignores Seeds entirely.
	Randomize bool

	// Resume, when non-nil, supplies the starting genomes per
	// population instead of drawing them from the seed.
	Resume [][]model.Genome

	// Rates are the crossover/mutation probabilities. Zero value
	// selects genotype.DefaultRates.
	Rates genotype.Rates

	// OnGeneration, when set, observes each population's generation
	// record as soon as it is produced.
	OnGeneration func(population int, record model.GenerationRecord)
}

// Engine owns the populations and random streams of one run.
type Engine struct {
	cfg Config

	seeder  *rand.Rand
	rng     *rand.Rand
	goalRNG *rand.Rand

	crossover   BreedStrategy
	alternative BreedStrategy

	seeds       []int64
	populations [][]model.Genome
	fitnesses   [][]float64
}

// NewEngine validates cfg, applies defaults and prepares an engine
// that has not yet drawn a single genome.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.World == nil {
		return nil, fmt.Errorf("evo: config needs a world")
	}
	if cfg.Schema.LayerSizes == nil {
		cfg.Schema = model.DefaultSchema()
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("evo: %w", err)
	}
	if cfg.Populations == 0 {
		cfg.Populations = 1
	}
	if cfg.Populations < 1 || cfg.Populations > 2 {
		return nil, fmt.Errorf("evo: populations must be 1 or 2, got %d", cfg.Populations)
	}
	if cfg.PopulationSize == 0 {
		cfg.PopulationSize = DefaultPopulationSize
	}
	if cfg.TournamentSize == 0 {
		cfg.TournamentSize = DefaultTournamentSize
	}
	if cfg.TournamentSize < 3 {
		return nil, fmt.Errorf("evo: tournament size must be at least 3, got %d", cfg.TournamentSize)
	}
	if cfg.TournamentSize > cfg.PopulationSize {
		return nil, fmt.Errorf("evo: tournament size %d exceeds population size %d",
			cfg.TournamentSize, cfg.PopulationSize)
	}
	if cfg.Generations == 0 {
		cfg.Generations = DefaultGenerations
	}
	if cfg.Generations < 1 {
		return nil, fmt.Errorf("evo: generations must be positive, got %d", cfg.Generations)
	}
	if cfg.GoalRationality < 0 || cfg.GoalRationality > 1 {
		return nil, fmt.Errorf("evo: goal rationality %v outside [0,1]", cfg.GoalRationality)
	}
	if cfg.Action == "" {
		cfg.Action = ActionGoalRational
	}
	switch cfg.Action {
	case ActionGoalRational, ActionTraditional, ActionRandom:
	default:
		return nil, fmt.Errorf("evo: unknown action %q", cfg.Action)
	}
	if cfg.Environments == 0 {
		cfg.Environments = 1
	}
	if cfg.Environments < 1 {
		return nil, fmt.Errorf("evo: environments must be positive, got %d", cfg.Environments)
	}
	if cfg.Populations == 2 && !cfg.ConsistentPartner {
		return nil, fmt.Errorf("%w: two populations require consistent partners", ErrPartnerConfig)
	}
	if cfg.ConsistentPartner && cfg.Environments > 1 && cfg.Populations < 2 {
		return nil, fmt.Errorf("%w: paired episodes need a second population to supply the partner",
			ErrPartnerConfig)
	}
	if cfg.Populations == 2 && cfg.Environments > 1 {
		return nil, fmt.Errorf("%w: co-evolving populations share every episode; solo/paired alternation needs a lone population",
			ErrPartnerConfig)
	}
	if cfg.Rates == (genotype.Rates{}) {
		cfg.Rates = genotype.DefaultRates()
	}
	if err := cfg.Rates.Validate(); err != nil {
		return nil, fmt.Errorf("evo: %w", err)
	}
	if len(cfg.Seeds) > cfg.Populations {
		return nil, fmt.Errorf("evo: %d seeds for %d populations", len(cfg.Seeds), cfg.Populations)
	}
	if cfg.Resume != nil {
		if len(cfg.Resume) != cfg.Populations {
			return nil, fmt.Errorf("evo: resume carries %d populations, config wants %d",
				len(cfg.Resume), cfg.Populations)
		}
		for p, pop := range cfg.Resume {
			if len(pop) == 0 {
				return nil, fmt.Errorf("%w: resumed population %d is empty", ErrNoPopulation, p)
			}
			if len(pop) != cfg.PopulationSize {
				return nil, fmt.Errorf("evo: resumed population %d has %d genomes, want %d",
					p, len(pop), cfg.PopulationSize)
			}
			for i, g := range pop {
				if !cfg.Schema.Matches(g) {
					return nil, fmt.Errorf("evo: resumed genome %d/%d does not fit the schema", p, i)
				}
			}
		}
	}

	crossover := CrossoverBreed{Schema: cfg.Schema, Rates: cfg.Rates}
	var alternative BreedStrategy
	switch cfg.Action {
	case ActionTraditional:
		alternative = TraditionalBreed{Schema: cfg.Schema}
	case ActionRandom:
		alternative = RandomBreed{Schema: cfg.Schema}
	default:
		alternative = crossover
	}

	return &Engine{
		cfg:         cfg,
		seeder:      rand.New(rand.NewSource(time.Now().UnixNano())),
		crossover:   crossover,
		alternative: alternative,
	}, nil
}

// Seeds reports the master seed applied to each population. Empty
// until Run has initialised the populations.
func (e *Engine) Seeds() []int64 {
	out := make([]int64, len(e.seeds))
	copy(out, e.seeds)
	return out
}

// PopulationResult is the final state of one population.
type PopulationResult struct {
	Seed        int64
	Fitnesses   []float64
	Genomes     []model.Genome
	BestIndex   int
	BestFitness float64
	BestGenome  model.Genome
	Records     []model.GenerationRecord
}

// RunResult aggregates every population at the end of a run.
type RunResult struct {
	Populations []PopulationResult
}

// Run seeds the populations, scores every genome once and then plays
// Generations tournament rounds. It honors ctx between evaluations.
func (e *Engine) Run(ctx context.Context) (RunResult, error) {
	if err := e.initPopulations(); err != nil {
		return RunResult{}, err
	}

	records := make([][]model.GenerationRecord, e.cfg.Populations)

	// Every genome needs a fitness before the first tournament can
	// rank anything.
	for slot := 0; slot < e.cfg.PopulationSize; slot++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		if err := e.evaluateSlots(ctx, e.slots(slot), 0); err != nil {
			return RunResult{}, err
		}
	}

	for gen := 1; gen <= e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		if err := e.playGeneration(ctx, gen, records); err != nil {
			return RunResult{}, err
		}
	}

	result := RunResult{Populations: make([]PopulationResult, e.cfg.Populations)}
	for p := range result.Populations {
		genomes := make([]model.Genome, len(e.populations[p]))
		for i, g := range e.populations[p] {
			genomes[i] = genotype.CloneGenome(g)
		}
		fitnesses := make([]float64, len(e.fitnesses[p]))
		copy(fitnesses, e.fitnesses[p])

		best := BestIndex(fitnesses)
		result.Populations[p] = PopulationResult{
			Seed:        e.seeds[p],
			Fitnesses:   fitnesses,
			Genomes:     genomes,
			BestIndex:   best,
			BestFitness: fitnesses[best],
			BestGenome:  genotype.CloneGenome(genomes[best]),
			Records:     records[p],
		}
	}
	return result, nil
}

// playGeneration runs one tournament round across all populations.
func (e *Engine) playGeneration(ctx context.Context, gen int, records [][]model.GenerationRecord) error {
	p := e.cfg.Populations
	t := e.cfg.TournamentSize

	indices := make([][]int, p)
	for pop := 0; pop < p; pop++ {
		draw, err := TournamentDraw(e.rng, e.cfg.PopulationSize, t)
		if err != nil {
			return err
		}
		indices[pop] = draw
	}

	tournamentFitness := make([][]float64, p)
	episodes := make([][][]model.EpisodeStats, p)
	cumulative := make([][]float64, p)
	for pop := 0; pop < p; pop++ {
		tournamentFitness[pop] = make([]float64, t)
		episodes[pop] = make([][]model.EpisodeStats, t)
		cumulative[pop] = make([]float64, t)
	}

	for round := 0; round < t; round++ {
		slots := make([]int, p)
		for pop := 0; pop < p; pop++ {
			slots[pop] = indices[pop][round]
		}
		members, err := e.evaluatedSlots(ctx, slots, gen)
		if err != nil {
			return err
		}
		for pop, m := range members {
			tournamentFitness[pop][round] = e.fitnesses[pop][slots[pop]]
			episodes[pop][round] = m.Episodes()
			cumulative[pop][round] = m.CumulativeFitness()
		}
	}

	// One dispatch draw per generation, shared by both populations, so
	// co-evolving lineages breed by the same strategy each round.
	strategy := ChooseStrategy(e.goalRNG.Float64(), e.cfg.GoalRationality, e.crossover, e.alternative)

	replaced := make([]int, p)
	for pop := 0; pop < p; pop++ {
		bestRound := BestIndex(tournamentFitness[pop])
		worstRound := WorstIndex(tournamentFitness[pop])

		record := model.GenerationRecord{
			Generation:        gen,
			Episodes:          episodes[pop][bestRound],
			CumulativeFitness: cumulative[pop][bestRound],
		}
		records[pop] = append(records[pop], record)
		if e.cfg.OnGeneration != nil {
			e.cfg.OnGeneration(pop, record)
		}

		var parents [2]model.Genome
		picked := 0
		for round := 0; round < t && picked < 2; round++ {
			if round == worstRound {
				continue
			}
			parents[picked] = e.populations[pop][indices[pop][round]]
			picked++
		}

		offspring, err := strategy.Breed(e.rng, parents, e.populations[pop])
		if err != nil {
			return fmt.Errorf("evo: breeding generation %d: %w", gen, err)
		}
		slot := indices[pop][worstRound]
		e.populations[pop][slot] = offspring
		replaced[pop] = slot
	}

	// The newcomer competes in the very next tournament, so it must
	// carry a fitness of its own rather than the evicted genome's.
	return e.evaluateSlots(ctx, replaced, gen)
}

// slots returns the same slot index for every population.
func (e *Engine) slots(slot int) []int {
	out := make([]int, e.cfg.Populations)
	for pop := range out {
		out[pop] = slot
	}
	return out
}

// evaluateSlots scores the genome at slots[pop] for each population in
// one shared evaluation and stores the resulting fitnesses.
func (e *Engine) evaluateSlots(ctx context.Context, slots []int, gen int) error {
	_, err := e.evaluatedSlots(ctx, slots, gen)
	return err
}

// evaluatedSlots is evaluateSlots exposing the finished policies so
// callers can read their episode statistics.
func (e *Engine) evaluatedSlots(ctx context.Context, slots []int, gen int) ([]*agent.Policy, error) {
	members := make([]*agent.Policy, e.cfg.Populations)
	for pop := range members {
		policy, err := agent.New(e.populations[pop][slots[pop]], agent.Options{
			Schema:          e.cfg.Schema,
			Rows:            e.cfg.World.Rows(),
			Cols:            e.cfg.World.Cols(),
			Aware:           e.cfg.Aware[pop],
			Neuromodulation: e.cfg.Neuromodulation,
		})
		if err != nil {
			return nil, err
		}
		members[pop] = policy
	}

	if err := e.cfg.World.Evaluate(ctx, members, e.plan(gen)); err != nil {
		return nil, fmt.Errorf("evo: evaluating generation %d: %w", gen, err)
	}

	for pop, m := range members {
		fitness, ok := m.Fitness()
		if !ok {
			return nil, fmt.Errorf("evo: world %q left population %d unscored", e.cfg.World.Name(), pop)
		}
		e.fitnesses[pop][slots[pop]] = fitness
	}
	return members, nil
}

// plan fixes the evaluation schedule for one generation.
func (e *Engine) plan(gen int) scape.EvalPlan {
	return scape.EvalPlan{
		Environments:      e.cfg.Environments,
		ConsistentPartner: e.cfg.ConsistentPartner,
		Generation:        gen,
		GenerationSpan:    e.cfg.Generations,
		PartnerOptions: agent.Options{
			Schema:          e.cfg.Schema,
			Rows:            e.cfg.World.Rows(),
			Cols:            e.cfg.World.Cols(),
			Aware:           e.cfg.Aware[1],
			Neuromodulation: e.cfg.Neuromodulation,
		},
	}
}

// initPopulations seeds the random streams and fills every population,
// either from Resume genomes or by drawing fresh ones.
func (e *Engine) initPopulations() error {
	p := e.cfg.Populations
	e.populations = make([][]model.Genome, p)
	e.fitnesses = make([][]float64, p)
	e.seeds = make([]int64, p)

	var applied int64
	for pop := 0; pop < p; pop++ {
		seed := int64(0)
		if !e.cfg.Randomize && pop < len(e.cfg.Seeds) {
			seed = e.cfg.Seeds[pop]
		}
		if seed == 0 {
			seed = e.seeder.Int63()
		}
		e.seeds[pop] = seed
		e.rng = rand.New(rand.NewSource(seed))
		applied = seed

		e.fitnesses[pop] = make([]float64, e.cfg.PopulationSize)

		if e.cfg.Resume != nil {
			genomes := make([]model.Genome, len(e.cfg.Resume[pop]))
			for i, g := range e.cfg.Resume[pop] {
				genomes[i] = genotype.CloneGenome(g)
			}
			e.populations[pop] = genomes
			continue
		}

		genomes := make([]model.Genome, e.cfg.PopulationSize)
		for i := range genomes {
			g, err := genotype.NewRandom(e.cfg.Schema, e.rng)
			if err != nil {
				return fmt.Errorf("evo: drawing population %d: %w", pop, err)
			}
			genomes[i] = g
		}
		e.populations[pop] = genomes
	}

	// The dispatch stream restarts from the last applied seed, keeping
	// strategy choice reproducible for a given seed set.
	e.goalRNG = rand.New(rand.NewSource(applied))
	return nil
}
