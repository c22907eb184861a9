package platform

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"gephyra/internal/evo"
	"gephyra/internal/genotype"
	"gephyra/internal/model"
	"gephyra/internal/scape"
	"gephyra/internal/scapeid"
	"gephyra/internal/stats"
	"gephyra/internal/storage"
)

// RiverScape is the only world the platform knows how to build.
const RiverScape = "river-crossing"

// RunSpec is one evolution run as requested by a caller. Zero values
// select the engine and scape defaults.
type RunSpec struct {
	// RunID optionally fixes the run identifier. Empty draws a fresh
	// UUID.
	RunID string

	// Scape names the world. Empty selects RiverScape.
	Scape string

	// Rows, Cols and TimeSteps size the world and bound each episode.
	Rows      int
	Cols      int
	TimeSteps int

	Populations       int
	PopulationSize    int
	TournamentSize    int
	Generations       int
	GoalRationality   float64
	Action            string
	Neuromodulation   bool
	Environments      int
	ConsistentPartner bool

	// Aware flags one entry per population; missing entries are false.
	Aware []bool

	Seeds     []int64
	Randomize bool

	// All-zero rates select the genotype defaults.
	CrossoverRate  float64
	MutationRate   float64
	ModulationRate float64

	// StatsFlushEvery overrides the generation log's flush cadence.
	StatsFlushEvery int

	// OnGeneration observes each population's generation record after
	// it has been logged.
	OnGeneration func(population int, record model.GenerationRecord)
}

// PopulationOutcome summarises one population at the end of a run.
type PopulationOutcome struct {
	Population  int
	Seed        int64
	BestIndex   int
	BestFitness float64
	Diagnostics stats.FitnessDiagnostics
}

// RunResult reports where a finished run left its artifacts and how
// each population fared.
type RunResult struct {
	RunID        string
	RunDir       string
	Scape        string
	CreatedAtUTC string
	Generations  int
	Seeds        []int64
	Outcomes     []PopulationOutcome
}

// RunEvolution executes one evolution run from scratch: it builds the
// scape and the engine, streams per-generation CSV logs, writes the
// run's artifact files and persists the run record, the final
// population snapshots and the best genomes.
func (a *Agora) RunEvolution(ctx context.Context, spec RunSpec) (RunResult, error) {
	spec, err := normalizeSpec(spec)
	if err != nil {
		return RunResult{}, err
	}
	return a.evolve(ctx, spec, nil, "", 0)
}

// ResumeEvolution continues a stored run's populations in a fresh run.
// The structural configuration (scape, populations, awareness, partner
// and breeding behaviour) is inherited from the stored record; the spec
// supplies the continuation length, seeds and logging knobs.
func (a *Agora) ResumeEvolution(ctx context.Context, fromRunID string, spec RunSpec) (RunResult, error) {
	if err := a.ready(); err != nil {
		return RunResult{}, err
	}
	prior, ok, err := a.store.GetRun(ctx, fromRunID)
	if err != nil {
		return RunResult{}, err
	}
	if !ok {
		return RunResult{}, fmt.Errorf("platform: run not found: %s", fromRunID)
	}

	spec.Scape = prior.Scape
	spec.Populations = prior.Populations
	spec.PopulationSize = prior.PopulationSize
	spec.GoalRationality = prior.GoalRationality
	spec.Action = prior.Action
	spec.Neuromodulation = prior.Neuromodulation
	spec.Environments = prior.Environments
	spec.ConsistentPartner = prior.ConsistentPartner
	spec.Aware = append([]bool(nil), prior.Aware...)
	if spec.Generations == 0 {
		spec.Generations = prior.Generations
	}

	resume := make([][]model.Genome, prior.Populations)
	base := 0
	for p := 0; p < prior.Populations; p++ {
		snap, ok, err := a.store.GetPopulation(ctx, fromRunID, p)
		if err != nil {
			return RunResult{}, err
		}
		if !ok {
			return RunResult{}, fmt.Errorf("%w: run %s population %d has no snapshot",
				evo.ErrNoPopulation, fromRunID, p)
		}
		resume[p] = snap.Genomes
		if snap.Generation > base {
			base = snap.Generation
		}
	}

	spec, err = normalizeSpec(spec)
	if err != nil {
		return RunResult{}, err
	}
	return a.evolve(ctx, spec, resume, fromRunID, base)
}

// ParseGenomeFile reads every genome block in a text dump, validating
// each against the canonical schema.
func (a *Agora) ParseGenomeFile(path string) ([]model.Genome, error) {
	return genotype.ParseFile(path, model.DefaultSchema())
}

// ExportRun copies a run's artifact files into outDir and returns the
// destination directory.
func (a *Agora) ExportRun(runID, outDir string) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	return stats.ExportRunArtifacts(a.artifactsDir, runID, outDir)
}

// normalizeSpec resolves the defaults the platform needs before the
// engine sees the config. Everything else is validated by NewEngine.
func normalizeSpec(spec RunSpec) (RunSpec, error) {
	name := scapeid.Normalize(spec.Scape)
	if name == "" {
		name = RiverScape
	}
	if name != RiverScape {
		return RunSpec{}, fmt.Errorf("platform: unknown scape %q", spec.Scape)
	}
	spec.Scape = name
	if spec.Populations == 0 {
		spec.Populations = 1
	}
	if spec.Populations < 1 || spec.Populations > 2 {
		return RunSpec{}, fmt.Errorf("platform: populations must be 1 or 2, got %d", spec.Populations)
	}
	if spec.PopulationSize == 0 {
		spec.PopulationSize = evo.DefaultPopulationSize
	}
	if spec.TournamentSize == 0 {
		spec.TournamentSize = evo.DefaultTournamentSize
	}
	if spec.Generations == 0 {
		spec.Generations = evo.DefaultGenerations
	}
	if spec.Environments == 0 {
		spec.Environments = 1
	}
	if spec.Action == "" {
		spec.Action = string(evo.ActionGoalRational)
	}
	if len(spec.Aware) > spec.Populations {
		return RunSpec{}, fmt.Errorf("platform: %d aware flags for %d populations",
			len(spec.Aware), spec.Populations)
	}
	if spec.StatsFlushEvery < 0 {
		return RunSpec{}, fmt.Errorf("platform: flush interval %d is negative", spec.StatsFlushEvery)
	}

	rates := genotype.Rates{
		Crossover:  spec.CrossoverRate,
		Mutation:   spec.MutationRate,
		Modulation: spec.ModulationRate,
	}
	if rates == (genotype.Rates{}) {
		rates = genotype.DefaultRates()
	}
	spec.CrossoverRate = rates.Crossover
	spec.MutationRate = rates.Mutation
	spec.ModulationRate = rates.Modulation
	return spec, nil
}

// evolve is the shared tail of RunEvolution and ResumeEvolution. The
// spec must already be normalized; resume and continuedFrom are set
// only on the resume path, and baseGeneration offsets the generation
// count recorded in the final snapshots.
func (a *Agora) evolve(ctx context.Context, spec RunSpec, resume [][]model.Genome, continuedFrom string, baseGeneration int) (RunResult, error) {
	if err := a.ready(); err != nil {
		return RunResult{}, err
	}

	world, err := scape.NewRiver(scape.RiverOptions{
		Rows:      spec.Rows,
		Cols:      spec.Cols,
		TimeSteps: spec.TimeSteps,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("platform: building scape: %w", err)
	}

	runID := spec.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := a.registerRun(runID); err != nil {
		return RunResult{}, err
	}
	defer a.unregisterRun(runID)

	runDir, err := stats.EnsureRunDir(a.artifactsDir, runID)
	if err != nil {
		return RunResult{}, err
	}

	created := time.Now().UTC()
	var aware [2]bool
	copy(aware[:], spec.Aware)

	logs := newGenerationLogs(runDir, spec.Populations)
	defer logs.close()

	// The log preamble carries the seed the engine actually applied, so
	// each population's writer opens lazily once the engine is running.
	var eng *evo.Engine
	logOpts := func(pop int) stats.WriterOptions {
		return stats.WriterOptions{
			Population:   pop,
			Environments: spec.Environments,
			Seed:         eng.Seeds()[pop],
			Aware:        aware[pop],
			FlushEvery:   spec.StatsFlushEvery,
			CreatedAt:    created,
		}
	}

	eng, err = evo.NewEngine(evo.Config{
		World:             world,
		Populations:       spec.Populations,
		PopulationSize:    spec.PopulationSize,
		TournamentSize:    spec.TournamentSize,
		Generations:       spec.Generations,
		GoalRationality:   spec.GoalRationality,
		Action:            evo.Action(spec.Action),
		Neuromodulation:   spec.Neuromodulation,
		Environments:      spec.Environments,
		ConsistentPartner: spec.ConsistentPartner,
		Aware:             aware,
		Seeds:             spec.Seeds,
		Randomize:         spec.Randomize,
		Resume:            resume,
		Rates: genotype.Rates{
			Crossover:  spec.CrossoverRate,
			Mutation:   spec.MutationRate,
			Modulation: spec.ModulationRate,
		},
		OnGeneration: func(pop int, record model.GenerationRecord) {
			logs.write(pop, record, logOpts)
			if logs.err == nil && spec.OnGeneration != nil {
				spec.OnGeneration(pop, record)
			}
		},
	})
	if err != nil {
		return RunResult{}, err
	}

	result, err := eng.Run(ctx)
	if err != nil {
		return RunResult{}, err
	}
	if logs.err != nil {
		return RunResult{}, fmt.Errorf("platform: writing generation logs: %w", logs.err)
	}

	seeds := eng.Seeds()
	createdAt := created.Format(time.RFC3339)
	outcomes := make([]PopulationOutcome, spec.Populations)
	finalBest := make([]float64, spec.Populations)
	diags := make([]stats.PopulationDiagnostics, spec.Populations)

	for p, pr := range result.Populations {
		if err := logs.finish(p, pr.BestGenome, pr.Seed, logOpts); err != nil {
			return RunResult{}, fmt.Errorf("platform: finishing generation log %d: %w", p, err)
		}
		if err := stats.WriteBestGenome(runDir, p, pr.BestGenome); err != nil {
			return RunResult{}, err
		}
		d, err := stats.Diagnose(pr.Fitnesses)
		if err != nil {
			return RunResult{}, err
		}
		diags[p] = stats.PopulationDiagnostics{
			Population:  p,
			Seed:        pr.Seed,
			BestFitness: pr.BestFitness,
			Fitness:     d,
		}
		finalBest[p] = pr.BestFitness
		outcomes[p] = PopulationOutcome{
			Population:  p,
			Seed:        pr.Seed,
			BestIndex:   pr.BestIndex,
			BestFitness: pr.BestFitness,
			Diagnostics: d,
		}
	}

	if err := stats.WriteDiagnostics(a.artifactsDir, runID, diags); err != nil {
		return RunResult{}, err
	}
	if err := stats.WriteRunConfig(a.artifactsDir, runID, stats.RunConfig{
		RunID:             runID,
		ContinuedFromRun:  continuedFrom,
		Scape:             spec.Scape,
		Rows:              world.Rows(),
		Cols:              world.Cols(),
		TimeSteps:         world.TimeSteps(),
		Populations:       spec.Populations,
		PopulationSize:    spec.PopulationSize,
		TournamentSize:    spec.TournamentSize,
		Generations:       spec.Generations,
		GoalRationality:   spec.GoalRationality,
		Action:            spec.Action,
		Neuromodulation:   spec.Neuromodulation,
		Environments:      spec.Environments,
		ConsistentPartner: spec.ConsistentPartner,
		Aware:             append([]bool(nil), aware[:spec.Populations]...),
		Seeds:             seeds,
		Randomize:         spec.Randomize,
		CrossoverRate:     spec.CrossoverRate,
		MutationRate:      spec.MutationRate,
		ModulationRate:    spec.ModulationRate,
		CreatedAtUTC:      createdAt,
	}); err != nil {
		return RunResult{}, err
	}
	if err := stats.AppendRunIndex(a.artifactsDir, stats.RunIndexEntry{
		RunID:          runID,
		Scape:          spec.Scape,
		Populations:    spec.Populations,
		PopulationSize: spec.PopulationSize,
		Generations:    spec.Generations,
		Seeds:          seeds,
		FinalBest:      finalBest,
		CreatedAtUTC:   createdAt,
	}); err != nil {
		return RunResult{}, err
	}

	record := model.RunRecord{
		VersionedRecord:   storage.CurrentVersion(),
		RunID:             runID,
		CreatedAtUTC:      createdAt,
		Scape:             spec.Scape,
		Seeds:             seeds,
		Populations:       spec.Populations,
		PopulationSize:    spec.PopulationSize,
		Generations:       spec.Generations,
		GoalRationality:   spec.GoalRationality,
		Action:            spec.Action,
		Neuromodulation:   spec.Neuromodulation,
		Environments:      spec.Environments,
		ConsistentPartner: spec.ConsistentPartner,
		Aware:             append([]bool(nil), aware[:spec.Populations]...),
		FinalBest:         finalBest,
		ArtifactsDir:      runDir,
	}
	if err := a.store.SaveRun(ctx, record); err != nil {
		return RunResult{}, err
	}
	for p, pr := range result.Populations {
		if err := a.store.SavePopulation(ctx, model.PopulationSnapshot{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           runID,
			Population:      p,
			Generation:      baseGeneration + spec.Generations,
			Genomes:         pr.Genomes,
			Fitnesses:       pr.Fitnesses,
		}); err != nil {
			return RunResult{}, err
		}
		if err := a.store.SaveBestGenome(ctx, model.GenomeRecord{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           runID,
			Population:      p,
			Fitness:         pr.BestFitness,
			Genome:          pr.BestGenome,
		}); err != nil {
			return RunResult{}, err
		}
	}

	return RunResult{
		RunID:        runID,
		RunDir:       runDir,
		Scape:        spec.Scape,
		CreatedAtUTC: createdAt,
		Generations:  baseGeneration + spec.Generations,
		Seeds:        seeds,
		Outcomes:     outcomes,
	}, nil
}

// generationLogs manages one lazily opened CSV log per population and
// latches the first write error so the engine loop is never interrupted
// mid-generation.
type generationLogs struct {
	runDir  string
	writers []*stats.GenerationWriter
	files   []*os.File
	err     error
}

func newGenerationLogs(runDir string, populations int) *generationLogs {
	return &generationLogs{
		runDir:  runDir,
		writers: make([]*stats.GenerationWriter, populations),
		files:   make([]*os.File, populations),
	}
}

func (l *generationLogs) write(pop int, record model.GenerationRecord, opts func(pop int) stats.WriterOptions) {
	if l.err != nil {
		return
	}
	if l.writers[pop] == nil {
		if err := l.open(pop, opts(pop)); err != nil {
			l.err = err
			return
		}
	}
	if err := l.writers[pop].Write(record); err != nil {
		l.err = err
	}
}

func (l *generationLogs) open(pop int, opts stats.WriterOptions) error {
	f, err := os.Create(stats.GenerationLogPath(l.runDir, pop))
	if err != nil {
		return err
	}
	w, err := stats.NewGenerationWriter(f, opts)
	if err != nil {
		f.Close()
		return err
	}
	l.files[pop] = f
	l.writers[pop] = w
	return nil
}

// finish terminates population pop's log with the best-genome dump
// block and closes the file.
func (l *generationLogs) finish(pop int, best model.Genome, seed int64, opts func(pop int) stats.WriterOptions) error {
	if l.err != nil {
		return l.err
	}
	if l.writers[pop] == nil {
		if err := l.open(pop, opts(pop)); err != nil {
			return err
		}
	}
	if err := l.writers[pop].Finish(best, seed); err != nil {
		return err
	}
	err := l.files[pop].Close()
	l.files[pop] = nil
	return err
}

func (l *generationLogs) close() {
	for i, f := range l.files {
		if f != nil {
			f.Close()
			l.files[i] = nil
		}
	}
}
