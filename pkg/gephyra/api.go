// Package gephyra is the public client for the river-crossing
// evolution platform: it runs and resumes evolutions, lists and
// inspects finished runs, and exports their artifacts.
package gephyra

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gephyra/internal/genotype"
	"gephyra/internal/model"
	"gephyra/internal/platform"
	"gephyra/internal/stats"
	"gephyra/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "gephyra.db"
)

// Options selects the storage backend and the artifact directories.
type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

// Client owns a store and a platform instance for the lifetime of a
// process.
type Client struct {
	store storage.Store
	agora *platform.Agora

	artifactsDir string
	exportsDir   string
}

// RunRequest mirrors the run command's flags. Zero values select the
// platform defaults; GoalRationality is taken literally, so 0 means
// the alternative strategy breeds every generation.
type RunRequest struct {
	RunID             string
	Scape             string
	Rows              int
	Cols              int
	TimeSteps         int
	Populations       int
	PopulationSize    int
	TournamentSize    int
	Generations       int
	GoalRationality   float64
	Action            string
	Neuromodulation   bool
	Environments      int
	ConsistentPartner bool
	Aware             []bool
	Seeds             []int64
	Randomize         bool
	CrossoverRate     float64
	MutationRate      float64
	ModulationRate    float64
	StatsFlushEvery   int

	// OnGeneration observes generation records as the run progresses.
	OnGeneration func(population int, record model.GenerationRecord)
}

// ResumeRequest continues a stored run. Structural settings are
// inherited from the stored record; these fields control only the
// continuation itself.
type ResumeRequest struct {
	RunID  string
	Latest bool

	Rows            int
	Cols            int
	TimeSteps       int
	Generations     int
	Seeds           []int64
	Randomize       bool
	StatsFlushEvery int

	OnGeneration func(population int, record model.GenerationRecord)
}

// PopulationSummary is one population's final fitness picture.
type PopulationSummary struct {
	Population  int
	Seed        int64
	BestIndex   int
	BestFitness float64
	MeanFitness float64
	StdDev      float64
	MinFitness  float64
	MaxFitness  float64
}

// RunSummary reports a finished run.
type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Scape        string
	CreatedAtUTC string
	Generations  int
	Seeds        []int64
	Populations  []PopulationSummary
}

// RunsRequest limits the run listing.
type RunsRequest struct {
	Limit int
}

// RunItem is one line of the run listing.
type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Scape          string
	Populations    int
	PopulationSize int
	Generations    int
	Seeds          []int64
	FinalBest      []float64
}

// ShowRequest names the run to inspect.
type ShowRequest struct {
	RunID  string
	Latest bool
}

// RunDetail is everything known about one run: the persistent record
// and the final fitness diagnostics from the artifacts directory.
type RunDetail struct {
	Record      model.RunRecord
	Diagnostics []stats.PopulationDiagnostics
}

// BestGenomeRequest names one population's winning genome.
type BestGenomeRequest struct {
	RunID      string
	Latest     bool
	Population int
}

// GenomeSummary carries a winning genome plus its text encoding.
type GenomeSummary struct {
	RunID      string
	Population int
	Fitness    float64
	Genome     model.Genome
	Text       string
}

// ExportRequest names the run whose artifacts to copy.
type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

// ExportSummary reports where an export landed.
type ExportSummary struct {
	RunID     string
	Directory string
}

// New builds a client. The store is opened lazily on first use.
func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

// Close releases the store.
func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init prepares the store schema and the artifacts directory.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureAgora(ctx)
	return err
}

// Reset drops every persisted run.
func (c *Client) Reset(ctx context.Context) error {
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return err
	}
	return a.Reset(ctx)
}

// Run executes one evolution run and reports its outcome.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := a.RunEvolution(ctx, platform.RunSpec{
		RunID:             req.RunID,
		Scape:             req.Scape,
		Rows:              req.Rows,
		Cols:              req.Cols,
		TimeSteps:         req.TimeSteps,
		Populations:       req.Populations,
		PopulationSize:    req.PopulationSize,
		TournamentSize:    req.TournamentSize,
		Generations:       req.Generations,
		GoalRationality:   req.GoalRationality,
		Action:            req.Action,
		Neuromodulation:   req.Neuromodulation,
		Environments:      req.Environments,
		ConsistentPartner: req.ConsistentPartner,
		Aware:             req.Aware,
		Seeds:             req.Seeds,
		Randomize:         req.Randomize,
		CrossoverRate:     req.CrossoverRate,
		MutationRate:      req.MutationRate,
		ModulationRate:    req.ModulationRate,
		StatsFlushEvery:   req.StatsFlushEvery,
		OnGeneration:      req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}
	return summaryFromResult(result), nil
}

// Resume continues a stored run's populations under a fresh run id.
func (c *Client) Resume(ctx context.Context, req ResumeRequest) (RunSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return RunSummary{}, err
	}
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := a.ResumeEvolution(ctx, runID, platform.RunSpec{
		Rows:            req.Rows,
		Cols:            req.Cols,
		TimeSteps:       req.TimeSteps,
		Generations:     req.Generations,
		Seeds:           req.Seeds,
		Randomize:       req.Randomize,
		StatsFlushEvery: req.StatsFlushEvery,
		OnGeneration:    req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}
	return summaryFromResult(result), nil
}

// Runs lists finished runs, newest first, from the artifacts index so
// the listing survives restarts regardless of the store backend.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Scape:          e.Scape,
			Populations:    e.Populations,
			PopulationSize: e.PopulationSize,
			Generations:    e.Generations,
			Seeds:          append([]int64(nil), e.Seeds...),
			FinalBest:      append([]float64(nil), e.FinalBest...),
		})
	}
	return out, nil
}

// ShowRun assembles one run's detail, preferring the store and falling
// back to the run's artifact files when the store does not know it.
func (c *Client) ShowRun(ctx context.Context, req ShowRequest) (RunDetail, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return RunDetail{}, err
	}
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return RunDetail{}, err
	}

	record, ok, err := a.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		cfg, okCfg, err := stats.ReadRunConfig(c.artifactsDir, runID)
		if err != nil {
			return RunDetail{}, err
		}
		if !okCfg {
			return RunDetail{}, fmt.Errorf("run not found: %s", runID)
		}
		record = c.recordFromConfig(cfg)
		if entry, found, err := c.indexEntry(runID); err != nil {
			return RunDetail{}, err
		} else if found {
			record.FinalBest = append([]float64(nil), entry.FinalBest...)
		}
	}

	detail := RunDetail{Record: record}
	diags, okDiags, err := stats.ReadDiagnostics(c.artifactsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if okDiags {
		detail.Diagnostics = diags
	}
	return detail, nil
}

// BestGenome fetches one population's winning genome, falling back to
// the best_genome artifact when the store does not know the run.
func (c *Client) BestGenome(ctx context.Context, req BestGenomeRequest) (GenomeSummary, error) {
	if req.Population < 0 {
		return GenomeSummary{}, errors.New("population must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return GenomeSummary{}, err
	}
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return GenomeSummary{}, err
	}

	rec, ok, err := a.BestGenome(ctx, runID, req.Population)
	if err != nil {
		return GenomeSummary{}, err
	}
	if ok {
		return GenomeSummary{
			RunID:      runID,
			Population: req.Population,
			Fitness:    rec.Fitness,
			Genome:     rec.Genome,
			Text:       genotype.EncodeToString(rec.Genome),
		}, nil
	}

	runDir := filepath.Join(c.artifactsDir, runID)
	g, okFile, err := stats.ReadBestGenome(runDir, req.Population, model.DefaultSchema())
	if err != nil {
		return GenomeSummary{}, err
	}
	if !okFile {
		return GenomeSummary{}, fmt.Errorf("best genome not found for run %s population %d", runID, req.Population)
	}
	summary := GenomeSummary{
		RunID:      runID,
		Population: req.Population,
		Genome:     g,
		Text:       genotype.EncodeToString(g),
	}
	if entry, found, err := c.indexEntry(runID); err != nil {
		return GenomeSummary{}, err
	} else if found && req.Population < len(entry.FinalBest) {
		summary.Fitness = entry.FinalBest[req.Population]
	}
	return summary, nil
}

// ParseGenomes reads every genome block in a text dump, validating
// each against the canonical schema.
func (c *Client) ParseGenomes(ctx context.Context, path string) ([]model.Genome, error) {
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return nil, err
	}
	return a.ParseGenomeFile(path)
}

// ExportRun copies a run's artifacts into the export directory.
func (c *Client) ExportRun(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	a, err := c.ensureAgora(ctx)
	if err != nil {
		return ExportSummary{}, err
	}
	dir, err := a.ExportRun(runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func (c *Client) ensureAgora(ctx context.Context) (*platform.Agora, error) {
	if c.agora != nil {
		return c.agora, nil
	}
	a := platform.NewAgora(platform.Config{Store: c.store, ArtifactsDir: c.artifactsDir})
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	c.agora = a
	return c.agora, nil
}

// resolveRunID enforces the run-id-or-latest convention, resolving
// "latest" through the artifacts index.
func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) indexEntry(runID string) (stats.RunIndexEntry, bool, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return stats.RunIndexEntry{}, false, err
	}
	for _, e := range entries {
		if e.RunID == runID {
			return e, true, nil
		}
	}
	return stats.RunIndexEntry{}, false, nil
}

func (c *Client) recordFromConfig(cfg stats.RunConfig) model.RunRecord {
	return model.RunRecord{
		RunID:             cfg.RunID,
		CreatedAtUTC:      cfg.CreatedAtUTC,
		Scape:             cfg.Scape,
		Seeds:             append([]int64(nil), cfg.Seeds...),
		Populations:       cfg.Populations,
		PopulationSize:    cfg.PopulationSize,
		Generations:       cfg.Generations,
		GoalRationality:   cfg.GoalRationality,
		Action:            cfg.Action,
		Neuromodulation:   cfg.Neuromodulation,
		Environments:      cfg.Environments,
		ConsistentPartner: cfg.ConsistentPartner,
		Aware:             append([]bool(nil), cfg.Aware...),
		ArtifactsDir:      filepath.Join(c.artifactsDir, cfg.RunID),
	}
}

func summaryFromResult(result platform.RunResult) RunSummary {
	populations := make([]PopulationSummary, len(result.Outcomes))
	for i, o := range result.Outcomes {
		populations[i] = PopulationSummary{
			Population:  o.Population,
			Seed:        o.Seed,
			BestIndex:   o.BestIndex,
			BestFitness: o.BestFitness,
			MeanFitness: o.Diagnostics.Mean,
			StdDev:      o.Diagnostics.StdDev,
			MinFitness:  o.Diagnostics.Min,
			MaxFitness:  o.Diagnostics.Max,
		}
	}
	return RunSummary{
		RunID:        result.RunID,
		ArtifactsDir: filepath.Clean(result.RunDir),
		Scape:        result.Scape,
		CreatedAtUTC: result.CreatedAtUTC,
		Generations:  result.Generations,
		Seeds:        append([]int64(nil), result.Seeds...),
		Populations:  populations,
	}
}
