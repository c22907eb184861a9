package platform

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gephyra/internal/evo"
	"gephyra/internal/genotype"
	"gephyra/internal/model"
	"gephyra/internal/stats"
	"gephyra/internal/storage"
)

// quickSpec keeps runs fast: canonical 19x19 world, short episodes,
// four genomes, two generations.
func quickSpec() RunSpec {
	return RunSpec{
		TimeSteps:       25,
		PopulationSize:  4,
		TournamentSize:  3,
		Generations:     2,
		GoalRationality: 1,
		Seeds:           []int64{11},
		StatsFlushEvery: 1,
	}
}

func TestRunEvolutionProducesArtifactsAndRecords(t *testing.T) {
	a := newTestAgora(t)
	ctx := context.Background()

	progressed := 0
	spec := quickSpec()
	spec.OnGeneration = func(pop int, record model.GenerationRecord) {
		if pop != 0 {
			t.Errorf("unexpected population %d in progress callback", pop)
		}
		progressed++
	}

	res, err := a.RunEvolution(ctx, spec)
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if res.RunID == "" {
		t.Fatal("expected a generated run id")
	}
	if res.Scape != RiverScape {
		t.Fatalf("scape = %q, want %q", res.Scape, RiverScape)
	}
	if res.Generations != 2 {
		t.Fatalf("generations = %d, want 2", res.Generations)
	}
	if len(res.Seeds) != 1 || res.Seeds[0] != 11 {
		t.Fatalf("seeds = %v, want [11]", res.Seeds)
	}
	if len(res.Outcomes) != 1 {
		t.Fatalf("expected one population outcome, got %d", len(res.Outcomes))
	}
	if progressed != 2 {
		t.Fatalf("progress callback fired %d times, want 2", progressed)
	}

	for _, name := range []string{
		"run_config.json", "diagnostics.json", "generations-agent0.csv", "best_genome0.txt",
	} {
		if _, err := os.Stat(filepath.Join(res.RunDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	series, err := stats.ReadGenerationSeries(filepath.Join(res.RunDir, "generations-agent0.csv"))
	if err != nil {
		t.Fatalf("read generation series: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("generation log carries %d lines, want 2", len(series))
	}

	entries, err := stats.ListRunIndex(a.ArtifactsDir())
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != res.RunID {
		t.Fatalf("unexpected run index: %+v", entries)
	}

	rec, ok, err := a.GetRun(ctx, res.RunID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if rec.PopulationSize != 4 || rec.Generations != 2 {
		t.Fatalf("run record cfg = %d/%d, want 4/2", rec.PopulationSize, rec.Generations)
	}
	if rec.ArtifactsDir != res.RunDir {
		t.Fatalf("record artifacts dir = %q, want %q", rec.ArtifactsDir, res.RunDir)
	}
	if len(rec.FinalBest) != 1 || rec.FinalBest[0] != res.Outcomes[0].BestFitness {
		t.Fatalf("final best %v does not match outcome %v", rec.FinalBest, res.Outcomes[0].BestFitness)
	}

	snap, ok, err := a.store.GetPopulation(ctx, res.RunID, 0)
	if err != nil || !ok {
		t.Fatalf("get population: ok=%v err=%v", ok, err)
	}
	if len(snap.Genomes) != 4 || snap.Generation != 2 {
		t.Fatalf("snapshot carries %d genomes at generation %d, want 4 at 2",
			len(snap.Genomes), snap.Generation)
	}

	best, ok, err := a.BestGenome(ctx, res.RunID, 0)
	if err != nil || !ok {
		t.Fatalf("get best genome: ok=%v err=%v", ok, err)
	}
	if best.Fitness != res.Outcomes[0].BestFitness {
		t.Fatalf("stored best fitness %v, want %v", best.Fitness, res.Outcomes[0].BestFitness)
	}

	parsed, err := a.ParseGenomeFile(filepath.Join(res.RunDir, "best_genome0.txt"))
	if err != nil {
		t.Fatalf("parse best genome artifact: %v", err)
	}
	if len(parsed) != 1 || !reflect.DeepEqual(parsed[0], best.Genome) {
		t.Fatal("best genome artifact does not match the stored genome")
	}
}

func TestRunEvolutionTwoPopulations(t *testing.T) {
	a := newTestAgora(t)
	ctx := context.Background()

	spec := quickSpec()
	spec.Populations = 2
	spec.ConsistentPartner = true
	spec.Aware = []bool{true, false}
	spec.Seeds = []int64{5, 9}

	res, err := a.RunEvolution(ctx, spec)
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if !reflect.DeepEqual(res.Seeds, []int64{5, 9}) {
		t.Fatalf("seeds = %v, want [5 9]", res.Seeds)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("expected two population outcomes, got %d", len(res.Outcomes))
	}

	for _, name := range []string{
		"generations-agent0.csv", "generations-agent1.csv",
		"best_genome0.txt", "best_genome1.txt",
	} {
		if _, err := os.Stat(filepath.Join(res.RunDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	rec, ok, err := a.GetRun(ctx, res.RunID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(rec.Aware, []bool{true, false}) {
		t.Fatalf("record aware = %v, want [true false]", rec.Aware)
	}

	for p := 0; p < 2; p++ {
		if _, ok, err := a.store.GetPopulation(ctx, res.RunID, p); err != nil || !ok {
			t.Fatalf("population %d snapshot: ok=%v err=%v", p, ok, err)
		}
		if _, ok, err := a.BestGenome(ctx, res.RunID, p); err != nil || !ok {
			t.Fatalf("population %d best genome: ok=%v err=%v", p, ok, err)
		}
	}
}

func TestRunEvolutionRejectsUnknownScape(t *testing.T) {
	a := newTestAgora(t)
	spec := quickSpec()
	spec.Scape = "flatland"
	if _, err := a.RunEvolution(context.Background(), spec); err == nil {
		t.Fatal("expected an unknown scape to be rejected")
	}
}

func TestRunEvolutionCanonicalizesScapeAliases(t *testing.T) {
	a := newTestAgora(t)
	spec := quickSpec()
	spec.Scape = "River Crossing Dilemma"

	res, err := a.RunEvolution(context.Background(), spec)
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if res.Scape != RiverScape {
		t.Fatalf("scape = %q, want %q", res.Scape, RiverScape)
	}
}

func TestRunEvolutionRejectsWorldTooSmallForLayout(t *testing.T) {
	a := newTestAgora(t)
	spec := quickSpec()
	spec.Rows = 5
	spec.Cols = 5
	if _, err := a.RunEvolution(context.Background(), spec); err == nil {
		t.Fatal("expected the canonical layout to reject a 5x5 world")
	}
}

func TestRunEvolutionHonorsContext(t *testing.T) {
	a := newTestAgora(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.RunEvolution(ctx, quickSpec()); err == nil {
		t.Fatal("expected a canceled context to abort the run")
	}
	runs, err := a.Runs(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("aborted run must not be persisted, found %d records", len(runs))
	}
}

func TestResumeEvolutionContinuesFromSnapshot(t *testing.T) {
	a := newTestAgora(t)
	ctx := context.Background()

	first, err := a.RunEvolution(ctx, quickSpec())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	resumed, err := a.ResumeEvolution(ctx, first.RunID, RunSpec{
		TimeSteps:       25,
		Generations:     3,
		Seeds:           []int64{23},
		StatsFlushEvery: 1,
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.RunID == first.RunID {
		t.Fatal("a resumed run needs its own id")
	}
	if resumed.Generations != 5 {
		t.Fatalf("cumulative generations = %d, want 5", resumed.Generations)
	}

	snap, ok, err := a.store.GetPopulation(ctx, resumed.RunID, 0)
	if err != nil || !ok {
		t.Fatalf("resumed snapshot: ok=%v err=%v", ok, err)
	}
	if snap.Generation != 5 || len(snap.Genomes) != 4 {
		t.Fatalf("resumed snapshot at generation %d with %d genomes, want 5 with 4",
			snap.Generation, len(snap.Genomes))
	}

	cfg, ok, err := stats.ReadRunConfig(a.ArtifactsDir(), resumed.RunID)
	if err != nil || !ok {
		t.Fatalf("read resumed run config: ok=%v err=%v", ok, err)
	}
	if cfg.ContinuedFromRun != first.RunID {
		t.Fatalf("continued_from_run = %q, want %q", cfg.ContinuedFromRun, first.RunID)
	}
	if cfg.PopulationSize != 4 {
		t.Fatalf("resumed population size = %d, want the inherited 4", cfg.PopulationSize)
	}

	entries, err := stats.ListRunIndex(a.ArtifactsDir())
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 2 || entries[0].RunID != resumed.RunID {
		t.Fatalf("run index should list the resumed run first: %+v", entries)
	}
}

func TestResumeEvolutionUnknownRun(t *testing.T) {
	a := newTestAgora(t)
	_, err := a.ResumeEvolution(context.Background(), "run-ghost", RunSpec{})
	if err == nil {
		t.Fatal("expected resuming an unknown run to fail")
	}
	if !strings.Contains(err.Error(), "run not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResumeEvolutionMissingSnapshot(t *testing.T) {
	store := storage.NewMemoryStore()
	a := NewAgora(Config{Store: store, ArtifactsDir: t.TempDir()})
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	rec := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           "run-hollow",
		CreatedAtUTC:    "2026-08-24T10:00:00Z",
		Scape:           RiverScape,
		Populations:     1,
		PopulationSize:  4,
		Generations:     2,
		Action:          string(evo.ActionGoalRational),
	}
	if err := store.SaveRun(context.Background(), rec); err != nil {
		t.Fatalf("save run: %v", err)
	}

	_, err := a.ResumeEvolution(context.Background(), "run-hollow", RunSpec{})
	if !errors.Is(err, evo.ErrNoPopulation) {
		t.Fatalf("expected ErrNoPopulation, got %v", err)
	}
}

func TestExportRunCopiesArtifacts(t *testing.T) {
	a := newTestAgora(t)
	ctx := context.Background()

	res, err := a.RunEvolution(ctx, quickSpec())
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}

	dest, err := a.ExportRun(res.RunID, t.TempDir())
	if err != nil {
		t.Fatalf("export run: %v", err)
	}
	for _, name := range []string{"run_config.json", "generations-agent0.csv", "best_genome0.txt"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Fatalf("exported artifact %s missing: %v", name, err)
		}
	}

	if _, err := a.ExportRun("run-ghost", t.TempDir()); err == nil {
		t.Fatal("expected exporting an unknown run to fail")
	}
}

func TestParseGenomeFileValidatesTheSchema(t *testing.T) {
	a := newTestAgora(t)

	foreign, err := genotype.NewRandom(model.Schema{LayerSizes: []int{2, 3, 2}}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("random genome: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genome.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create genome file: %v", err)
	}
	if err := genotype.Encode(f, foreign); err != nil {
		t.Fatalf("encode genome: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close genome file: %v", err)
	}

	if _, err := a.ParseGenomeFile(path); err == nil {
		t.Fatal("expected a foreign-shaped genome to be rejected")
	}
}
