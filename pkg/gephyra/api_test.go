package gephyra

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gephyra/internal/model"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "artifacts"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, base
}

func quickRunRequest() RunRequest {
	return RunRequest{
		TimeSteps:       25,
		PopulationSize:  4,
		TournamentSize:  3,
		Generations:     2,
		GoalRationality: 1,
		Seeds:           []int64{11},
		StatsFlushEvery: 1,
	}
}

func TestClientRunListShowGenomeExportResume(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	progressed := 0
	req := quickRunRequest()
	req.OnGeneration = func(int, model.GenerationRecord) { progressed++ }

	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if summary.Generations != 2 {
		t.Fatalf("generations = %d, want 2", summary.Generations)
	}
	if len(summary.Populations) != 1 {
		t.Fatalf("expected one population summary, got %d", len(summary.Populations))
	}
	if progressed != 2 {
		t.Fatalf("progress callback fired %d times, want 2", progressed)
	}
	pop := summary.Populations[0]
	if pop.BestFitness != pop.MaxFitness {
		t.Fatalf("best fitness %v should equal the max %v", pop.BestFitness, pop.MaxFitness)
	}
	if pop.MinFitness > pop.MaxFitness {
		t.Fatalf("min %v exceeds max %v", pop.MinFitness, pop.MaxFitness)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Fatalf("expected run %s in listing: %+v", summary.RunID, runs)
	}

	detail, err := client.ShowRun(ctx, ShowRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("show run: %v", err)
	}
	if detail.Record.PopulationSize != 4 || detail.Record.Generations != 2 {
		t.Fatalf("unexpected record: %+v", detail.Record)
	}
	if len(detail.Diagnostics) != 1 || detail.Diagnostics[0].Fitness.Count != 4 {
		t.Fatalf("unexpected diagnostics: %+v", detail.Diagnostics)
	}

	latest, err := client.ShowRun(ctx, ShowRequest{Latest: true})
	if err != nil {
		t.Fatalf("show latest: %v", err)
	}
	if latest.Record.RunID != summary.RunID {
		t.Fatalf("latest resolved to %s, want %s", latest.Record.RunID, summary.RunID)
	}

	genome, err := client.BestGenome(ctx, BestGenomeRequest{Latest: true})
	if err != nil {
		t.Fatalf("best genome: %v", err)
	}
	if genome.Fitness != pop.BestFitness {
		t.Fatalf("best genome fitness %v, want %v", genome.Fitness, pop.BestFitness)
	}
	if !strings.Contains(genome.Text, "W0:") {
		t.Fatal("genome text should carry the weight block labels")
	}

	parsed, err := client.ParseGenomes(ctx, filepath.Join(summary.ArtifactsDir, "best_genome0.txt"))
	if err != nil {
		t.Fatalf("parse genomes: %v", err)
	}
	if len(parsed) != 1 || !reflect.DeepEqual(parsed[0], genome.Genome) {
		t.Fatal("parsed artifact does not match the reported best genome")
	}

	exported, err := client.ExportRun(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported run %s, want %s", exported.RunID, summary.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "run_config.json")); err != nil {
		t.Fatalf("exported run config missing: %v", err)
	}

	resumed, err := client.Resume(ctx, ResumeRequest{
		RunID:           summary.RunID,
		TimeSteps:       25,
		Generations:     2,
		Seeds:           []int64{23},
		StatsFlushEvery: 1,
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.RunID == summary.RunID {
		t.Fatal("resumed run needs its own id")
	}
	if resumed.Generations != 4 {
		t.Fatalf("cumulative generations = %d, want 4", resumed.Generations)
	}

	runs, err = client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs after resume: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != resumed.RunID {
		t.Fatalf("expected the resumed run to list first: %+v", runs)
	}
}

func TestClientReadsFinishedRunsWithoutTheStore(t *testing.T) {
	first, base := newTestClient(t)
	ctx := context.Background()

	summary, err := first.Run(ctx, quickRunRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// A fresh client over the same artifacts dir simulates a new
	// process whose memory store starts empty.
	second, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "artifacts"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new second client: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	detail, err := second.ShowRun(ctx, ShowRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("show run from artifacts: %v", err)
	}
	if detail.Record.RunID != summary.RunID || detail.Record.PopulationSize != 4 {
		t.Fatalf("unexpected fallback record: %+v", detail.Record)
	}
	if len(detail.Record.FinalBest) != 1 {
		t.Fatalf("fallback record should carry final best from the index: %+v", detail.Record)
	}

	genome, err := second.BestGenome(ctx, BestGenomeRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("best genome from artifacts: %v", err)
	}
	if genome.Fitness != detail.Record.FinalBest[0] {
		t.Fatalf("fallback fitness %v, want %v", genome.Fitness, detail.Record.FinalBest[0])
	}
	if len(genome.Genome.Weights) == 0 {
		t.Fatal("fallback genome is empty")
	}
}

func TestClientRunIDSelectionRules(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.ShowRun(ctx, ShowRequest{RunID: "run-x", Latest: true}); err == nil {
		t.Fatal("expected run id and latest together to fail")
	}
	if _, err := client.ShowRun(ctx, ShowRequest{}); err == nil {
		t.Fatal("expected neither run id nor latest to fail")
	}
	if _, err := client.ShowRun(ctx, ShowRequest{Latest: true}); err == nil {
		t.Fatal("expected latest over an empty index to fail")
	}
	if _, err := client.BestGenome(ctx, BestGenomeRequest{RunID: "run-x", Population: -1}); err == nil {
		t.Fatal("expected a negative population to fail")
	}
}

func TestClientRejectsUnknownStoreKind(t *testing.T) {
	if _, err := New(Options{StoreKind: "bolt"}); err == nil {
		t.Fatal("expected an unsupported store kind to fail")
	}
}

func TestClientRunRejectsBadConfig(t *testing.T) {
	client, _ := newTestClient(t)

	req := quickRunRequest()
	req.Populations = 3
	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected three populations to be rejected")
	}

	req = quickRunRequest()
	req.Scape = "flatland"
	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected an unknown scape to be rejected")
	}
}

func TestClientResetDropsStoredRuns(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, quickRunRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// The store forgets the run; the artifact fallback still serves it.
	detail, err := client.ShowRun(ctx, ShowRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("show after reset: %v", err)
	}
	if detail.Record.RunID != summary.RunID {
		t.Fatalf("fallback record run id = %s, want %s", detail.Record.RunID, summary.RunID)
	}
}
