package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gephyra/pkg/gephyra"
)

func writeConfig(t *testing.T, name string, payload map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunRequestFromConfigUsesWorldAndBreeding(t *testing.T) {
	path := writeConfig(t, "run_config.json", map[string]any{
		"populations":        2,
		"population_size":    8,
		"tournament_size":    4,
		"generations":        6,
		"environments":       3,
		"consistent_partner": true,
		"aware":              []any{true, false},
		"seeds":              []any{11, 23},
		"flush_every":        2,
		"world": map[string]any{
			"scape":      "river_crossing",
			"rows":       23,
			"cols":       25,
			"time_steps": 400,
		},
		"breeding": map[string]any{
			"goal_rationality": 0.4,
			"action":           "traditional",
			"neuromodulation":  true,
			"crossover_rate":   0.5,
		},
	})

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.Scape != "river_crossing" || req.Rows != 23 || req.Cols != 25 || req.TimeSteps != 400 {
		t.Fatalf("unexpected world fields: %+v", req)
	}
	if req.Populations != 2 || req.PopulationSize != 8 || req.TournamentSize != 4 || req.Generations != 6 {
		t.Fatalf("unexpected evolution fields: %+v", req)
	}
	if req.GoalRationality != 0.4 || req.Action != "traditional" || !req.Neuromodulation {
		t.Fatalf("unexpected breeding fields: %+v", req)
	}
	if req.Environments != 3 || !req.ConsistentPartner {
		t.Fatalf("unexpected evaluation fields: %+v", req)
	}
	if !reflect.DeepEqual(req.Aware, []bool{true, false}) {
		t.Fatalf("unexpected aware flags: %v", req.Aware)
	}
	if !reflect.DeepEqual(req.Seeds, []int64{11, 23}) {
		t.Fatalf("unexpected seeds: %v", req.Seeds)
	}
	if req.CrossoverRate != 0.5 || req.MutationRate != 0 || req.ModulationRate != 0 {
		t.Fatalf("unexpected rates: %+v", req)
	}
	if req.StatsFlushEvery != 2 {
		t.Fatalf("unexpected flush cadence: %d", req.StatsFlushEvery)
	}
}

func TestLoadRunRequestFromConfigFlatKeysWinOverSections(t *testing.T) {
	path := writeConfig(t, "run_config_flat.json", map[string]any{
		"rows":   27,
		"action": "random",
		"world": map[string]any{
			"rows": 23,
		},
		"breeding": map[string]any{
			"action": "traditional",
		},
	})

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.Rows != 27 {
		t.Fatalf("expected the flat rows key to win, got %d", req.Rows)
	}
	if req.Action != "random" {
		t.Fatalf("expected the flat action key to win, got %s", req.Action)
	}
	if req.GoalRationality != 1 {
		t.Fatalf("expected the breeding section default rationality, got %f", req.GoalRationality)
	}
}

func TestLoadRunRequestFromConfigSkipsRunID(t *testing.T) {
	path := writeConfig(t, "run_config_id.json", map[string]any{
		"run_id":      "11111111-2222-3333-4444-555555555555",
		"generations": 3,
	})

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.RunID != "" {
		t.Fatalf("expected run_id to be skipped, got %q", req.RunID)
	}
	if req.Generations != 3 {
		t.Fatalf("expected generations from config, got %d", req.Generations)
	}
}

func TestLoadRunRequestFromConfigKeepsZeroValuesOnMalformedKeys(t *testing.T) {
	path := writeConfig(t, "run_config_bad.json", map[string]any{
		"population_size": "many",
		"seeds":           []any{11, "x"},
		"aware":           "yes",
	})

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.PopulationSize != 0 || req.Seeds != nil || req.Aware != nil {
		t.Fatalf("expected malformed keys to be ignored, got %+v", req)
	}
}

func TestOverrideFromFlagsAppliesOnlySetFlags(t *testing.T) {
	req := gephyra.RunRequest{Generations: 9, PopulationSize: 30}
	overrideFromFlags(&req, map[string]bool{"gens": true}, map[string]any{
		"gens": 4,
		"pop":  50,
	})
	if req.Generations != 4 {
		t.Fatalf("expected the set gens flag to apply, got %d", req.Generations)
	}
	if req.PopulationSize != 30 {
		t.Fatalf("expected the unset pop flag to be ignored, got %d", req.PopulationSize)
	}
}

func TestLoadOrDefaultRunRequest(t *testing.T) {
	req, err := loadOrDefaultRunRequest("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if !reflect.DeepEqual(req, gephyra.RunRequest{}) {
		t.Fatalf("expected a zero request for an empty path, got %+v", req)
	}

	_, err = loadOrDefaultRunRequest(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected a load config error, got %v", err)
	}
}
