package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gephyra/internal/map2rec"
	"gephyra/pkg/gephyra"
)

// loadRunRequestFromConfig reads a JSON run config. The flat keys
// mirror the run_config.json artifact, so an exported config can seed a
// fresh run; nested "world" and "breeding" sections are accepted too,
// with flat keys winning over sections. The run_id key is skipped
// because an id names exactly one run.
func loadRunRequestFromConfig(path string) (gephyra.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gephyra.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return gephyra.RunRequest{}, err
	}

	var req gephyra.RunRequest
	if worldMap, ok := raw["world"].(map[string]any); ok {
		world := map2rec.ConvertWorld(worldMap)
		req.Scape = world.Scape
		req.Rows = world.Rows
		req.Cols = world.Cols
		req.TimeSteps = world.TimeSteps
	}
	if breedingMap, ok := raw["breeding"].(map[string]any); ok {
		breeding := map2rec.ConvertBreeding(breedingMap)
		req.GoalRationality = breeding.GoalRationality
		req.Action = breeding.Action
		req.Neuromodulation = breeding.Neuromodulation
		req.CrossoverRate = breeding.CrossoverRate
		req.MutationRate = breeding.MutationRate
		req.ModulationRate = breeding.ModulationRate
	}

	if v, ok := asString(raw["scape"]); ok {
		req.Scape = v
	}
	if v, ok := asInt(raw["rows"]); ok {
		req.Rows = v
	}
	if v, ok := asInt(raw["cols"]); ok {
		req.Cols = v
	}
	if v, ok := asInt(raw["time_steps"]); ok {
		req.TimeSteps = v
	}
	if v, ok := asInt(raw["populations"]); ok {
		req.Populations = v
	}
	if v, ok := asInt(raw["population_size"]); ok {
		req.PopulationSize = v
	}
	if v, ok := asInt(raw["tournament_size"]); ok {
		req.TournamentSize = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asFloat64(raw["goal_rationality"]); ok {
		req.GoalRationality = v
	}
	if v, ok := asString(raw["action"]); ok {
		req.Action = v
	}
	if v, ok := asBool(raw["neuromodulation"]); ok {
		req.Neuromodulation = v
	}
	if v, ok := asInt(raw["environments"]); ok {
		req.Environments = v
	}
	if v, ok := asBool(raw["consistent_partner"]); ok {
		req.ConsistentPartner = v
	}
	if v, ok := asBools(raw["aware"]); ok {
		req.Aware = v
	}
	if v, ok := asInt64s(raw["seeds"]); ok {
		req.Seeds = v
	}
	if v, ok := asBool(raw["randomize"]); ok {
		req.Randomize = v
	}
	if v, ok := asFloat64(raw["crossover_rate"]); ok {
		req.CrossoverRate = v
	}
	if v, ok := asFloat64(raw["mutation_rate"]); ok {
		req.MutationRate = v
	}
	if v, ok := asFloat64(raw["modulation_rate"]); ok {
		req.ModulationRate = v
	}
	if v, ok := asInt(raw["flush_every"]); ok {
		req.StatsFlushEvery = v
	}

	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asInt64s(v any) ([]int64, bool) {
	xs, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(xs))
	for _, item := range xs {
		n, ok := asInt64(item)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func asBools(v any) ([]bool, bool) {
	xs, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]bool, 0, len(xs))
	for _, item := range xs {
		b, ok := asBool(item)
		if !ok {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// overrideFromFlags applies only the flags the user actually set on top
// of a loaded config.
func overrideFromFlags(req *gephyra.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "scape":
			req.Scape = v.(string)
		case "rows":
			req.Rows = v.(int)
		case "cols":
			req.Cols = v.(int)
		case "steps":
			req.TimeSteps = v.(int)
		case "pops":
			req.Populations = v.(int)
		case "pop":
			req.PopulationSize = v.(int)
		case "tournament":
			req.TournamentSize = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "rationality":
			req.GoalRationality = v.(float64)
		case "action":
			req.Action = v.(string)
		case "neuromodulation":
			req.Neuromodulation = v.(bool)
		case "environments":
			req.Environments = v.(int)
		case "consistent-partner":
			req.ConsistentPartner = v.(bool)
		case "aware":
			req.Aware = v.([]bool)
		case "seeds":
			req.Seeds = v.([]int64)
		case "randomize":
			req.Randomize = v.(bool)
		case "crossover":
			req.CrossoverRate = v.(float64)
		case "mutation":
			req.MutationRate = v.(float64)
		case "modulation":
			req.ModulationRate = v.(float64)
		case "flush-every":
			req.StatsFlushEvery = v.(int)
		}
	}
}

func loadOrDefaultRunRequest(configPath string) (gephyra.RunRequest, error) {
	if configPath == "" {
		return gephyra.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return gephyra.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
