package map2rec

func Convert(kind string, in map[string]any) (any, error) {
	switch kind {
	case "world":
		return ConvertWorld(in), nil
	case "breeding":
		return ConvertBreeding(in), nil
	default:
		return nil, ErrUnsupportedKind
	}
}

func ConvertWorld(in map[string]any) WorldRecord {
	out := defaultWorldRecord()
	for key, val := range in {
		switch key {
		case "scape":
			if s, ok := asString(val); ok {
				out.Scape = s
			}
		case "rows":
			if n, ok := asInt(val); ok {
				out.Rows = n
			}
		case "cols":
			if n, ok := asInt(val); ok {
				out.Cols = n
			}
		case "time_steps":
			if n, ok := asInt(val); ok {
				out.TimeSteps = n
			}
		}
	}
	return out
}

func ConvertBreeding(in map[string]any) BreedingRecord {
	out := defaultBreedingRecord()
	for key, val := range in {
		switch key {
		case "goal_rationality":
			if f, ok := asFloat64(val); ok {
				out.GoalRationality = f
			}
		case "action":
			if s, ok := asString(val); ok {
				out.Action = s
			}
		case "neuromodulation":
			if b, ok := asBool(val); ok {
				out.Neuromodulation = b
			}
		case "crossover_rate":
			if f, ok := asFloat64(val); ok {
				out.CrossoverRate = f
			}
		case "mutation_rate":
			if f, ok := asFloat64(val); ok {
				out.MutationRate = f
			}
		case "modulation_rate":
			if f, ok := asFloat64(val); ok {
				out.ModulationRate = f
			}
		}
	}
	return out
}
