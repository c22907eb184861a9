package map2rec

// WorldRecord describes the grid world a run is evaluated on. Zero
// dimensions select the canonical river crossing layout.
type WorldRecord struct {
	Scape     string
	Rows      int
	Cols      int
	TimeSteps int
}

// BreedingRecord carries the tournament breeding knobs. All-zero rates
// select the engine defaults.
type BreedingRecord struct {
	GoalRationality float64
	Action          string
	Neuromodulation bool
	CrossoverRate   float64
	MutationRate    float64
	ModulationRate  float64
}

func defaultWorldRecord() WorldRecord {
	return WorldRecord{
		Scape: "river-crossing",
	}
}

func defaultBreedingRecord() BreedingRecord {
	return BreedingRecord{
		GoalRationality: 1,
		Action:          "goal-rational",
	}
}
