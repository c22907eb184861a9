package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome is the evolvable tensor behind one decision network: one weight
// matrix per adjacent layer pair plus one modulation flag vector per hidden
// layer. Shapes are fixed for the lifetime of a run; only values mutate.
type Genome struct {
	Weights    [][][]float64 `json:"weights"`
	Modulation [][]bool      `json:"modulation"`
}

// CellKind identifies what occupies a world cell.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellResource
	CellStone
	CellWater
)

// CellView is the read-only per-cell snapshot handed to the reactive layer.
// ResourceID is meaningful only when Kind is CellResource; WaterDepth only
// when Kind is CellWater.
type CellView struct {
	Kind       CellKind
	ResourceID int
	WaterDepth int
	Occupied   bool
}

// EpisodeStats summarises one evaluation episode for one policy.
type EpisodeStats struct {
	Fitness        float64 `json:"fitness"`
	Moves          int     `json:"moves"`
	Alive          bool    `json:"alive"`
	HasCarried     bool    `json:"has_carried"`
	DroppedInRiver bool    `json:"dropped_in_river"`
	StonesPlaced   int     `json:"stones_placed"`
	ResourcesFound int     `json:"resources_found"`
	AchievedGoal   bool    `json:"achieved_goal"`
}

// GenerationRecord is one generation's log line: the episode log of the
// best tournament member plus its cumulative fitness when more than one
// environment was evaluated.
type GenerationRecord struct {
	Generation        int            `json:"generation"`
	Episodes          []EpisodeStats `json:"episodes"`
	CumulativeFitness float64        `json:"cumulative_fitness"`
}

// RunRecord is the persistent description of one evolution run.
type RunRecord struct {
	VersionedRecord
	RunID             string    `json:"run_id"`
	CreatedAtUTC      string    `json:"created_at_utc"`
	Scape             string    `json:"scape"`
	Seeds             []int64   `json:"seeds"`
	Populations       int       `json:"populations"`
	PopulationSize    int       `json:"population_size"`
	Generations       int       `json:"generations"`
	GoalRationality   float64   `json:"goal_rationality"`
	Action            string    `json:"action"`
	Neuromodulation   bool      `json:"neuromodulation"`
	Environments      int       `json:"environments"`
	ConsistentPartner bool      `json:"consistent_partner"`
	Aware             []bool    `json:"aware"`
	FinalBest         []float64 `json:"final_best"`
	ArtifactsDir      string    `json:"artifacts_dir,omitempty"`
}

// PopulationSnapshot stores a whole population's genomes so a later run can
// continue evolving it.
type PopulationSnapshot struct {
	VersionedRecord
	RunID      string    `json:"run_id"`
	Population int       `json:"population"`
	Generation int       `json:"generation"`
	Genomes    []Genome  `json:"genomes"`
	Fitnesses  []float64 `json:"fitnesses"`
}

// GenomeRecord stores one notable genome (the best of a population at run
// end) together with the fitness it earned.
type GenomeRecord struct {
	VersionedRecord
	RunID      string  `json:"run_id"`
	Population int     `json:"population"`
	Fitness    float64 `json:"fitness"`
	Genome     Genome  `json:"genome"`
}
