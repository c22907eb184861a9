package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gephyra/internal/genotype"
	"gephyra/internal/model"
)

const (
	runIndexFile    = "run_index.json"
	runConfigFile   = "run_config.json"
	diagnosticsFile = "diagnostics.json"
)

// RunConfig is the persisted shape of one run's configuration, written
// next to the run's logs so a result stays interpretable without the
// database.
type RunConfig struct {
	RunID            string `json:"run_id"`
	ContinuedFromRun string `json:"continued_from_run,omitempty"`
	Scape            string `json:"scape"`
	Rows             int    `json:"rows"`
	Cols             int    `json:"cols"`
	TimeSteps        int    `json:"time_steps"`

	Populations       int     `json:"populations"`
	PopulationSize    int     `json:"population_size"`
	TournamentSize    int     `json:"tournament_size"`
	Generations       int     `json:"generations"`
	GoalRationality   float64 `json:"goal_rationality"`
	Action            string  `json:"action"`
	Neuromodulation   bool    `json:"neuromodulation"`
	Environments      int     `json:"environments"`
	ConsistentPartner bool    `json:"consistent_partner"`
	Aware             []bool  `json:"aware"`
	Seeds             []int64 `json:"seeds"`
	Randomize         bool    `json:"randomize"`

	CrossoverRate  float64 `json:"crossover_rate"`
	MutationRate   float64 `json:"mutation_rate"`
	ModulationRate float64 `json:"modulation_rate"`

	CreatedAtUTC string `json:"created_at_utc"`
}

// PopulationDiagnostics ties final fitness diagnostics to one
// population of a run.
type PopulationDiagnostics struct {
	Population  int                `json:"population"`
	Seed        int64              `json:"seed"`
	BestFitness float64            `json:"best_fitness"`
	Fitness     FitnessDiagnostics `json:"fitness"`
}

// RunIndexEntry is one line of the artifact directory's run index.
type RunIndexEntry struct {
	RunID          string    `json:"run_id"`
	Scape          string    `json:"scape"`
	Populations    int       `json:"populations"`
	PopulationSize int       `json:"population_size"`
	Generations    int       `json:"generations"`
	Seeds          []int64   `json:"seeds"`
	FinalBest      []float64 `json:"final_best"`
	CreatedAtUTC   string    `json:"created_at_utc"`
}

// EnsureRunDir creates (if needed) and returns <baseDir>/<runID>.
func EnsureRunDir(baseDir, runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("stats: run id is required")
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	return runDir, nil
}

// GenerationLogPath names population p's CSV log inside runDir.
func GenerationLogPath(runDir string, population int) string {
	return filepath.Join(runDir, fmt.Sprintf("generations-agent%d.csv", population))
}

// BestGenomePath names population p's best-genome dump inside runDir.
func BestGenomePath(runDir string, population int) string {
	return filepath.Join(runDir, fmt.Sprintf("best_genome%d.txt", population))
}

// WriteRunConfig persists cfg as run_config.json inside the run's
// directory, creating it when missing.
func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	runDir, err := EnsureRunDir(baseDir, runID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = runID
	}
	if cfg.RunID != runID {
		return fmt.Errorf("stats: run config id mismatch: got=%s want=%s", cfg.RunID, runID)
	}
	return writeJSON(filepath.Join(runDir, runConfigFile), cfg)
}

// ReadRunConfig loads a run's configuration. The second return is
// false when the run has no config on disk.
func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}
	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

// WriteDiagnostics persists the per-population diagnostics of a run.
func WriteDiagnostics(baseDir, runID string, diags []PopulationDiagnostics) error {
	runDir, err := EnsureRunDir(baseDir, runID)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, diagnosticsFile), diags)
}

// ReadDiagnostics loads a run's diagnostics; false when absent.
func ReadDiagnostics(baseDir, runID string) ([]PopulationDiagnostics, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, diagnosticsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var diags []PopulationDiagnostics
	if err := json.Unmarshal(data, &diags); err != nil {
		return nil, false, err
	}
	return diags, true, nil
}

// WriteBestGenome dumps population p's best genome as a standalone
// codec file.
func WriteBestGenome(runDir string, population int, genome model.Genome) error {
	f, err := os.Create(BestGenomePath(runDir, population))
	if err != nil {
		return err
	}
	defer f.Close()
	return genotype.Encode(f, genome)
}

// ReadBestGenome parses population p's best-genome dump back.
func ReadBestGenome(runDir string, population int, schema model.Schema) (model.Genome, bool, error) {
	path := BestGenomePath(runDir, population)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return model.Genome{}, false, nil
		}
		return model.Genome{}, false, err
	}
	genomes, err := genotype.ParseFile(path, schema)
	if err != nil {
		return model.Genome{}, false, err
	}
	if len(genomes) == 0 {
		return model.Genome{}, false, fmt.Errorf("stats: %s holds no genome block", path)
	}
	return genomes[0], true, nil
}

// AppendRunIndex records or replaces entry in the base directory's
// run index.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("stats: run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the run index sorted newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies one run's artifact files into
// <outDir>/<runID>: the config, the diagnostics, and every
// per-population log and genome dump present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("stats: run id is required")
	}
	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{runConfigFile, diagnosticsFile} {
		srcPath := filepath.Join(src, file)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcPath, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	for _, pattern := range []string{"generations-agent*.csv", "best_genome*.txt"} {
		matches, err := filepath.Glob(filepath.Join(src, pattern))
		if err != nil {
			return "", err
		}
		for _, match := range matches {
			if err := copyFile(match, filepath.Join(dst, filepath.Base(match))); err != nil {
				return "", err
			}
		}
	}
	return dst, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
