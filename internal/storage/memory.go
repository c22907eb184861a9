package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gephyra/internal/model"
)

// MemoryStore keeps all records in process memory. Every record is
// deep-copied on the way in and out, so callers cannot alias stored
// state.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	populations map[string]model.PopulationSnapshot
	genomes     map[string]model.GenomeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.populations = make(map[string]model.PopulationSnapshot)
	s.genomes = make(map[string]model.GenomeRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.runs[run.RunID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.RunRecord{}, false, err
	}
	run, ok := s.runs[runID]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return copyRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, copyRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
	return runs, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, snapshot model.PopulationSnapshot) error {
	if snapshot.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.populations[populationKey(snapshot.RunID, snapshot.Population)] = copySnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, runID string, population int) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.PopulationSnapshot{}, false, err
	}
	snapshot, ok := s.populations[populationKey(runID, population)]
	if !ok {
		return model.PopulationSnapshot{}, false, nil
	}
	return copySnapshot(snapshot), true, nil
}

func (s *MemoryStore) SaveBestGenome(_ context.Context, record model.GenomeRecord) error {
	if record.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.genomes[populationKey(record.RunID, record.Population)] = copyGenomeRecord(record)
	return nil
}

func (s *MemoryStore) GetBestGenome(_ context.Context, runID string, population int) (model.GenomeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.GenomeRecord{}, false, err
	}
	record, ok := s.genomes[populationKey(runID, population)]
	if !ok {
		return model.GenomeRecord{}, false, nil
	}
	return copyGenomeRecord(record), true, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.runs = make(map[string]model.RunRecord)
	s.populations = make(map[string]model.PopulationSnapshot)
	s.genomes = make(map[string]model.GenomeRecord)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready()
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func populationKey(runID string, population int) string {
	return fmt.Sprintf("%s/%d", runID, population)
}

func copyRun(run model.RunRecord) model.RunRecord {
	run.Seeds = append([]int64(nil), run.Seeds...)
	run.Aware = append([]bool(nil), run.Aware...)
	run.FinalBest = append([]float64(nil), run.FinalBest...)
	return run
}

func copySnapshot(snapshot model.PopulationSnapshot) model.PopulationSnapshot {
	genomes := make([]model.Genome, len(snapshot.Genomes))
	for i, g := range snapshot.Genomes {
		genomes[i] = copyGenome(g)
	}
	snapshot.Genomes = genomes
	snapshot.Fitnesses = append([]float64(nil), snapshot.Fitnesses...)
	return snapshot
}

func copyGenomeRecord(record model.GenomeRecord) model.GenomeRecord {
	record.Genome = copyGenome(record.Genome)
	return record
}

func copyGenome(g model.Genome) model.Genome {
	out := model.Genome{
		Weights:    make([][][]float64, len(g.Weights)),
		Modulation: make([][]bool, len(g.Modulation)),
	}
	for i, w := range g.Weights {
		layer := make([][]float64, len(w))
		for r, row := range w {
			layer[r] = append([]float64(nil), row...)
		}
		out.Weights[i] = layer
	}
	for i, flags := range g.Modulation {
		out.Modulation[i] = append([]bool(nil), flags...)
	}
	return out
}
