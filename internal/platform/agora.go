// Package platform wires the evolutionary engine, the river scape, the
// stats writers and the persistent store into runnable end-to-end
// evolutions. The Agora owns that wiring for the lifetime of a process.
package platform

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gephyra/internal/model"
	"gephyra/internal/storage"
)

// DefaultArtifactsDir holds run artifacts when Config leaves the
// directory unset.
const DefaultArtifactsDir = "artifacts"

// Config carries the external resources an Agora operates on.
type Config struct {
	// Store persists run records, population snapshots and best
	// genomes. Required.
	Store storage.Store

	// ArtifactsDir is the base directory for per-run artifact
	// directories. Empty selects DefaultArtifactsDir.
	ArtifactsDir string
}

// Agora coordinates evolution runs: it initialises the store, hands out
// run identifiers, streams generation logs and persists results.
type Agora struct {
	store        storage.Store
	artifactsDir string

	mu      sync.RWMutex
	started bool
	active  map[string]struct{}
}

var (
	defaultAgoraMu sync.Mutex
	defaultAgora   *Agora
)

// NewAgora builds an Agora that has not been initialised yet.
func NewAgora(cfg Config) *Agora {
	dir := cfg.ArtifactsDir
	if dir == "" {
		dir = DefaultArtifactsDir
	}
	return &Agora{
		store:        cfg.Store,
		artifactsDir: dir,
		active:       make(map[string]struct{}),
	}
}

// Init starts the process-wide default Agora, or returns the running
// one when it is already up.
func Init(ctx context.Context, cfg Config) (*Agora, error) {
	defaultAgoraMu.Lock()
	defer defaultAgoraMu.Unlock()

	if defaultAgora != nil && defaultAgora.Started() {
		return defaultAgora, nil
	}

	a := NewAgora(cfg)
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	defaultAgora = a
	return defaultAgora, nil
}

// Current returns the default Agora when one is up.
func Current() (*Agora, bool) {
	defaultAgoraMu.Lock()
	a := defaultAgora
	defaultAgoraMu.Unlock()

	if a == nil || !a.Started() {
		return nil, false
	}
	return a, true
}

// Shutdown stops the default Agora, if any.
func Shutdown() error {
	defaultAgoraMu.Lock()
	a := defaultAgora
	defaultAgoraMu.Unlock()
	if a == nil {
		return nil
	}
	if err := a.Close(); err != nil {
		return err
	}
	defaultAgoraMu.Lock()
	if defaultAgora == a {
		defaultAgora = nil
	}
	defaultAgoraMu.Unlock()
	return nil
}

// Init prepares the store schema and the artifacts directory. Calling
// it on a started Agora is a no-op.
func (a *Agora) Init(ctx context.Context) error {
	if a.store == nil {
		return fmt.Errorf("platform: store is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if err := a.store.Init(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(a.artifactsDir, 0o755); err != nil {
		return err
	}
	a.active = make(map[string]struct{})
	a.started = true
	return nil
}

// Close marks the Agora stopped. The store stays open; whoever supplied
// it owns its lifecycle.
func (a *Agora) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	a.active = make(map[string]struct{})
	return nil
}

// Reset drops every persisted run and re-initialises the Agora. It
// refuses while runs are active.
func (a *Agora) Reset(ctx context.Context) error {
	a.mu.Lock()
	if n := len(a.active); n > 0 {
		a.mu.Unlock()
		return fmt.Errorf("platform: %d runs still active", n)
	}
	a.mu.Unlock()

	if err := a.Init(ctx); err != nil {
		return err
	}
	return a.store.Reset(ctx)
}

// Started reports whether Init has completed.
func (a *Agora) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// ArtifactsDir is the base directory run artifacts are written under.
func (a *Agora) ArtifactsDir() string { return a.artifactsDir }

// Runs lists every persisted run, newest first.
func (a *Agora) Runs(ctx context.Context) ([]model.RunRecord, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.store.ListRuns(ctx)
}

// GetRun fetches one run record. The second value is false when the
// run is unknown.
func (a *Agora) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	if err := a.ready(); err != nil {
		return model.RunRecord{}, false, err
	}
	return a.store.GetRun(ctx, runID)
}

// BestGenome fetches the best genome a run's population produced.
func (a *Agora) BestGenome(ctx context.Context, runID string, population int) (model.GenomeRecord, bool, error) {
	if err := a.ready(); err != nil {
		return model.GenomeRecord{}, false, err
	}
	return a.store.GetBestGenome(ctx, runID, population)
}

// ActiveRuns lists the identifiers of runs currently executing, sorted.
func (a *Agora) ActiveRuns() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.active))
	for id := range a.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *Agora) ready() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.started {
		return fmt.Errorf("platform: agora is not initialized")
	}
	return nil
}

func (a *Agora) registerRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("platform: run id is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return fmt.Errorf("platform: agora is not initialized")
	}
	if _, exists := a.active[runID]; exists {
		return fmt.Errorf("platform: run already active: %s", runID)
	}
	a.active[runID] = struct{}{}
	return nil
}

func (a *Agora) unregisterRun(runID string) {
	if runID == "" {
		return
	}
	a.mu.Lock()
	delete(a.active, runID)
	a.mu.Unlock()
}
