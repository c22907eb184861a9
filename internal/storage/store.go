// Package storage persists run records, population snapshots and best
// genomes behind a pluggable Store interface with an in-memory backend
// and an optional SQLite backend.
package storage

import (
	"context"

	"gephyra/internal/model"
)

// Store persists the durable state of evolution runs. Getters return
// false, not an error, when a record is absent.
type Store interface {
	Init(ctx context.Context) error

	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)

	SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error
	GetPopulation(ctx context.Context, runID string, population int) (model.PopulationSnapshot, bool, error)

	SaveBestGenome(ctx context.Context, record model.GenomeRecord) error
	GetBestGenome(ctx context.Context, runID string, population int) (model.GenomeRecord, bool, error)

	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
}
