//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gephyra/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records in a single SQLite file via the pure-Go
// modernc driver. Payloads are JSON blobs from the storage codec, so
// the schema stays stable while record shapes evolve behind the
// version fields.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			payload = excluded.payload
	`, run.RunID, run.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error {
	if snapshot.RunID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePopulation(snapshot)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO populations (run_id, population, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, population) DO UPDATE SET
			payload = excluded.payload
	`, snapshot.RunID, snapshot.Population, payload)
	return err
}

func (s *SQLiteStore) GetPopulation(ctx context.Context, runID string, population int) (model.PopulationSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PopulationSnapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM populations WHERE run_id = ? AND population = ?`,
		runID, population).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PopulationSnapshot{}, false, nil
		}
		return model.PopulationSnapshot{}, false, err
	}

	snapshot, err := DecodePopulation(payload)
	if err != nil {
		return model.PopulationSnapshot{}, false, fmt.Errorf("decode population %s/%d: %w", runID, population, err)
	}
	return snapshot, true, nil
}

func (s *SQLiteStore) SaveBestGenome(ctx context.Context, record model.GenomeRecord) error {
	if record.RunID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGenomeRecord(record)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO best_genomes (run_id, population, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, population) DO UPDATE SET
			payload = excluded.payload
	`, record.RunID, record.Population, payload)
	return err
}

func (s *SQLiteStore) GetBestGenome(ctx context.Context, runID string, population int) (model.GenomeRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.GenomeRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM best_genomes WHERE run_id = ? AND population = ?`,
		runID, population).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.GenomeRecord{}, false, nil
		}
		return model.GenomeRecord{}, false, err
	}

	record, err := DecodeGenomeRecord(payload)
	if err != nil {
		return model.GenomeRecord{}, false, fmt.Errorf("decode best genome %s/%d: %w", runID, population, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		DELETE FROM runs;
		DELETE FROM populations;
		DELETE FROM best_genomes;
	`)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS populations (
			run_id TEXT NOT NULL,
			population INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, population)
		);
		CREATE TABLE IF NOT EXISTS best_genomes (
			run_id TEXT NOT NULL,
			population INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, population)
		);
	`)
	return err
}
