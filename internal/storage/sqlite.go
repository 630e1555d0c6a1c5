package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
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

func (s *SQLiteStore) SaveSimulation(ctx context.Context, rec SimulationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSimulation(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO simulations (id, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, rec.ID, rec.CreatedAt.UnixNano(), rec.SchemaVersion, rec.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetSimulation(ctx context.Context, id string) (SimulationRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return SimulationRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM simulations WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SimulationRecord{}, false, nil
		}
		return SimulationRecord{}, false, err
	}

	rec, err := DecodeSimulation(payload)
	if err != nil {
		return SimulationRecord{}, false, fmt.Errorf("decode simulation %s: %w", id, err)
	}
	return rec, true, nil
}

// ListSimulations returns all records, oldest first.
func (s *SQLiteStore) ListSimulations(ctx context.Context) ([]SimulationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM simulations ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimulationRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		rec, err := DecodeSimulation(payload)
		if err != nil {
			return nil, fmt.Errorf("decode simulation %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveDataSet(ctx context.Context, rec DataSetRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeDataSet(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO datasets (simulation_id, idx, label, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(simulation_id, idx) DO UPDATE SET
			label = excluded.label,
			payload = excluded.payload
	`, rec.SimulationID, rec.Index, rec.Label, payload)
	return err
}

func (s *SQLiteStore) GetDataSet(ctx context.Context, simulationID string, index int) (DataSetRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return DataSetRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE simulation_id = ? AND idx = ?`, simulationID, index).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DataSetRecord{}, false, nil
		}
		return DataSetRecord{}, false, err
	}

	rec, err := DecodeDataSet(payload)
	if err != nil {
		return DataSetRecord{}, false, fmt.Errorf("decode data set %s/%d: %w", simulationID, index, err)
	}
	return rec, true, nil
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
		CREATE TABLE IF NOT EXISTS simulations (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS datasets (
			simulation_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			label TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (simulation_id, idx)
		);
	`)
	return err
}
