// Package store persists world snapshots to SQLite. It layers on top of the
// core's snapshot API; the simulation itself never touches it.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

// SnapshotStore keeps one JSON-encoded snapshot per (simulation, tick).
type SnapshotStore struct {
	db *sql.DB
}

// Open creates or opens the snapshot database at path, creating parent
// directories as needed.
func Open(path string) (*SnapshotStore, error) {
	if path == "" {
		path = "autopoiesim.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		sim_id   TEXT    NOT NULL,
		tick     INTEGER NOT NULL,
		taken_at INTEGER NOT NULL,
		payload  BLOB    NOT NULL,
		PRIMARY KEY (sim_id, tick)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save writes (or overwrites) the snapshot for its simulation and tick.
func (s *SnapshotStore) Save(simID string, snap autopoiesis.Snapshot) error {
	payload, err := autopoiesis.EncodeSnapshotJSON(snap)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (sim_id, tick, taken_at, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT (sim_id, tick) DO UPDATE SET taken_at = excluded.taken_at, payload = excluded.payload`,
		simID, snap.Tick, time.Now().Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("save snapshot sim=%s tick=%d: %w", simID, snap.Tick, err)
	}
	return nil
}

// Load reads the snapshot for a simulation at an exact tick.
func (s *SnapshotStore) Load(simID string, tick int64) (autopoiesis.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM snapshots WHERE sim_id = ? AND tick = ?`, simID, tick,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return autopoiesis.Snapshot{}, fmt.Errorf("snapshot sim=%s tick=%d: %w", simID, tick, autopoiesis.ErrNotFound)
	}
	if err != nil {
		return autopoiesis.Snapshot{}, fmt.Errorf("load snapshot sim=%s tick=%d: %w", simID, tick, err)
	}
	return autopoiesis.DecodeSnapshotJSON(payload)
}

// LoadLatest reads the most recent snapshot for a simulation. The boolean is
// false when none exist.
func (s *SnapshotStore) LoadLatest(simID string) (autopoiesis.Snapshot, bool, error) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM snapshots WHERE sim_id = ? ORDER BY tick DESC LIMIT 1`, simID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return autopoiesis.Snapshot{}, false, nil
	}
	if err != nil {
		return autopoiesis.Snapshot{}, false, fmt.Errorf("load latest snapshot sim=%s: %w", simID, err)
	}
	snap, err := autopoiesis.DecodeSnapshotJSON(payload)
	if err != nil {
		return autopoiesis.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Ticks lists the snapshot ticks stored for a simulation, ascending.
func (s *SnapshotStore) Ticks(simID string) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT tick FROM snapshots WHERE sim_id = ? ORDER BY tick ASC`, simID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshot ticks sim=%s: %w", simID, err)
	}
	defer func() { _ = rows.Close() }()

	var ticks []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// Prune deletes all snapshots for a simulation older than keepAfter.
func (s *SnapshotStore) Prune(simID string, keepAfter int64) error {
	_, err := s.db.Exec(
		`DELETE FROM snapshots WHERE sim_id = ? AND tick < ?`, simID, keepAfter,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots sim=%s: %w", simID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
