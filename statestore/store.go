// Package statestore persists per-ingestion progress so a restarted
// pipeline resumes exactly where it left off instead of re-pushing chunks
// the receiver already acknowledged.
package statestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabflow/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingestion_state (
	ingestion_id  TEXT PRIMARY KEY,
	last_chunk    INTEGER NOT NULL DEFAULT -1,
	total_records INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'in_progress',
	updated_at    TEXT NOT NULL
);
`

// Status values for the ingestion_state.status column.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// State is one ingestion's durable progress record.
type State struct {
	IngestionID  string
	LastChunk    int // -1 means no chunk has been committed yet
	TotalRecords int
	Status       string
	UpdatedAt    time.Time
}

// Store wraps the SQLite-backed ingestion_state table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the state store at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path,
		dbopen.WithTrace(),
		dbopen.WithMkdirAll(),
		dbopen.WithSynchronous("FULL"),
		dbopen.WithSchema(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory() (*Store, error) {
	db, err := dbopen.Open(":memory:", dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("statestore: open memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// DB exposes the underlying database handle, for callers (audit/metrics)
// that want to share one SQLite file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetState returns the current state for ingestionID, or nil if no row
// exists yet (the ingestion has never committed a chunk).
func (s *Store) GetState(ingestionID string) (*State, error) {
	row := s.db.QueryRow(
		`SELECT ingestion_id, last_chunk, total_records, status, updated_at
		   FROM ingestion_state WHERE ingestion_id = ?`,
		ingestionID,
	)
	var st State
	var updatedAt string
	err := row.Scan(&st.IngestionID, &st.LastChunk, &st.TotalRecords, &st.Status, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: get state %s: %w", ingestionID, err)
	}
	st.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("statestore: parse updated_at for %s: %w", ingestionID, err)
	}
	return &st, nil
}

// GetLastChunk returns the last successfully committed chunk number, or -1
// if the ingestion has no recorded progress.
func (s *Store) GetLastChunk(ingestionID string) (int, error) {
	st, err := s.GetState(ingestionID)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return -1, nil
	}
	return st.LastChunk, nil
}

// GetTotalRecords returns the running record count committed so far.
func (s *Store) GetTotalRecords(ingestionID string) (int, error) {
	st, err := s.GetState(ingestionID)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, nil
	}
	return st.TotalRecords, nil
}

// UpdateChunk durably records that chunkNumber was acknowledged, advancing
// total_records by recordCount. It upserts: the first call for an
// ingestion_id creates the row. The write must complete (WAL-synced) before
// returning, since the caller only calls this after receiving an ACK and
// the pipeline relies on it surviving a crash immediately after.
func (s *Store) UpdateChunk(ingestionID string, chunkNumber, recordCount int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		INSERT INTO ingestion_state (ingestion_id, last_chunk, total_records, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ingestion_id) DO UPDATE SET
			last_chunk    = excluded.last_chunk,
			total_records = ingestion_state.total_records + ?,
			status        = excluded.status,
			updated_at    = excluded.updated_at
	`, ingestionID, chunkNumber, recordCount, StatusInProgress, now, recordCount)
	if err != nil {
		return fmt.Errorf("statestore: update chunk %s/%d: %w", ingestionID, chunkNumber, err)
	}
	return nil
}

// MarkCompleted flips an ingestion's status to completed once every chunk
// has been acknowledged.
func (s *Store) MarkCompleted(ingestionID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(
		`UPDATE ingestion_state SET status = ?, updated_at = ? WHERE ingestion_id = ?`,
		StatusCompleted, now, ingestionID,
	)
	if err != nil {
		return fmt.Errorf("statestore: mark completed %s: %w", ingestionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("statestore: mark completed %s: no such ingestion", ingestionID)
	}
	return nil
}

// MarkFailed flips an ingestion's status to failed, keeping last_chunk so a
// later re-ingest with re_ingestion=false can still resume from it.
func (s *Store) MarkFailed(ingestionID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`UPDATE ingestion_state SET status = ?, updated_at = ? WHERE ingestion_id = ?`,
		StatusFailed, now, ingestionID,
	)
	if err != nil {
		return fmt.Errorf("statestore: mark failed %s: %w", ingestionID, err)
	}
	return nil
}

// Reset deletes an ingestion's row entirely, used when re_ingestion=true
// requests a from-scratch restart instead of a resume.
func (s *Store) Reset(ingestionID string) error {
	_, err := s.db.Exec(`DELETE FROM ingestion_state WHERE ingestion_id = ?`, ingestionID)
	if err != nil {
		return fmt.Errorf("statestore: reset %s: %w", ingestionID, err)
	}
	return nil
}
