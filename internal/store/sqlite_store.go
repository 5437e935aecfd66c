package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore persists checkpoints in a single SQLite table. The full
// checkpoint is stored as a JSON payload next to the columns the listing
// needs, so ListCheckpoints never deserializes shape sets.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the SQLite database at path and ensures
// the checkpoints table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "shapemc.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		job_id     TEXT PRIMARY KEY,
		step       INTEGER NOT NULL,
		move       TEXT NOT NULL,
		integrator TEXT NOT NULL,
		num_types  INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		payload    BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCheckpoint upserts the checkpoint row. SQLite applies the statement
// atomically, matching the temp-file-plus-rename guarantee of the
// filesystem store.
func (s *SQLiteStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO checkpoints
		(job_id, step, move, integrator, num_types, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			step = excluded.step,
			move = excluded.move,
			integrator = excluded.integrator,
			num_types = excluded.num_types,
			created_at = excluded.created_at,
			payload = excluded.payload`,
		jobID, int64(checkpoint.Step), checkpoint.Move, string(checkpoint.IntegratorKind),
		len(checkpoint.Shapes), checkpoint.Timestamp.Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "step", checkpoint.Step, "backend", "sqlite")
	return nil
}

// LoadCheckpoint reads and deserializes the checkpoint payload.
func (s *SQLiteStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM checkpoints WHERE job_id = ?`, jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints reads the metadata columns, ordered by job ID.
func (s *SQLiteStore) ListCheckpoints() ([]CheckpointInfo, error) {
	rows, err := s.db.Query(`SELECT job_id, step, move, integrator, num_types, created_at
		FROM checkpoints ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []CheckpointInfo{}
	for rows.Next() {
		var info CheckpointInfo
		var step int64
		var integrator, createdAt string
		if err := rows.Scan(&info.JobID, &step, &info.Move, &integrator, &info.NumTypes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		info.Step = uint64(step)
		info.Integrator = hpmc.Kind(integrator)
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint timestamp: %w", err)
		}
		info.Timestamp = ts
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoint rows: %w", err)
	}
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint row.
func (s *SQLiteStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	res, err := s.db.Exec(`DELETE FROM checkpoints WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return &NotFoundError{JobID: jobID}
	}

	slog.Debug("Checkpoint deleted", "jobID", jobID, "backend", "sqlite")
	return nil
}
