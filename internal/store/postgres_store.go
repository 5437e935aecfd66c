package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	postgresDriver     = "pgx"
	defaultPostgresDSN = "postgres://localhost/shapemc?sslmode=disable"
)

// PostgresStore persists checkpoints in a PostgreSQL table with a JSONB
// payload, mirroring the SQLite layout.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL with the given DSN (falling back
// to a localhost default), verifies the connection and ensures the
// checkpoints table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open(postgresDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS checkpoints (
		job_id     TEXT PRIMARY KEY,
		step       BIGINT NOT NULL,
		move       TEXT NOT NULL,
		integrator TEXT NOT NULL,
		num_types  INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload    JSONB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveCheckpoint upserts the checkpoint row.
func (s *PostgresStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			step = EXCLUDED.step,
			move = EXCLUDED.move,
			integrator = EXCLUDED.integrator,
			num_types = EXCLUDED.num_types,
			created_at = EXCLUDED.created_at,
			payload = EXCLUDED.payload`,
		jobID, int64(checkpoint.Step), checkpoint.Move, string(checkpoint.IntegratorKind),
		len(checkpoint.Shapes), checkpoint.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "step", checkpoint.Step, "backend", "postgres")
	return nil
}

// LoadCheckpoint reads and deserializes the checkpoint payload.
func (s *PostgresStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM checkpoints WHERE job_id = $1`, jobID).Scan(&payload)
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
func (s *PostgresStore) ListCheckpoints() ([]CheckpointInfo, error) {
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
		var integrator string
		var ts time.Time
		if err := rows.Scan(&info.JobID, &step, &info.Move, &integrator, &info.NumTypes, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		info.Step = uint64(step)
		info.Integrator = hpmc.Kind(integrator)
		info.Timestamp = ts
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoint rows: %w", err)
	}
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint row.
func (s *PostgresStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	res, err := s.db.Exec(`DELETE FROM checkpoints WHERE job_id = $1`, jobID)
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

	slog.Debug("Checkpoint deleted", "jobID", jobID, "backend", "postgres")
	return nil
}
