package store

// Store is the interface for checkpoint persistence. Implementations must be
// safe for concurrent use.
//
// Error conventions:
//   - nil on success
//   - ErrNotFound when the checkpoint does not exist (Load/Delete)
//   - wrapped errors with context for I/O and serialization failures,
//     fmt.Errorf("failed to X: %w", err)
type Store interface {
	// SaveCheckpoint saves a checkpoint for the given job, overwriting any
	// existing one. Implementations write atomically so a crash mid-save
	// never leaves a corrupt checkpoint behind.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for the given job.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for all checkpoints, ordered by job
	// ID. The slice may be empty.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint and its associated artifacts
	// (the trace file where the backend keeps one) for the given job.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	DeleteCheckpoint(jobID string) error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
