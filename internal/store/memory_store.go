package store

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps checkpoints in process memory. Intended for tests and
// ephemeral runs; contents vanish with the process.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*Checkpoint)}
}

// SaveCheckpoint stores a deep copy of the checkpoint.
func (m *MemoryStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[jobID] = checkpoint.Clone()
	return nil
}

// LoadCheckpoint returns a deep copy of the stored checkpoint.
func (m *MemoryStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	checkpoint, ok := m.checkpoints[jobID]
	if !ok {
		return nil, &NotFoundError{JobID: jobID}
	}
	return checkpoint.Clone(), nil
}

// ListCheckpoints returns metadata for all checkpoints ordered by job ID.
func (m *MemoryStore) ListCheckpoints() ([]CheckpointInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.checkpoints))
	for jobID := range m.checkpoints {
		ids = append(ids, jobID)
	}
	sort.Strings(ids)

	infos := make([]CheckpointInfo, 0, len(ids))
	for _, jobID := range ids {
		infos = append(infos, m.checkpoints[jobID].ToInfo())
	}
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint for the given job.
func (m *MemoryStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkpoints[jobID]; !ok {
		return &NotFoundError{JobID: jobID}
	}
	delete(m.checkpoints, jobID)
	return nil
}
