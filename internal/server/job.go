package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/cbeckmann/shapemc/internal/updater"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/google/uuid"
)

// JobState represents the current state of a job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is an alias to avoid duplication with store.JobConfig.
type JobConfig = store.JobConfig

// Job is one shape evolution run tracked by the server.
type Job struct {
	ID        string                      `json:"id"`
	State     JobState                    `json:"state"`
	Config    JobConfig                   `json:"config"`
	Step      uint64                      `json:"step"`
	Shapes    map[string]hpmc.ShapeParams `json:"shapes,omitempty"`
	Counts    map[string]updater.Counts   `json:"counts,omitempty"`
	StartTime time.Time                   `json:"startTime"`
	EndTime   *time.Time                  `json:"endTime,omitempty"`
	Error     string                      `json:"error,omitempty"`

	cancel context.CancelFunc
}

// snapshot returns a deep copy safe to hand outside the manager's lock.
func (j *Job) snapshot() Job {
	out := *j
	if j.Shapes != nil {
		out.Shapes = make(map[string]hpmc.ShapeParams, len(j.Shapes))
		for typeName, p := range j.Shapes {
			out.Shapes[typeName] = p.Clone()
		}
	}
	if j.Counts != nil {
		out.Counts = make(map[string]updater.Counts, len(j.Counts))
		for typeName, c := range j.Counts {
			out.Counts[typeName] = c
		}
	}
	out.Config.ParticleTypes = append([]string{}, j.Config.ParticleTypes...)
	return out
}

// CreateJobRequest is the body of POST /api/v1/jobs: the evolution config,
// the starting shape per particle type, and the move policy's data.
type CreateJobRequest struct {
	Config JobConfig                   `json:"config"`
	Shapes map[string]hpmc.ShapeParams `json:"shapes"`

	// Target is the fixed shape of a Constant move.
	Target *hpmc.ShapeParams `json:"target,omitempty"`

	// References and Stiffness configure an Elastic move.
	References map[string]hpmc.ShapeParams `json:"references,omitempty"`
	Stiffness  *float64                    `json:"stiffness,omitempty"`

	// Volumes holds the per-type target hull volumes of a Vertex move.
	Volumes map[string]float64 `json:"volumes,omitempty"`

	// StepSize and MoveProbability override the move's defaults.
	StepSize        *float64 `json:"stepSize,omitempty"`
	MoveProbability *float64 `json:"moveProbability,omitempty"`
}

// applyDefaults fills the optional config knobs.
func (req *CreateJobRequest) applyDefaults() {
	if req.Config.Sweeps <= 0 {
		req.Config.Sweeps = 1000
	}
	if req.Config.KT <= 0 {
		req.Config.KT = 1.0
	}
	if req.Config.TriggerPeriod <= 0 {
		req.Config.TriggerPeriod = 1
	}
	if req.Config.Seed == 0 {
		req.Config.Seed = time.Now().UnixNano()
	}
}

// validate checks the request before a job is created for it.
func (req *CreateJobRequest) validate() error {
	if len(req.Config.ParticleTypes) == 0 {
		return fmt.Errorf("particleTypes is required")
	}
	validKind := false
	for _, kind := range hpmc.Kinds() {
		if req.Config.Integrator == kind {
			validKind = true
			break
		}
	}
	if !validKind {
		return fmt.Errorf("unknown integrator kind %q", req.Config.Integrator)
	}
	if req.Config.Move == "" {
		return fmt.Errorf("move is required")
	}
	if len(req.Shapes) == 0 {
		return fmt.Errorf("shapes is required")
	}
	for _, typeName := range req.Config.ParticleTypes {
		if _, ok := req.Shapes[typeName]; !ok {
			return fmt.Errorf("no starting shape for particle type %q", typeName)
		}
	}
	return nil
}

// JobManager tracks the lifecycle of evolution jobs. All accessors return
// deep copies; mutation goes through UpdateJob.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates an empty manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for the given configuration.
func (jm *JobManager) CreateJob(config JobConfig) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return job.snapshot()
}

// bindCancel attaches the cancellation handle of the job's worker context.
func (jm *JobManager) bindCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if job, ok := jm.jobs[id]; ok {
		job.cancel = cancel
	}
}

// GetJob returns a snapshot of the job with the given ID.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, ok := jm.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].StartTime.Equal(jobs[k].StartTime) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].StartTime.Before(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically mutates a job through fn.
func (jm *JobManager) UpdateJob(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	fn(job)
	return nil
}

// CancelJob signals the job's worker to stop. Only pending and running jobs
// can be cancelled.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.cancel == nil || (job.State != StatePending && job.State != StateRunning) {
		return fmt.Errorf("job %s is not running", id)
	}
	job.cancel()
	return nil
}

// GetRunningJobs returns snapshots of all jobs in the running state.
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, job.snapshot())
		}
	}
	return running
}
