package store

import (
	"fmt"
	"time"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// JobConfig holds the configuration of a shape evolution job (checkpoint
// copy). Keeping a copy here avoids import cycles with the server package.
type JobConfig struct {
	ParticleTypes      []string  `json:"particleTypes"`
	Integrator         hpmc.Kind `json:"integrator"`
	Move               string    `json:"move"` // Constant, Elastic, Callback, Vertex
	Sweeps             int       `json:"sweeps"`
	TriggerPeriod      int       `json:"triggerPeriod,omitempty"` // run the move every N steps (default 1)
	KT                 float64   `json:"kT"`
	Seed               int64     `json:"seed"`
	CheckpointInterval int       `json:"checkpointInterval,omitempty"` // checkpoint every N seconds (0 = disabled)

	// MoveProbability and StepSize record the move's knobs so resumed runs
	// reconstruct the same policy. Zero means the move's default.
	MoveProbability float64 `json:"moveProbability,omitempty"`
	StepSize        float64 `json:"stepSize,omitempty"`
}

// Checkpoint is a saved shape evolution state that can be resumed later.
// All fields serialize to JSON for persistence.
//
// The checkpoint captures the committed per-type shapes, the tunable
// parameter vectors of callback-driven moves, and the per-type step sizes,
// but not the random number generator state. Resuming reseeds the RNG, so a
// resumed run diverges from an uninterrupted one while keeping every
// committed shape. Saving generator state would tie the format to one
// generator implementation for little benefit.
type Checkpoint struct {
	// JobID is the unique identifier of the evolution job.
	JobID string `json:"jobId"`

	// Step is the sweep count at which the checkpoint was taken.
	Step uint64 `json:"step"`

	// Move names the shape move policy driving the run.
	Move string `json:"move"`

	// IntegratorKind is the shape family of the attached integrator.
	IntegratorKind hpmc.Kind `json:"integratorKind"`

	// Shapes holds the committed shape of every particle type.
	Shapes map[string]hpmc.ShapeParams `json:"shapes"`

	// TunableParams holds the per-type parameter vectors of callback moves.
	// Nil for moves without tunable parameters.
	TunableParams map[string][]float64 `json:"tunableParams,omitempty"`

	// StepSizes holds per-type proposal step sizes where the move keeps
	// them. Nil for moves with a fixed step size.
	StepSizes map[string]float64 `json:"stepSizes,omitempty"`

	// Timestamp records when the checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed to validate resume
	// requests against the original run settings.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the shape payload. Used for
// listing checkpoints without deserializing full shape sets.
type CheckpointInfo struct {
	JobID      string    `json:"jobId"`
	Step       uint64    `json:"step"`
	Move       string    `json:"move"`
	Integrator hpmc.Kind `json:"integrator"`
	NumTypes   int       `json:"numTypes"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCheckpoint assembles a checkpoint from runtime job state.
func NewCheckpoint(jobID string, step uint64, shapes map[string]hpmc.ShapeParams, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:          jobID,
		Step:           step,
		Move:           config.Move,
		IntegratorKind: config.Integrator,
		Shapes:         shapes,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo reduces a full checkpoint to its listing metadata.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:      c.JobID,
		Step:       c.Step,
		Move:       c.Move,
		Integrator: c.IntegratorKind,
		NumTypes:   len(c.Shapes),
		Timestamp:  c.Timestamp,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate persisted state through shared maps.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.Shapes = make(map[string]hpmc.ShapeParams, len(c.Shapes))
	for name, p := range c.Shapes {
		out.Shapes[name] = p.Clone()
	}
	if c.TunableParams != nil {
		out.TunableParams = make(map[string][]float64, len(c.TunableParams))
		for name, v := range c.TunableParams {
			out.TunableParams[name] = append([]float64{}, v...)
		}
	}
	if c.StepSizes != nil {
		out.StepSizes = make(map[string]float64, len(c.StepSizes))
		for name, v := range c.StepSizes {
			out.StepSizes[name] = v
		}
	}
	out.Config.ParticleTypes = append([]string{}, c.Config.ParticleTypes...)
	return &out
}

// Validate checks that the checkpoint is complete and internally consistent.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Move == "" {
		return &ValidationError{Field: "Move", Reason: "cannot be empty"}
	}
	if c.IntegratorKind == "" {
		return &ValidationError{Field: "IntegratorKind", Reason: "cannot be empty"}
	}
	if len(c.Shapes) == 0 {
		return &ValidationError{Field: "Shapes", Reason: "cannot be empty"}
	}
	for name, p := range c.Shapes {
		if err := p.Validate(c.IntegratorKind); err != nil {
			return &ValidationError{
				Field:  "Shapes",
				Reason: fmt.Sprintf("type %q invalid for %s: %v", name, c.IntegratorKind, err),
			}
		}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if len(c.Config.ParticleTypes) == 0 {
		return &ValidationError{Field: "Config.ParticleTypes", Reason: "cannot be empty"}
	}
	for _, typeName := range c.Config.ParticleTypes {
		if _, ok := c.Shapes[typeName]; !ok {
			return &ValidationError{
				Field:  "Shapes",
				Reason: fmt.Sprintf("missing entry for configured type %q", typeName),
			}
		}
	}
	if c.Config.Move == "" {
		return &ValidationError{Field: "Config.Move", Reason: "cannot be empty"}
	}
	if c.Config.Sweeps <= 0 {
		return &ValidationError{Field: "Config.Sweeps", Reason: "must be positive"}
	}
	return nil
}

// ValidationError reports an invalid checkpoint field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this checkpoint can seed a run with the given
// config. A resumed job must keep the move policy, the integrator family and
// the particle types of the original run.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Move != config.Move {
		return &CompatibilityError{
			Field:    "Move",
			Expected: c.Config.Move,
			Actual:   config.Move,
		}
	}
	if c.Config.Integrator != config.Integrator {
		return &CompatibilityError{
			Field:    "Integrator",
			Expected: string(c.Config.Integrator),
			Actual:   string(config.Integrator),
		}
	}
	if len(c.Config.ParticleTypes) != len(config.ParticleTypes) {
		return &CompatibilityError{
			Field:    "ParticleTypes",
			Expected: fmt.Sprintf("%d types", len(c.Config.ParticleTypes)),
			Actual:   fmt.Sprintf("%d types", len(config.ParticleTypes)),
		}
	}
	for i, typeName := range c.Config.ParticleTypes {
		if config.ParticleTypes[i] != typeName {
			return &CompatibilityError{
				Field:    "ParticleTypes",
				Expected: typeName,
				Actual:   config.ParticleTypes[i],
			}
		}
	}
	return nil
}

// CompatibilityError reports a checkpoint/config mismatch on resume.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
