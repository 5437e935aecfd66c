package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cbeckmann/shapemc/internal/metrics"
	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/cbeckmann/shapemc/internal/updater"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove"
	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/cbeckmann/shapemc/pkg/variant"
)

// progressInterval throttles job snapshots and SSE progress events.
const progressInterval = 500 * time.Millisecond

// buildStrategy constructs the shape move a job request describes and records
// the knobs it settled on (move probability, step size) back into the request
// config so they end up in checkpoints.
//
// Callback moves need an in-process ShapeCallback and cannot be started over
// the API.
func buildStrategy(req *CreateJobRequest) (shapemove.Strategy, error) {
	switch shapemove.MoveKind(req.Config.Move) {
	case shapemove.MoveConstant:
		if req.Target == nil {
			return nil, fmt.Errorf("constant move requires a target shape")
		}
		req.Config.MoveProbability = 1
		return shapemove.NewConstant(*req.Target), nil

	case shapemove.MoveElastic:
		stiffness := 1.0
		if req.Stiffness != nil {
			stiffness = *req.Stiffness
		}
		prob := 0.5
		if req.MoveProbability != nil {
			prob = *req.MoveProbability
		}
		mv, err := shapemove.NewElastic(variant.NewConstant(stiffness), prob)
		if err != nil {
			return nil, err
		}
		if req.StepSize != nil {
			mv.StepSize = *req.StepSize
		}
		refs := req.References
		if len(refs) == 0 {
			// No explicit references: deform against the starting shapes.
			refs = req.Shapes
		}
		for typeName, ref := range refs {
			if err := mv.SetReference(typeName, ref); err != nil {
				return nil, err
			}
		}
		req.Config.MoveProbability = prob
		req.Config.StepSize = mv.StepSize
		return mv, nil

	case shapemove.MoveVertex:
		if len(req.Volumes) == 0 {
			return nil, fmt.Errorf("vertex move requires per-type target volumes")
		}
		prob := 1.0
		if req.MoveProbability != nil {
			prob = *req.MoveProbability
		}
		mv, err := shapemove.NewVertex(prob)
		if err != nil {
			return nil, err
		}
		if req.StepSize != nil {
			mv.StepSize = *req.StepSize
		}
		for typeName, volume := range req.Volumes {
			if err := mv.SetVolume(typeName, volume); err != nil {
				return nil, err
			}
		}
		req.Config.MoveProbability = prob
		req.Config.StepSize = mv.StepSize
		return mv, nil

	case shapemove.MoveCallback:
		return nil, fmt.Errorf("callback moves need an in-process shape callback and cannot be started over the API")

	default:
		return nil, fmt.Errorf("unknown move kind %q", req.Config.Move)
	}
}

// runJob executes one evolution job in the background. A nil store disables
// checkpointing.
func runJob(ctx context.Context, jm *JobManager, st store.Store, rec metrics.Recorder, jobID string, req CreateJobRequest) error {
	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	slog.Info("starting evolution job",
		"job_id", jobID,
		"move", req.Config.Move,
		"integrator", req.Config.Integrator,
		"sweeps", req.Config.Sweeps,
	)

	sys, err := sim.NewSystemDefinition(req.Config.ParticleTypes)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	mc := hpmc.NewMonteCarlo(req.Config.Integrator)
	for typeName, p := range req.Shapes {
		if err := mc.SetShape(typeName, p); err != nil {
			markJobFailed(jm, jobID, fmt.Errorf("failed to set starting shape: %w", err))
			return err
		}
	}
	if err := mc.Attach(sys); err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	strategy, err := buildStrategy(&req)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	mv, err := strategy.Attach(sys, mc)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to attach %s move: %w", req.Config.Move, err))
		return err
	}

	u, err := updater.New(updater.Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(req.Config.Seed)),
		KT:         req.Config.KT,
		Period:     uint64(req.Config.TriggerPeriod),
		Recorder:   rec,
	})
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	start := time.Now()
	lastProgress := start
	lastCheckpoint := start
	checkpointEvery := time.Duration(req.Config.CheckpointInterval) * time.Second
	period := uint64(req.Config.TriggerPeriod)

	for sweep := 1; sweep <= req.Config.Sweeps; sweep++ {
		if err := u.Advance(ctx, period); err != nil {
			if ctx.Err() != nil {
				if st != nil {
					saveCheckpoint(st, jobID, u, req.Config)
				}
				markJobCancelled(jm, jobID, u, sys)
				return ctx.Err()
			}
			markJobFailed(jm, jobID, err)
			return err
		}

		now := time.Now()
		if now.Sub(lastProgress) >= progressInterval {
			lastProgress = now
			publishProgress(jm, jobID, u, sys, start, req.Config.Sweeps)
		}
		if st != nil && checkpointEvery > 0 && now.Sub(lastCheckpoint) >= checkpointEvery {
			lastCheckpoint = now
			saveCheckpoint(st, jobID, u, req.Config)
		}
	}

	if st != nil {
		saveCheckpoint(st, jobID, u, req.Config)
	}

	elapsed := time.Since(start)
	endTime := time.Now()
	shapes := mc.Shapes()
	counts := u.Counts()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Step = sys.Step()
		j.Shapes = shapes
		j.Counts = counts
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	sps := float64(req.Config.Sweeps) / elapsed.Seconds()
	slog.Info("evolution job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"accept_rate", overallAcceptance(counts),
		"sweeps_per_second", sps,
	)
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:           jobID,
		State:           StateCompleted,
		Step:            sys.Step(),
		Sweeps:          req.Config.Sweeps,
		AcceptRate:      overallAcceptance(counts),
		SweepsPerSecond: sps,
		Timestamp:       time.Now(),
	})
	return nil
}

// publishProgress snapshots the run into the job record and broadcasts one
// SSE progress event.
func publishProgress(jm *JobManager, jobID string, u *updater.Updater, sys *sim.SystemDefinition, start time.Time, sweeps int) {
	counts := u.Counts()
	step := sys.Step()
	jm.UpdateJob(jobID, func(j *Job) {
		j.Step = step
		j.Counts = counts
	})

	var sps float64
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		sps = float64(step) / elapsed
	}
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:           jobID,
		State:           StateRunning,
		Step:            step,
		Sweeps:          sweeps,
		AcceptRate:      overallAcceptance(counts),
		SweepsPerSecond: sps,
		Timestamp:       time.Now(),
	})
}

// saveCheckpoint persists the run state, logging rather than failing the job
// on store errors.
func saveCheckpoint(st store.Store, jobID string, u *updater.Updater, config store.JobConfig) {
	checkpoint := u.Checkpoint(jobID, config)
	if err := st.SaveCheckpoint(jobID, checkpoint); err != nil {
		slog.Error("failed to save checkpoint", "job_id", jobID, "error", err)
		return
	}
	slog.Debug("checkpoint saved", "job_id", jobID, "step", checkpoint.Step)
}

// markJobFailed records the error and broadcasts the terminal state.
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("evolution job failed", "job_id", jobID, "error", err)
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateFailed,
		Timestamp: endTime,
	})
}

// markJobCancelled records the final step and counters of a cancelled run.
func markJobCancelled(jm *JobManager, jobID string, u *updater.Updater, sys *sim.SystemDefinition) {
	endTime := time.Now()
	counts := u.Counts()
	step := sys.Step()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.Step = step
		j.Counts = counts
		j.EndTime = &endTime
	})
	slog.Info("evolution job cancelled", "job_id", jobID, "step", step)
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      StateCancelled,
		Step:       step,
		AcceptRate: overallAcceptance(counts),
		Timestamp:  endTime,
	})
}
