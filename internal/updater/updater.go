// Package updater drives shape-change sweeps: at every trigger step it walks
// the particle types, asks the attached move for a trial shape per type, and
// accepts or rejects each trial with a Metropolis criterion before committing
// accepted shapes to the integrator.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cbeckmann/shapemc/internal/metrics"
	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
)

// Config collects the collaborators of an Updater. System, Integrator, Move
// and RNG are required; the rest default to inert implementations.
type Config struct {
	// System supplies the particle types and the timestep.
	System *sim.SystemDefinition

	// Integrator owns the committed shapes. It must be attached.
	Integrator hpmc.Integrator

	// Move generates and weighs trial shapes.
	Move native.Move

	// RNG is the single random stream of the sweep loop.
	RNG *rand.Rand

	// KT is the temperature entering the Metropolis weight. Defaults to 1.
	KT float64

	// Period triggers a sweep every Period steps. Defaults to 1.
	Period uint64

	// Overlap vetoes trial shapes. Defaults to NoOverlaps.
	Overlap OverlapChecker

	// Trace receives one entry per attempted move when non-nil.
	Trace *store.TraceWriter

	// Recorder receives attempt, energy and sweep observations.
	Recorder metrics.Recorder
}

// Counts holds accepted and rejected proposal totals for one particle type.
type Counts struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Total returns the number of counted attempts.
func (c Counts) Total() uint64 {
	return c.Accepted + c.Rejected
}

// AcceptanceRate returns the fraction of counted attempts that were
// accepted, or 0 when nothing has been counted.
func (c Counts) AcceptanceRate() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Accepted) / float64(total)
}

// Updater runs the shape-update sweep loop. It drives its move from a single
// goroutine and is not internally synchronized; callers that need live
// progress snapshot Counts between Advance calls.
type Updater struct {
	sys     *sim.SystemDefinition
	ig      hpmc.Integrator
	mv      native.Move
	rng     *rand.Rand
	kT      float64
	period  uint64
	overlap OverlapChecker
	trace   *store.TraceWriter
	rec     metrics.Recorder
	counts  map[string]*Counts
}

// New validates the configuration and builds an Updater.
func New(cfg Config) (*Updater, error) {
	if cfg.System == nil {
		return nil, fmt.Errorf("system definition cannot be nil")
	}
	if cfg.Integrator == nil {
		return nil, fmt.Errorf("integrator cannot be nil")
	}
	if !cfg.Integrator.Attached() {
		return nil, fmt.Errorf("integrator %s is not attached", cfg.Integrator.Name())
	}
	if cfg.Move == nil {
		return nil, fmt.Errorf("shape move cannot be nil")
	}
	if cfg.RNG == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	kT := cfg.KT
	if kT == 0 {
		kT = 1.0
	}
	if math.IsNaN(kT) || kT <= 0 {
		return nil, fmt.Errorf("kT must be positive, got %v", cfg.KT)
	}
	period := cfg.Period
	if period == 0 {
		period = 1
	}
	overlap := cfg.Overlap
	if overlap == nil {
		overlap = NoOverlaps()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Updater{
		sys:     cfg.System,
		ig:      cfg.Integrator,
		mv:      cfg.Move,
		rng:     cfg.RNG,
		kT:      kT,
		period:  period,
		overlap: overlap,
		trace:   cfg.Trace,
		rec:     rec,
		counts:  make(map[string]*Counts),
	}, nil
}

// Advance moves the simulation forward n steps, sweeping the shapes at every
// trigger step. It stops early when ctx is cancelled.
func (u *Updater) Advance(ctx context.Context, n uint64) error {
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		u.sys.Advance(1)
		step := u.sys.Step()
		if step%u.period != 0 {
			continue
		}
		if err := u.Sweep(step); err != nil {
			return err
		}
	}
	return nil
}

// Sweep attempts one shape move per particle type at the given step.
func (u *Updater) Sweep(step uint64) error {
	start := time.Now()
	for _, typeName := range u.sys.ParticleTypes() {
		if err := u.attempt(step, typeName); err != nil {
			return err
		}
	}
	u.rec.RecordSweep(time.Since(start))
	return nil
}

func (u *Updater) attempt(step uint64, typeName string) error {
	current, ok := u.ig.Shape(typeName)
	if !ok {
		return fmt.Errorf("integrator has no shape for particle type %q", typeName)
	}

	trial, err := u.mv.Propose(u.rng, typeName, current, step)
	if err != nil {
		// Degenerate trials count as ordinary rejections.
		slog.Debug("trial shape discarded", "type", typeName, "step", step, "error", err)
		return u.settle(step, typeName, current, false)
	}

	deltaE := u.mv.Energy(typeName, trial, step) - u.mv.Energy(typeName, current, step)
	overlapped, err := u.overlap.Overlaps(typeName, trial)
	if err != nil {
		return fmt.Errorf("failed to check overlaps for type %q: %w", typeName, err)
	}
	if overlapped || !u.metropolis(deltaE) {
		return u.settle(step, typeName, current, false)
	}

	if err := u.ig.SetShape(typeName, trial); err != nil {
		u.mv.Rejected(typeName)
		return fmt.Errorf("failed to commit trial shape for type %q: %w", typeName, err)
	}
	return u.settle(step, typeName, trial, true)
}

// metropolis accepts downhill moves outright and uphill moves with
// probability exp(-deltaE/kT).
func (u *Updater) metropolis(deltaE float64) bool {
	if deltaE <= 0 {
		return true
	}
	return u.rng.Float64() < math.Exp(-deltaE/u.kT)
}

// settle informs the move of the outcome and updates counters, metrics and
// the trace. The shape argument is the one left committed for the type.
func (u *Updater) settle(step uint64, typeName string, shape hpmc.ShapeParams, accepted bool) error {
	if accepted {
		u.mv.Accepted(typeName)
	} else {
		u.mv.Rejected(typeName)
	}

	energy := u.mv.Energy(typeName, shape, step)
	if !shape.IgnoreStatistics {
		counts, ok := u.counts[typeName]
		if !ok {
			counts = &Counts{}
			u.counts[typeName] = counts
		}
		if accepted {
			counts.Accepted++
		} else {
			counts.Rejected++
		}
		u.rec.RecordAttempt(typeName, accepted)
	}
	u.rec.RecordEnergy(typeName, energy)

	if u.trace != nil {
		entry := store.TraceEntry{
			Step:      step,
			TypeName:  typeName,
			Accepted:  accepted,
			Energy:    energy,
			Timestamp: time.Now().UTC(),
		}
		if err := u.trace.Write(entry); err != nil {
			return fmt.Errorf("failed to write trace entry: %w", err)
		}
	}
	return nil
}

// Counts returns a snapshot of the per-type acceptance counters.
func (u *Updater) Counts() map[string]Counts {
	out := make(map[string]Counts, len(u.counts))
	for typeName, counts := range u.counts {
		out[typeName] = *counts
	}
	return out
}

// ResetCounts zeroes the acceptance counters, keeping shapes and move state.
func (u *Updater) ResetCounts() {
	u.counts = make(map[string]*Counts)
}

// Checkpoint assembles the persistent state of the run: the committed shapes
// plus the move's tunable parameters and step sizes when it keeps them.
func (u *Updater) Checkpoint(jobID string, config store.JobConfig) *store.Checkpoint {
	shapes := make(map[string]hpmc.ShapeParams, u.sys.NumTypes())
	for _, typeName := range u.sys.ParticleTypes() {
		if p, ok := u.ig.Shape(typeName); ok {
			shapes[typeName] = p
		}
	}
	checkpoint := store.NewCheckpoint(jobID, u.sys.Step(), shapes, config)
	if tunable, ok := u.mv.(native.Tunable); ok {
		checkpoint.TunableParams = tunable.TypeParams()
	}
	if sized, ok := u.mv.(native.StepSized); ok {
		checkpoint.StepSizes = sized.StepSizes()
	}
	return checkpoint
}
