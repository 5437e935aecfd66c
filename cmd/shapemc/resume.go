package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/cbeckmann/shapemc/internal/updater"
	"github.com/cbeckmann/shapemc/pkg/geometry"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/spf13/cobra"
)

var resumeSweeps int

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume an evolution run from its checkpoint",
	Long: `Loads the checkpoint of an earlier run from the configured store and
continues it for --sweeps more sweeps.

The checkpoint restores the committed per-type shapes and step sizes but
not the random generator state, so the resumed trajectory diverges from
an uninterrupted run. Constant moves resume against the committed shape;
Vertex moves recover their target volumes from the committed hulls.
Elastic and Callback moves keep state (reference shapes, the callback
itself) that checkpoints do not carry and cannot be resumed here.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().IntVar(&resumeSweeps, "sweeps", 0, "Additional sweeps to run (default: the original budget)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	st, err := store.Open(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	checkpoint, err := st.LoadCheckpoint(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no checkpoint for job %s", jobID)
		}
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint for job %s is invalid: %w", jobID, err)
	}

	config := checkpoint.Config
	if resumeSweeps > 0 {
		config.Sweeps = resumeSweeps
	}
	if err := checkpoint.IsCompatible(config); err != nil {
		return err
	}

	sys, err := sim.NewSystemDefinition(config.ParticleTypes)
	if err != nil {
		return err
	}
	sys.SetStep(checkpoint.Step)

	mc := hpmc.NewMonteCarlo(checkpoint.IntegratorKind)
	for typeName, p := range checkpoint.Shapes {
		if err := mc.SetShape(typeName, p); err != nil {
			return fmt.Errorf("failed to restore shape: %w", err)
		}
	}
	if err := mc.Attach(sys); err != nil {
		return err
	}

	strategy, err := rebuildStrategy(checkpoint)
	if err != nil {
		return err
	}
	mv, err := strategy.Attach(sys, mc)
	if err != nil {
		return fmt.Errorf("failed to attach %s move: %w", config.Move, err)
	}
	restoreStepSizes(mv, checkpoint.StepSizes)

	// The generator state is not persisted; derive a fresh deterministic
	// seed from the original one and the resume point.
	seed := config.Seed + int64(checkpoint.Step)
	u, err := updater.New(updater.Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(seed)),
		KT:         config.KT,
		Period:     uint64(config.TriggerPeriod),
	})
	if err != nil {
		return err
	}

	slog.Info("Resuming evolution",
		"job_id", jobID,
		"from_step", checkpoint.Step,
		"sweeps", config.Sweeps,
	)

	period := config.TriggerPeriod
	if period <= 0 {
		period = 1
	}
	startTime := time.Now()
	if err := u.Advance(cmd.Context(), uint64(config.Sweeps*period)); err != nil {
		return fmt.Errorf("evolution failed: %w", err)
	}
	elapsed := time.Since(startTime)

	if err := st.SaveCheckpoint(jobID, u.Checkpoint(jobID, config)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	counts := u.Counts()
	var accepted, total uint64
	for _, c := range counts {
		accepted += c.Accepted
		total += c.Total()
	}
	rate := 0.0
	if total > 0 {
		rate = float64(accepted) / float64(total)
	}
	fmt.Printf("Resumed job %s: step %d -> %d in %s (accept rate %.3f)\n",
		jobID, checkpoint.Step, sys.Step(), elapsed.Round(time.Millisecond), rate)
	return nil
}

// rebuildStrategy reconstructs the move policy from checkpoint state alone.
func rebuildStrategy(c *store.Checkpoint) (shapemove.Strategy, error) {
	switch shapemove.MoveKind(c.Move) {
	case shapemove.MoveConstant:
		// After the first accepted move the committed shape is the target.
		target, ok := c.Shapes[c.Config.ParticleTypes[0]]
		if !ok {
			return nil, fmt.Errorf("checkpoint has no shape to use as the constant target")
		}
		return shapemove.NewConstant(target), nil

	case shapemove.MoveVertex:
		prob := c.Config.MoveProbability
		if prob == 0 {
			prob = 1.0
		}
		mv, err := shapemove.NewVertex(prob)
		if err != nil {
			return nil, err
		}
		if c.Config.StepSize > 0 {
			mv.StepSize = c.Config.StepSize
		}
		// Vertex moves hold the hull volume fixed, so the committed shapes
		// still carry the original targets.
		for typeName, p := range c.Shapes {
			volume, err := geometry.HullVolume(geometry.FromArrays(p.Vertices))
			if err != nil {
				return nil, fmt.Errorf("committed shape for type %q has no usable hull: %w", typeName, err)
			}
			if err := mv.SetVolume(typeName, volume); err != nil {
				return nil, err
			}
		}
		return mv, nil

	case shapemove.MoveElastic:
		return nil, fmt.Errorf("elastic moves cannot be resumed: checkpoints do not carry reference shapes")

	case shapemove.MoveCallback:
		return nil, fmt.Errorf("callback moves cannot be resumed: the shape callback is not persistable")

	default:
		return nil, fmt.Errorf("unknown move kind %q in checkpoint", c.Move)
	}
}

// restoreStepSizes pushes checkpointed per-type step sizes into moves that
// keep them.
func restoreStepSizes(mv native.Move, sizes map[string]float64) {
	type stepSetter interface {
		SetStepSize(typeName string, size float64)
	}
	setter, ok := mv.(stepSetter)
	if !ok {
		return
	}
	for typeName, size := range sizes {
		if size > 0 {
			setter.SetStepSize(typeName, size)
		}
	}
}
