package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/cbeckmann/shapemc/internal/updater"
	"github.com/cbeckmann/shapemc/pkg/geometry"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove"
	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/cbeckmann/shapemc/pkg/variant"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	evolveTypes     []string
	evolveMove      string
	evolveShape     string
	evolveScale     float64
	evolveTarget    string
	evolveSweeps    int
	evolvePeriod    int
	evolveKT        float64
	evolveSeed      int64
	evolveProb      float64
	evolveStepSize  float64
	evolveStiffness float64
	evolveJobID     string
	evolveSave      bool
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Run shape evolution sweeps locally",
	Long: `Runs a shape move against an in-process HPMC integrator and prints the
per-type acceptance statistics.

Every particle type starts from the same preset shape (--shape, --scale).
The move policy is selected with --move:

  Constant  every proposal is the --target preset; used to measure the
            transition rate between two known shapes
  Elastic   volume-preserving scale/shear proposals penalized by
            --stiffness times the deformation from the starting shape
  Vertex    vertex perturbations holding each type's convex hull volume
            at the starting shape's volume

Callback moves are configured in code (see pkg/shapemove) and are not
available from the command line. With --save the final state is written
to the checkpoint store selected by SHAPEMC_STORE_DRIVER.`,
	RunE: runEvolve,
}

func init() {
	evolveCmd.Flags().StringSliceVar(&evolveTypes, "types", []string{"A"}, "Particle type names")
	evolveCmd.Flags().StringVar(&evolveMove, "move", "Vertex", "Move policy: Constant, Elastic, Vertex")
	evolveCmd.Flags().StringVar(&evolveShape, "shape", "cube", "Starting shape preset: cube, octahedron, tetrahedron, truncated-cube, sphere")
	evolveCmd.Flags().Float64Var(&evolveScale, "scale", 1.0, "Preset scale (edge length or circumradius)")
	evolveCmd.Flags().StringVar(&evolveTarget, "target", "octahedron", "Target preset for the Constant move")
	evolveCmd.Flags().IntVar(&evolveSweeps, "sweeps", 1000, "Number of shape update sweeps")
	evolveCmd.Flags().IntVar(&evolvePeriod, "period", 1, "Steps between sweeps")
	evolveCmd.Flags().Float64Var(&evolveKT, "kt", 1.0, "Temperature for the Metropolis criterion")
	evolveCmd.Flags().Int64Var(&evolveSeed, "seed", 42, "Random seed")
	evolveCmd.Flags().Float64Var(&evolveProb, "move-probability", 1.0, "Fraction of vertices/parameters perturbed (scale fraction for Elastic)")
	evolveCmd.Flags().Float64Var(&evolveStepSize, "step-size", 0.1, "Initial proposal step size")
	evolveCmd.Flags().Float64Var(&evolveStiffness, "stiffness", 1.0, "Deformation energy stiffness (Elastic)")
	evolveCmd.Flags().StringVar(&evolveJobID, "job", "", "Job ID for the saved checkpoint (default: a new UUID)")
	evolveCmd.Flags().BoolVar(&evolveSave, "save", false, "Save a final checkpoint to the configured store")
	rootCmd.AddCommand(evolveCmd)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	kind, start, err := hpmc.Preset(evolveShape, evolveScale)
	if err != nil {
		return err
	}

	sys, err := sim.NewSystemDefinition(evolveTypes)
	if err != nil {
		return err
	}
	mc := hpmc.NewMonteCarlo(kind)
	for _, typeName := range evolveTypes {
		if err := mc.SetShape(typeName, start); err != nil {
			return fmt.Errorf("failed to set starting shape: %w", err)
		}
	}
	if err := mc.Attach(sys); err != nil {
		return err
	}

	strategy, err := buildEvolveStrategy(kind, start)
	if err != nil {
		return err
	}
	mv, err := strategy.Attach(sys, mc)
	if err != nil {
		return fmt.Errorf("failed to attach %s move: %w", evolveMove, err)
	}

	u, err := updater.New(updater.Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(evolveSeed)),
		KT:         evolveKT,
		Period:     uint64(evolvePeriod),
	})
	if err != nil {
		return err
	}

	slog.Info("Starting shape evolution",
		"move", evolveMove,
		"integrator", mc.Name(),
		"types", len(evolveTypes),
		"sweeps", evolveSweeps,
	)

	startTime := time.Now()
	if err := u.Advance(cmd.Context(), uint64(evolveSweeps*evolvePeriod)); err != nil {
		return fmt.Errorf("evolution failed: %w", err)
	}
	elapsed := time.Since(startTime)

	counts := u.Counts()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tACCEPTED\tREJECTED\tRATE")
	for _, typeName := range sys.ParticleTypes() {
		c := counts[typeName]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\n", typeName, c.Accepted, c.Rejected, c.AcceptanceRate())
	}
	w.Flush()
	fmt.Printf("\nCompleted %d sweeps in %s (%.0f sweeps/sec)\n",
		evolveSweeps, elapsed.Round(time.Millisecond), float64(evolveSweeps)/elapsed.Seconds())

	if !evolveSave {
		return nil
	}

	jobID := evolveJobID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	config := store.JobConfig{
		ParticleTypes:   evolveTypes,
		Integrator:      kind,
		Move:            evolveMove,
		Sweeps:          evolveSweeps,
		TriggerPeriod:   evolvePeriod,
		KT:              evolveKT,
		Seed:            evolveSeed,
		MoveProbability: evolveProb,
		StepSize:        evolveStepSize,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := store.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if err := st.SaveCheckpoint(jobID, u.Checkpoint(jobID, config)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	fmt.Printf("Saved checkpoint for job %s\n", jobID)
	return nil
}

// buildEvolveStrategy maps the CLI flags to a shape move strategy. Per-type
// data (references, target volumes) derives from the shared starting shape.
func buildEvolveStrategy(kind hpmc.Kind, start hpmc.ShapeParams) (shapemove.Strategy, error) {
	switch shapemove.MoveKind(evolveMove) {
	case shapemove.MoveConstant:
		targetKind, target, err := hpmc.Preset(evolveTarget, evolveScale)
		if err != nil {
			return nil, err
		}
		if targetKind != kind {
			return nil, fmt.Errorf("target preset %q is a %s shape, the integrator simulates %s",
				evolveTarget, targetKind, kind)
		}
		return shapemove.NewConstant(target), nil

	case shapemove.MoveElastic:
		mv, err := shapemove.NewElastic(variant.NewConstant(evolveStiffness), evolveProb)
		if err != nil {
			return nil, err
		}
		mv.StepSize = evolveStepSize
		for _, typeName := range evolveTypes {
			if err := mv.SetReference(typeName, start); err != nil {
				return nil, err
			}
		}
		return mv, nil

	case shapemove.MoveVertex:
		mv, err := shapemove.NewVertex(evolveProb)
		if err != nil {
			return nil, err
		}
		mv.StepSize = evolveStepSize
		volume, err := geometry.HullVolume(geometry.FromArrays(start.Vertices))
		if err != nil {
			return nil, fmt.Errorf("starting shape has no usable hull volume: %w", err)
		}
		for _, typeName := range evolveTypes {
			if err := mv.SetVolume(typeName, volume); err != nil {
				return nil, err
			}
		}
		return mv, nil

	case shapemove.MoveCallback:
		return nil, fmt.Errorf("callback moves are configured in code; see pkg/shapemove")

	default:
		return nil, fmt.Errorf("unknown move %q (want Constant, Elastic or Vertex)", evolveMove)
	}
}
