package updater

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/cbeckmann/shapemc/internal/metrics"
	"github.com/cbeckmann/shapemc/internal/store"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
)

// stubMove is a deterministic native.Move for exercising the sweep loop.
type stubMove struct {
	trial      hpmc.ShapeParams
	proposeErr error
	energyFn   func(p hpmc.ShapeParams) float64
	proposals  int
	accepted   int
	rejected   int
}

func (m *stubMove) Propose(_ *rand.Rand, _ string, _ hpmc.ShapeParams, _ uint64) (hpmc.ShapeParams, error) {
	m.proposals++
	if m.proposeErr != nil {
		return hpmc.ShapeParams{}, m.proposeErr
	}
	return m.trial.Clone(), nil
}

func (m *stubMove) Energy(_ string, p hpmc.ShapeParams, _ uint64) float64 {
	if m.energyFn == nil {
		return 0
	}
	return m.energyFn(p)
}

func (m *stubMove) Accepted(string) { m.accepted++ }
func (m *stubMove) Rejected(string) { m.rejected++ }

// tunableStubMove adds checkpointable state to stubMove.
type tunableStubMove struct {
	stubMove
	params map[string][]float64
	steps  map[string]float64
}

func (m *tunableStubMove) TypeParams() map[string][]float64 { return m.params }
func (m *tunableStubMove) StepSizes() map[string]float64    { return m.steps }

func setupSystem(t *testing.T, types ...string) *sim.SystemDefinition {
	t.Helper()
	sys, err := sim.NewSystemDefinition(types)
	if err != nil {
		t.Fatalf("NewSystemDefinition failed: %v", err)
	}
	return sys
}

func setupIntegrator(t *testing.T, sys *sim.SystemDefinition, shapes map[string]hpmc.ShapeParams) *hpmc.MonteCarlo {
	t.Helper()
	mc := hpmc.NewMonteCarlo(hpmc.KindConvexPolyhedron)
	for typeName, p := range shapes {
		if err := mc.SetShape(typeName, p); err != nil {
			t.Fatalf("SetShape(%q) failed: %v", typeName, err)
		}
	}
	if err := mc.Attach(sys); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return mc
}

func TestNew_Validation(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	mv := native.NewConstantMove(hpmc.Cube(1.0))
	rng := rand.New(rand.NewSource(1))

	cases := []struct {
		name string
		cfg  Config
	}{
		{"nil system", Config{Integrator: mc, Move: mv, RNG: rng}},
		{"nil integrator", Config{System: sys, Move: mv, RNG: rng}},
		{"unattached integrator", Config{System: sys, Integrator: hpmc.NewMonteCarlo(hpmc.KindSphere), Move: mv, RNG: rng}},
		{"nil move", Config{System: sys, Integrator: mc, RNG: rng}},
		{"nil rng", Config{System: sys, Integrator: mc, Move: mv}},
		{"negative kT", Config{System: sys, Integrator: mc, Move: mv, RNG: rng, KT: -0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestAdvance_ConstantMoveCommitsTarget(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	target := hpmc.Octahedron(1.0)

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       native.NewConstantMove(target),
		RNG:        rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Advance(context.Background(), 5); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	got, ok := mc.Shape("A")
	if !ok {
		t.Fatal("integrator lost shape for type A")
	}
	if len(got.Vertices) != len(target.Vertices) {
		t.Errorf("committed shape has %d vertices, want %d", len(got.Vertices), len(target.Vertices))
	}
	counts := u.Counts()["A"]
	if counts.Accepted != 5 || counts.Rejected != 0 {
		t.Errorf("counts = %+v, want 5 accepted / 0 rejected", counts)
	}
	if rate := counts.AcceptanceRate(); rate != 1.0 {
		t.Errorf("acceptance rate = %v, want 1.0", rate)
	}
}

func TestAdvance_TriggerPeriod(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	mv := &stubMove{trial: hpmc.Cube(1.1)}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(7)),
		Period:     10,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Advance(context.Background(), 25); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if mv.proposals != 2 {
		t.Errorf("proposals = %d with period 10 over 25 steps, want 2", mv.proposals)
	}
	if sys.Step() != 25 {
		t.Errorf("system step = %d, want 25", sys.Step())
	}
}

func TestSweep_ProposalErrorCountsAsRejection(t *testing.T) {
	sys := setupSystem(t, "A")
	original := hpmc.Cube(1.0)
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": original})
	mv := &stubMove{proposeErr: errors.New("degenerate hull")}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Sweep(1); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	counts := u.Counts()["A"]
	if counts.Rejected != 1 || counts.Accepted != 0 {
		t.Errorf("counts = %+v, want 0 accepted / 1 rejected", counts)
	}
	if mv.rejected != 1 {
		t.Errorf("move saw %d rejections, want 1", mv.rejected)
	}
	got, _ := mc.Shape("A")
	if len(got.Vertices) != len(original.Vertices) {
		t.Error("rejected proposal modified the committed shape")
	}
}

func TestSweep_UphillMoveRejectedWhenWeightUnderflows(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	trial := hpmc.Octahedron(1.0)
	mv := &stubMove{
		trial: trial,
		energyFn: func(p hpmc.ShapeParams) float64 {
			if len(p.Vertices) == len(trial.Vertices) {
				return 1000.0
			}
			return 0
		},
	}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for step := uint64(1); step <= 20; step++ {
		if err := u.Sweep(step); err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
	}

	counts := u.Counts()["A"]
	if counts.Accepted != 0 || counts.Rejected != 20 {
		t.Errorf("counts = %+v, want 0 accepted / 20 rejected", counts)
	}
	if mv.accepted != 0 {
		t.Errorf("move saw %d accepts, want 0", mv.accepted)
	}
}

func TestSweep_DownhillMoveAlwaysAccepted(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	trial := hpmc.Octahedron(1.0)
	mv := &stubMove{
		trial: trial,
		energyFn: func(p hpmc.ShapeParams) float64 {
			if len(p.Vertices) == len(trial.Vertices) {
				return -2.0
			}
			return 0
		},
	}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Sweep(1); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if counts := u.Counts()["A"]; counts.Accepted != 1 {
		t.Errorf("counts = %+v, want 1 accepted", counts)
	}
}

func TestSweep_OverlapVeto(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	mv := &stubMove{trial: hpmc.Cube(1.1)}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(1)),
		Overlap: OverlapCheckerFunc(func(string, hpmc.ShapeParams) (bool, error) {
			return true, nil
		}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Sweep(1); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if counts := u.Counts()["A"]; counts.Rejected != 1 || counts.Accepted != 0 {
		t.Errorf("counts = %+v, want rejection by overlap veto", counts)
	}
}

func TestSweep_OverlapErrorPropagates(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       &stubMove{trial: hpmc.Cube(1.1)},
		RNG:        rand.New(rand.NewSource(1)),
		Overlap: OverlapCheckerFunc(func(string, hpmc.ShapeParams) (bool, error) {
			return false, errors.New("cell list out of date")
		}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = u.Sweep(1)
	if err == nil {
		t.Fatal("expected overlap checker error to propagate")
	}
	if !strings.Contains(err.Error(), "cell list out of date") {
		t.Errorf("error %q does not wrap the checker failure", err)
	}
}

func TestSweep_InvalidTrialShapeFailsCommit(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	// A sphere parameterization is not valid for a polyhedron integrator.
	mv := &stubMove{trial: hpmc.ShapeParams{Radius: 0.5}}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Sweep(1); err == nil {
		t.Fatal("expected commit of invalid trial shape to fail")
	}
	if mv.rejected != 1 {
		t.Errorf("move saw %d rejections after failed commit, want 1", mv.rejected)
	}
}

func TestSweep_IgnoreStatisticsSkipsCounters(t *testing.T) {
	sys := setupSystem(t, "A")
	quiet := hpmc.Cube(1.0)
	quiet.IgnoreStatistics = true
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": quiet})
	mv := &stubMove{trial: func() hpmc.ShapeParams {
		p := hpmc.Cube(1.1)
		p.IgnoreStatistics = true
		return p
	}()}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Sweep(1); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if mv.proposals != 1 {
		t.Errorf("proposals = %d, want 1", mv.proposals)
	}
	if counts := u.Counts(); len(counts) != 0 {
		t.Errorf("counters recorded for ignored type: %+v", counts)
	}
}

func TestAdvance_ContextCancelled(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       native.NewConstantMove(hpmc.Cube(1.0)),
		RNG:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := u.Advance(ctx, 100); !errors.Is(err, context.Canceled) {
		t.Errorf("Advance returned %v, want context.Canceled", err)
	}
	if sys.Step() != 0 {
		t.Errorf("system advanced to step %d after cancellation", sys.Step())
	}
}

func TestUpdater_TraceWrites(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})

	baseDir := t.TempDir()
	writer, err := store.NewTraceWriter(baseDir, "job-1", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       native.NewConstantMove(hpmc.Octahedron(1.0)),
		RNG:        rand.New(rand.NewSource(1)),
		Trace:      writer,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Advance(context.Background(), 3); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := store.NewTraceReader(baseDir, "job-1")
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("trace has %d entries, want 3", len(entries))
	}
	for i, entry := range entries {
		if entry.Step != uint64(i+1) {
			t.Errorf("entry %d step = %d, want %d", i, entry.Step, i+1)
		}
		if entry.TypeName != "A" || !entry.Accepted {
			t.Errorf("entry %d = %+v, want accepted move for type A", i, entry)
		}
	}
}

func TestUpdater_MetricsRecorded(t *testing.T) {
	sys := setupSystem(t, "A", "B")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{
		"A": hpmc.Cube(1.0),
		"B": hpmc.Octahedron(1.0),
	})
	rec := metrics.NewExpvarRecorder("")

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       native.NewConstantMove(hpmc.Cube(1.2)),
		RNG:        rand.New(rand.NewSource(1)),
		Recorder:   rec,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Advance(context.Background(), 4); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	snap := rec.Snapshot()
	if got := snap.Moves["A"].Accepted; got != 4 {
		t.Errorf("recorded %d accepts for type A, want 4", got)
	}
	if got := snap.Moves["B"].Accepted; got != 4 {
		t.Errorf("recorded %d accepts for type B, want 4", got)
	}
	if snap.SweepCount != 4 {
		t.Errorf("recorded %d sweeps, want 4", snap.SweepCount)
	}
}

func TestUpdater_Checkpoint(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})
	mv := &tunableStubMove{
		stubMove: stubMove{trial: hpmc.Cube(1.1)},
		params:   map[string][]float64{"A": {1.1}},
		steps:    map[string]float64{"A": 0.05},
	}

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       mv,
		RNG:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Advance(context.Background(), 2); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	config := store.JobConfig{
		ParticleTypes: []string{"A"},
		Integrator:    hpmc.KindConvexPolyhedron,
		Move:          "Callback",
		Sweeps:        100,
		KT:            1.0,
		Seed:          1,
	}
	checkpoint := u.Checkpoint("job-1", config)

	if checkpoint.Step != 2 {
		t.Errorf("checkpoint step = %d, want 2", checkpoint.Step)
	}
	if _, ok := checkpoint.Shapes["A"]; !ok {
		t.Error("checkpoint is missing the shape for type A")
	}
	if got := checkpoint.TunableParams["A"]; len(got) != 1 || got[0] != 1.1 {
		t.Errorf("checkpoint tunable params = %v, want [1.1]", got)
	}
	if got := checkpoint.StepSizes["A"]; got != 0.05 {
		t.Errorf("checkpoint step size = %v, want 0.05", got)
	}
	if err := checkpoint.Validate(); err != nil {
		t.Errorf("checkpoint does not validate: %v", err)
	}
}

func TestUpdater_ResetCounts(t *testing.T) {
	sys := setupSystem(t, "A")
	mc := setupIntegrator(t, sys, map[string]hpmc.ShapeParams{"A": hpmc.Cube(1.0)})

	u, err := New(Config{
		System:     sys,
		Integrator: mc,
		Move:       native.NewConstantMove(hpmc.Cube(1.2)),
		RNG:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := u.Advance(context.Background(), 3); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	u.ResetCounts()
	if counts := u.Counts(); len(counts) != 0 {
		t.Errorf("counts after reset = %+v, want empty", counts)
	}
}

func TestCounts_AcceptanceRate(t *testing.T) {
	if got := (Counts{Accepted: 3, Rejected: 1}).AcceptanceRate(); got != 0.75 {
		t.Errorf("rate = %v, want 0.75", got)
	}
	if got := (Counts{}).AcceptanceRate(); got != 0 {
		t.Errorf("rate of empty counts = %v, want 0", got)
	}
}
