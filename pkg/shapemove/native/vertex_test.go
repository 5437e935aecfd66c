package native

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cbeckmann/shapemc/pkg/geometry"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

func TestVertexMove_HoldsTargetVolume(t *testing.T) {
	m := NewVertexMove(map[string]float64{"A": 8.0}, 1.0, 0.05)
	rng := rand.New(rand.NewSource(21))

	current := hpmc.Cube(2.0)
	for i := 0; i < 50; i++ {
		trial, err := m.Propose(rng, "A", current, uint64(i))
		if err != nil {
			t.Fatalf("Propose %d failed: %v", i, err)
		}

		volume, err := geometry.HullVolume(geometry.FromArrays(trial.Vertices))
		if err != nil {
			t.Fatalf("HullVolume failed: %v", err)
		}
		if math.Abs(volume-8.0) > 1e-6 {
			t.Fatalf("proposal %d hull volume = %f, want 8.0", i, volume)
		}

		m.Accepted("A")
		current = trial
	}
}

func TestVertexMove_StepSizeRescalesOnAccept(t *testing.T) {
	// Target volume well above the current one forces an upscale, so the
	// accepted step size must grow by the same cube-root ratio.
	m := NewVertexMove(map[string]float64{"A": 27.0}, 0.25, 0.1)
	rng := rand.New(rand.NewSource(22))

	if _, err := m.Propose(rng, "A", hpmc.Cube(2.0), 0); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	m.Accepted("A")

	got, ok := m.StepSizes()["A"]
	if !ok {
		t.Fatal("no step size recorded after acceptance")
	}
	// cbrt(27/8) = 1.5 up to the perturbation of the hull volume.
	if got < 0.12 || got > 0.18 {
		t.Errorf("step size = %f, want near 0.15", got)
	}
}

func TestVertexMove_StepSizeUnchangedOnReject(t *testing.T) {
	m := NewVertexMove(map[string]float64{"A": 27.0}, 0.25, 0.1)
	rng := rand.New(rand.NewSource(23))

	if _, err := m.Propose(rng, "A", hpmc.Cube(2.0), 0); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	m.Rejected("A")

	if _, ok := m.StepSizes()["A"]; ok {
		t.Error("rejected proposal changed the step size")
	}
}

func TestVertexMove_KeepsSweepRadius(t *testing.T) {
	m := NewVertexMove(map[string]float64{"A": 8.0}, 1.0, 0.05)
	rng := rand.New(rand.NewSource(24))

	current := hpmc.Cube(2.0)
	current.SweepRadius = 0.3

	trial, err := m.Propose(rng, "A", current, 0)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if trial.SweepRadius != 0.3 {
		t.Errorf("sweep radius = %f, want 0.3", trial.SweepRadius)
	}
}

func TestVertexMove_Errors(t *testing.T) {
	m := NewVertexMove(map[string]float64{"A": 8.0}, 1.0, 0.05)
	rng := rand.New(rand.NewSource(25))

	if _, err := m.Propose(rng, "B", hpmc.Cube(2.0), 0); err == nil {
		t.Error("proposal for type without target volume succeeded")
	}
	if _, err := m.Propose(rng, "A", hpmc.ShapeParams{}, 0); err == nil {
		t.Error("proposal with no vertices succeeded")
	}
}

func TestVertexMove_CurrentNotMutated(t *testing.T) {
	m := NewVertexMove(map[string]float64{"A": 8.0}, 1.0, 0.05)
	rng := rand.New(rand.NewSource(26))

	current := hpmc.Cube(2.0)
	want := current.Clone()

	if _, err := m.Propose(rng, "A", current, 0); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	for i := range current.Vertices {
		if current.Vertices[i] != want.Vertices[i] {
			t.Fatalf("Propose mutated the current shape at vertex %d", i)
		}
	}
}
