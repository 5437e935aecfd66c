package shapemove

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

func cubeEdgeCallback() ShapeCallback {
	return ShapeCallbackFunc(func(typeName string, params []float64) (hpmc.ShapeParams, error) {
		return hpmc.Cube(params[0]), nil
	})
}

func TestCallback_TypeParamsNotReadyGates(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindConvexPolyhedron, "A")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	if err := move.SetParams("A", []float64{1.0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}

	if _, err := move.TypeParams(); !errors.Is(err, &NotReadyError{}) {
		t.Errorf("TypeParams before attach error = %v, want NotReadyError", err)
	}

	mv, err := move.Attach(sys, mc)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if _, err := move.TypeParams(); !errors.Is(err, &NotReadyError{}) {
		t.Errorf("TypeParams before first proposal error = %v, want NotReadyError", err)
	}

	rng := rand.New(rand.NewSource(11))
	if _, err := mv.Propose(rng, "A", hpmc.Cube(1.0), 0); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	params, err := move.TypeParams()
	if err != nil {
		t.Fatalf("TypeParams after proposal failed: %v", err)
	}
	if len(params["A"]) != 1 {
		t.Errorf("params[A] = %v, want one entry", params["A"])
	}
}

func TestCallback_AcceptCommitsParams(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindConvexPolyhedron, "A")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	move.StepSize = 0.05
	if err := move.SetParams("A", []float64{1.0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	mv, err := move.Attach(sys, mc)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	shape, err := mv.Propose(rng, "A", hpmc.Cube(1.0), 0)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	edge := shape.Vertices[7][0] * 2

	mv.Accepted("A")
	params, err := move.TypeParams()
	if err != nil {
		t.Fatalf("TypeParams failed: %v", err)
	}
	if math.Abs(params["A"][0]-edge) > 1e-12 {
		t.Errorf("committed param = %f, want proposed edge %f", params["A"][0], edge)
	}
}

func TestCallback_RejectDiscardsParams(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindConvexPolyhedron, "A")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	if err := move.SetParams("A", []float64{1.0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	mv, err := move.Attach(sys, mc)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	if _, err := mv.Propose(rng, "A", hpmc.Cube(1.0), 0); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	mv.Rejected("A")

	params, err := move.TypeParams()
	if err != nil {
		t.Fatalf("TypeParams failed: %v", err)
	}
	if params["A"][0] != 1.0 {
		t.Errorf("param after reject = %f, want original 1.0", params["A"][0])
	}
}

func TestCallback_TypeParamsKeysMatchSystemTypes(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindConvexPolyhedron, "A", "B")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	for _, typeName := range []string{"A", "B", "Z"} {
		if err := move.SetParams(typeName, []float64{1.0}); err != nil {
			t.Fatalf("SetParams(%s) failed: %v", typeName, err)
		}
	}

	mv, err := move.Attach(sys, mc)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	rng := rand.New(rand.NewSource(5))
	if _, err := mv.Propose(rng, "A", hpmc.Cube(1.0), 0); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	// The key set equals the system's declared types: the vector configured
	// for the undeclared type Z never reaches the attached move.
	params, err := move.TypeParams()
	if err != nil {
		t.Fatalf("TypeParams failed: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("TypeParams has %d keys, want 2: %v", len(params), params)
	}
	for _, typeName := range sys.ParticleTypes() {
		if _, ok := params[typeName]; !ok {
			t.Errorf("TypeParams missing declared type %q", typeName)
		}
	}
	if _, ok := params["Z"]; ok {
		t.Error("TypeParams contains undeclared type Z")
	}
}

func TestCallback_MissingParams(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindConvexPolyhedron, "A", "B")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	if err := move.SetParams("A", []float64{1.0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}

	_, err = move.Attach(sys, mc)
	if !errors.Is(err, &ConfigurationError{}) {
		t.Errorf("attach error = %T (%v), want ConfigurationError", err, err)
	}
}

func TestCallback_SphereIntegratorIncompatible(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindSphere, "A")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	if err := move.SetParams("A", []float64{1.0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}

	_, err = move.Attach(sys, mc)
	var ce *CompatibilityError
	if !errors.As(err, &ce) {
		t.Fatalf("attach error = %T (%v), want CompatibilityError", err, err)
	}
	if ce.Integrator != hpmc.KindSphere {
		t.Errorf("Integrator = %v, want sphere", ce.Integrator)
	}
}

func TestCallback_NilCallback(t *testing.T) {
	if _, err := NewCallback(nil, 1.0); !errors.Is(err, &ConfigurationError{}) {
		t.Errorf("NewCallback(nil) error = %v, want ConfigurationError", err)
	}
}

func TestCallback_SetParamsValidation(t *testing.T) {
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	if err := move.SetParams("", []float64{1.0}); !errors.Is(err, &ValidationError{}) {
		t.Errorf("empty type error = %v, want ValidationError", err)
	}
	if err := move.SetParams("A", nil); !errors.Is(err, &ValidationError{}) {
		t.Errorf("empty vector error = %v, want ValidationError", err)
	}
}

func TestCallback_SetParamsWhileAttached(t *testing.T) {
	sys, mc := newAttachedIntegrator(t, hpmc.KindConvexPolyhedron, "A")
	move, err := NewCallback(cubeEdgeCallback(), 1.0)
	if err != nil {
		t.Fatalf("NewCallback failed: %v", err)
	}
	move.StepSize = 1e-9
	if err := move.SetParams("A", []float64{1.0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	mv, err := move.Attach(sys, mc)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if err := move.SetParams("A", []float64{2.5}); err != nil {
		t.Fatalf("SetParams while attached failed: %v", err)
	}

	rng := rand.New(rand.NewSource(3))
	shape, err := mv.Propose(rng, "A", hpmc.Cube(2.5), 0)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	edge := shape.Vertices[7][0] * 2
	if math.Abs(edge-2.5) > 1e-6 {
		t.Errorf("proposal built from edge %f, want near updated 2.5", edge)
	}
}
