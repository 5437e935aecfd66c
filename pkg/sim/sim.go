package sim

import "fmt"

// SystemDefinition describes the simulated system as seen by operations that
// attach to it: the particle type names and the current timestep.
type SystemDefinition struct {
	types []string
	index map[string]int
	step  uint64
}

// NewSystemDefinition creates a system with the given particle type names.
// At least one type is required and names must be unique.
func NewSystemDefinition(types []string) (*SystemDefinition, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("system requires at least one particle type")
	}
	index := make(map[string]int, len(types))
	for i, name := range types {
		if name == "" {
			return nil, fmt.Errorf("particle type name cannot be empty")
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate particle type %q", name)
		}
		index[name] = i
	}
	return &SystemDefinition{
		types: append([]string{}, types...),
		index: index,
	}, nil
}

// ParticleTypes returns the particle type names in declaration order.
func (s *SystemDefinition) ParticleTypes() []string {
	return append([]string{}, s.types...)
}

// HasType reports whether the system declares the given particle type.
func (s *SystemDefinition) HasType(name string) bool {
	_, ok := s.index[name]
	return ok
}

// TypeIndex returns the declaration index of the given particle type,
// or -1 if the type is unknown.
func (s *SystemDefinition) TypeIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// NumTypes returns the number of declared particle types.
func (s *SystemDefinition) NumTypes() int {
	return len(s.types)
}

// Step returns the current timestep.
func (s *SystemDefinition) Step() uint64 {
	return s.step
}

// Advance moves the timestep forward by n.
func (s *SystemDefinition) Advance(n uint64) {
	s.step += n
}

// SetStep sets the timestep, used when restoring from a checkpoint.
func (s *SystemDefinition) SetStep(step uint64) {
	s.step = step
}

// Integrator is the contract every integrator operation satisfies.
// Concrete integrators live in their own packages; this interface is what
// other operations hold when they need to cooperate with one.
type Integrator interface {
	// Name identifies the integrator implementation.
	Name() string

	// Attached reports whether the integrator is bound to a system.
	Attached() bool
}
