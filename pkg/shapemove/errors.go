package shapemove

import (
	"fmt"
	"strings"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// ValidationError reports a single malformed configuration value, such as a
// probability outside [0, 1] or a non-isotropic ellipsoid reference.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ConfigurationError reports a configuration that is well formed value by
// value but incomplete or inconsistent for the requested operation, such as
// a missing per-type entry at attach time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Field + " " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// CompatibilityError reports a move applied to an integrator whose shape
// family is outside the move's capability set.
type CompatibilityError struct {
	Move       MoveKind
	Integrator hpmc.Kind
	Supported  []hpmc.Kind
}

func (e *CompatibilityError) Error() string {
	names := make([]string, len(e.Supported))
	for i, k := range e.Supported {
		names[i] = string(k)
	}
	return fmt.Sprintf("compatibility error: %s move does not support %s integrators (supported: %s)",
		e.Move, e.Integrator, strings.Join(names, ", "))
}

func (e *CompatibilityError) Is(target error) bool {
	_, ok := target.(*CompatibilityError)
	return ok
}

// NotReadyError reports an operation that is legal for the object but not in
// its current lifecycle state, such as reading tunable parameters before the
// move has run.
type NotReadyError struct {
	Op     string
	Reason string
}

func (e *NotReadyError) Error() string {
	return "not ready: " + e.Op + ": " + e.Reason
}

func (e *NotReadyError) Is(target error) bool {
	_, ok := target.(*NotReadyError)
	return ok
}
