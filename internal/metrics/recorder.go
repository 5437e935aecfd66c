// Package metrics aggregates counters for shape-move sweeps. Recorders are
// optional everywhere they are accepted; callers that do not care pass Nop().
package metrics

import "time"

// Recorder receives per-attempt and per-sweep observations from the shape
// updater. Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordAttempt counts one proposal outcome for a particle type.
	RecordAttempt(typeName string, accepted bool)
	// RecordEnergy reports the shape energy of a type after an attempt.
	RecordEnergy(typeName string, energy float64)
	// RecordSweep reports the wall time of one completed update sweep.
	RecordSweep(duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(string, bool)   {}
func (nopRecorder) RecordEnergy(string, float64) {}
func (nopRecorder) RecordSweep(time.Duration)    {}

// Nop returns a recorder that discards all observations.
func Nop() Recorder {
	return nopRecorder{}
}
