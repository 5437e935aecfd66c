package metrics

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarRecorder publishes sweep counters via expvar for deployments that
// prefer process-local metrics without an external scrape target. Attempt
// counts are kept per particle type, sweep time as a running total.
type ExpvarRecorder struct {
	name  string
	mu    sync.Mutex
	moves map[string]*MoveCounts
	last  map[string]float64
	sweep struct {
		count   int64
		totalMS float64
	}
}

// MoveCounts holds accepted and rejected proposal totals for one type.
type MoveCounts struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// ExpvarSnapshot is the read-only view exported under the expvar name.
type ExpvarSnapshot struct {
	Moves        map[string]MoveCounts `json:"moves_total"`
	LastEnergy   map[string]float64    `json:"last_energy"`
	SweepCount   int64                 `json:"sweeps_total"`
	SweepTotalMS float64               `json:"sweep_ms_total"`
	RecordedAt   time.Time             `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is
// generated.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("shapemc_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:  name,
		moves: make(map[string]*MoveCounts),
		last:  make(map[string]float64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated counters.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	moves := make(map[string]MoveCounts, len(r.moves))
	for typeName, counts := range r.moves {
		moves[typeName] = *counts
	}
	last := make(map[string]float64, len(r.last))
	for typeName, energy := range r.last {
		last[typeName] = energy
	}

	return ExpvarSnapshot{
		Moves:        moves,
		LastEnergy:   last,
		SweepCount:   r.sweep.count,
		SweepTotalMS: r.sweep.totalMS,
		RecordedAt:   time.Now().UTC(),
	}
}

// RecordAttempt implements Recorder.
func (r *ExpvarRecorder) RecordAttempt(typeName string, accepted bool) {
	if typeName == "" {
		return
	}
	r.mu.Lock()
	counts, ok := r.moves[typeName]
	if !ok {
		counts = &MoveCounts{}
		r.moves[typeName] = counts
	}
	if accepted {
		counts.Accepted++
	} else {
		counts.Rejected++
	}
	r.mu.Unlock()
}

// RecordEnergy implements Recorder.
func (r *ExpvarRecorder) RecordEnergy(typeName string, energy float64) {
	if typeName == "" {
		return
	}
	r.mu.Lock()
	r.last[typeName] = energy
	r.mu.Unlock()
}

// RecordSweep implements Recorder.
func (r *ExpvarRecorder) RecordSweep(duration time.Duration) {
	r.mu.Lock()
	r.sweep.count++
	r.sweep.totalMS += float64(duration) / float64(time.Millisecond)
	r.mu.Unlock()
}
