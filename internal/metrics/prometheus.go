package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports sweep counters as prometheus collectors. The
// server mounts the matching registry on /metrics.
type PrometheusRecorder struct {
	attempts *prometheus.CounterVec
	energy   *prometheus.GaugeVec
	sweeps   prometheus.Histogram
}

// NewPrometheusRecorder registers the shapemc collectors with reg. A nil
// registerer falls back to the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapemc",
			Name:      "move_attempts_total",
			Help:      "Shape move proposals by particle type and outcome.",
		}, []string{"type", "result"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shapemc",
			Name:      "shape_energy",
			Help:      "Shape energy of each particle type after its last attempt.",
		}, []string{"type"}),
		sweeps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shapemc",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of completed shape update sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{r.attempts, r.energy, r.sweeps} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// RecordAttempt implements Recorder.
func (r *PrometheusRecorder) RecordAttempt(typeName string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	r.attempts.WithLabelValues(typeName, result).Inc()
}

// RecordEnergy implements Recorder.
func (r *PrometheusRecorder) RecordEnergy(typeName string, energy float64) {
	r.energy.WithLabelValues(typeName).Set(energy)
}

// RecordSweep implements Recorder.
func (r *PrometheusRecorder) RecordSweep(duration time.Duration) {
	r.sweeps.Observe(duration.Seconds())
}
