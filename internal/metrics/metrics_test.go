package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarRecorder_Counts(t *testing.T) {
	rec := NewExpvarRecorder("")

	rec.RecordAttempt("A", true)
	rec.RecordAttempt("A", true)
	rec.RecordAttempt("A", false)
	rec.RecordAttempt("B", false)
	rec.RecordEnergy("A", 1.25)
	rec.RecordSweep(20 * time.Millisecond)
	rec.RecordSweep(30 * time.Millisecond)

	snap := rec.Snapshot()
	if got := snap.Moves["A"]; got.Accepted != 2 || got.Rejected != 1 {
		t.Errorf("type A counts = %+v, want 2 accepted / 1 rejected", got)
	}
	if got := snap.Moves["B"]; got.Accepted != 0 || got.Rejected != 1 {
		t.Errorf("type B counts = %+v, want 0 accepted / 1 rejected", got)
	}
	if snap.LastEnergy["A"] != 1.25 {
		t.Errorf("last energy = %v, want 1.25", snap.LastEnergy["A"])
	}
	if snap.SweepCount != 2 {
		t.Errorf("sweep count = %d, want 2", snap.SweepCount)
	}
	if snap.SweepTotalMS < 49.9 || snap.SweepTotalMS > 50.1 {
		t.Errorf("sweep total = %v ms, want 50", snap.SweepTotalMS)
	}
	if snap.RecordedAt.IsZero() {
		t.Error("snapshot timestamp is zero")
	}
}

func TestExpvarRecorder_SnapshotIsolated(t *testing.T) {
	rec := NewExpvarRecorder("")
	rec.RecordAttempt("A", true)

	snap := rec.Snapshot()
	snap.Moves["A"] = MoveCounts{Accepted: 99}

	if got := rec.Snapshot().Moves["A"].Accepted; got != 1 {
		t.Errorf("accepted = %d after mutating snapshot, want 1", got)
	}
}

func TestExpvarRecorder_GeneratedNamesAreUnique(t *testing.T) {
	a := NewExpvarRecorder("")
	b := NewExpvarRecorder("")
	if a.Name() == b.Name() {
		t.Errorf("both recorders published as %q", a.Name())
	}
}

func TestExpvarRecorder_IgnoresEmptyType(t *testing.T) {
	rec := NewExpvarRecorder("")
	rec.RecordAttempt("", true)
	rec.RecordEnergy("", 2.0)

	snap := rec.Snapshot()
	if len(snap.Moves) != 0 || len(snap.LastEnergy) != 0 {
		t.Errorf("empty type was recorded: %+v", snap)
	}
}

func TestNopRecorder(t *testing.T) {
	rec := Nop()
	rec.RecordAttempt("A", true)
	rec.RecordEnergy("A", 0.5)
	rec.RecordSweep(time.Second)
}

func TestPrometheusRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusRecorder failed: %v", err)
	}

	rec.RecordAttempt("A", true)
	rec.RecordAttempt("A", false)
	rec.RecordAttempt("A", false)
	rec.RecordEnergy("A", 3.5)
	rec.RecordSweep(15 * time.Millisecond)

	if got := testutil.ToFloat64(rec.attempts.WithLabelValues("A", "accepted")); got != 1 {
		t.Errorf("accepted counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.attempts.WithLabelValues("A", "rejected")); got != 2 {
		t.Errorf("rejected counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.energy.WithLabelValues("A")); got != 3.5 {
		t.Errorf("energy gauge = %v, want 3.5", got)
	}
}

func TestPrometheusRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusRecorder(reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Error("expected error registering collectors twice on one registry")
	}
}
