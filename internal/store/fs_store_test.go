package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

// createTestCheckpoint creates a checkpoint with test data.
func createTestCheckpoint(jobID string) *Checkpoint {
	return &Checkpoint{
		JobID:          jobID,
		Step:           500,
		Move:           "Vertex",
		IntegratorKind: hpmc.KindConvexPolyhedron,
		Shapes: map[string]hpmc.ShapeParams{
			"A": hpmc.Cube(1.0),
			"B": hpmc.Octahedron(0.8),
		},
		StepSizes: map[string]float64{"A": 0.1, "B": 0.08},
		Timestamp: time.Now(),
		Config: JobConfig{
			ParticleTypes: []string{"A", "B"},
			Integrator:    hpmc.KindConvexPolyhedron,
			Move:          "Vertex",
			Sweeps:        1000,
			KT:            1.0,
			Seed:          42,
		},
	}
}

func TestNewFSStore(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveCheckpoint(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-123"
	checkpoint := createTestCheckpoint(jobID)

	if err := store.SaveCheckpoint(jobID, checkpoint); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "jobs", jobID, "checkpoint.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Checkpoint file was not created at %s", expectedPath)
	}

	// Temp file from the atomic write must not remain.
	tempPath := expectedPath + ".tmp"
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save: %s", tempPath)
	}
}

func TestSaveCheckpoint_EmptyJobID(t *testing.T) {
	store, _ := setupTestStore(t)
	checkpoint := createTestCheckpoint("any-id")

	if err := store.SaveCheckpoint("", checkpoint); err == nil {
		t.Fatal("Expected error for empty jobID")
	}
}

func TestSaveCheckpoint_NilCheckpoint(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveCheckpoint("test-job", nil); err == nil {
		t.Fatal("Expected error for nil checkpoint")
	}
}

func TestSaveCheckpoint_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-overwrite"
	checkpoint1 := createTestCheckpoint(jobID)
	checkpoint1.Step = 100

	checkpoint2 := createTestCheckpoint(jobID)
	checkpoint2.Step = 900

	if err := store.SaveCheckpoint(jobID, checkpoint1); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveCheckpoint(jobID, checkpoint2); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Step != 900 {
		t.Errorf("Expected Step=900, got %d", loaded.Step)
	}
}

func TestLoadCheckpoint(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-load"
	original := createTestCheckpoint(jobID)

	if err := store.SaveCheckpoint(jobID, original); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	if loaded.JobID != original.JobID {
		t.Errorf("JobID mismatch: expected %s, got %s", original.JobID, loaded.JobID)
	}
	if loaded.Step != original.Step {
		t.Errorf("Step mismatch: expected %d, got %d", original.Step, loaded.Step)
	}
	if loaded.IntegratorKind != original.IntegratorKind {
		t.Errorf("IntegratorKind mismatch: expected %s, got %s", original.IntegratorKind, loaded.IntegratorKind)
	}
	if len(loaded.Shapes) != len(original.Shapes) {
		t.Errorf("Shapes count mismatch: expected %d, got %d", len(original.Shapes), len(loaded.Shapes))
	}
	if len(loaded.Shapes["A"].Vertices) != 8 {
		t.Errorf("Shape A vertex count = %d, want 8", len(loaded.Shapes["A"].Vertices))
	}
	if loaded.StepSizes["B"] != original.StepSizes["B"] {
		t.Errorf("StepSizes[B] mismatch: expected %f, got %f", original.StepSizes["B"], loaded.StepSizes["B"])
	}
	if loaded.Config.Move != original.Config.Move {
		t.Errorf("Config.Move mismatch: expected %s, got %s", original.Config.Move, loaded.Config.Move)
	}
}

func TestLoadCheckpoint_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadCheckpoint("nonexistent-job")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got %T: %v", err, err)
	}
}

func TestLoadCheckpoint_EmptyJobID(t *testing.T) {
	store, _ := setupTestStore(t)

	if _, err := store.LoadCheckpoint(""); err == nil {
		t.Fatal("Expected error for empty jobID")
	}
}

func TestLoadCheckpoint_Corrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "corrupt-job"
	jobDir := filepath.Join(tempDir, "jobs", jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		t.Fatalf("Failed to create job directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "checkpoint.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt checkpoint: %v", err)
	}

	if _, err := store.LoadCheckpoint(jobID); err == nil {
		t.Fatal("Expected error for corrupt checkpoint")
	}
}

func TestListCheckpoints_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected empty list, got %d checkpoints", len(infos))
	}
}

func TestListCheckpoints_OrderedByJobID(t *testing.T) {
	store, _ := setupTestStore(t)

	// Insertion order deliberately differs from job-ID order.
	jobs := []string{"job-c", "job-a", "job-b"}
	for _, jobID := range jobs {
		if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
			t.Fatalf("Failed to save checkpoint %s: %v", jobID, err)
		}
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != len(jobs) {
		t.Fatalf("Expected %d checkpoints, got %d", len(jobs), len(infos))
	}

	want := []string{"job-a", "job-b", "job-c"}
	for i, info := range infos {
		if info.JobID != want[i] {
			t.Errorf("infos[%d].JobID = %s, want %s", i, info.JobID, want[i])
		}
	}
}

func TestListCheckpoints_SkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)

	validJobID := "valid-job"
	if err := store.SaveCheckpoint(validJobID, createTestCheckpoint(validJobID)); err != nil {
		t.Fatalf("Failed to save valid checkpoint: %v", err)
	}

	// Directory without checkpoint.json.
	invalidJobDir := filepath.Join(tempDir, "jobs", "invalid-job")
	if err := os.MkdirAll(invalidJobDir, 0755); err != nil {
		t.Fatalf("Failed to create invalid job directory: %v", err)
	}

	// Non-directory entry in the jobs directory.
	dummyFile := filepath.Join(tempDir, "jobs", "dummy.txt")
	if err := os.WriteFile(dummyFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create dummy file: %v", err)
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("Expected 1 checkpoint, got %d", len(infos))
	}
	if len(infos) > 0 && infos[0].JobID != validJobID {
		t.Errorf("Expected jobID %s, got %s", validJobID, infos[0].JobID)
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-delete"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	if err := store.DeleteCheckpoint(jobID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}

	_, err := store.LoadCheckpoint(jobID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError after delete, got %T: %v", err, err)
	}
}

func TestDeleteCheckpoint_RemovesTrace(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-trace"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	tw, err := NewTraceWriter(tempDir, jobID, false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	if err := tw.Write(TraceEntry{Step: 1, TypeName: "A", Accepted: true, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Trace write failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Trace close failed: %v", err)
	}

	if err := store.DeleteCheckpoint(jobID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}

	tracePath := filepath.Join(tempDir, "jobs", jobID, "trace.jsonl")
	if _, err := os.Stat(tracePath); !os.IsNotExist(err) {
		t.Errorf("Trace file should be gone after delete: %s", tracePath)
	}
}

func TestDeleteCheckpoint_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.DeleteCheckpoint("nonexistent-job")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got %T: %v", err, err)
	}
}

func TestDeleteCheckpoint_EmptyJobID(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.DeleteCheckpoint(""); err == nil {
		t.Fatal("Expected error for empty jobID")
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const numJobs = 10
	done := make(chan bool, numJobs)

	for i := 0; i < numJobs; i++ {
		go func(idx int) {
			jobID := fmt.Sprintf("concurrent-job-%d", idx)
			if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
				t.Errorf("Concurrent save failed for job %s: %v", jobID, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < numJobs; i++ {
		<-done
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != numJobs {
		t.Errorf("Expected %d checkpoints, got %d", numJobs, len(infos))
	}
}
