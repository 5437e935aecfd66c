// Package server exposes shape evolution jobs over an HTTP JSON API with
// server-sent progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cbeckmann/shapemc/internal/metrics"
	"github.com/cbeckmann/shapemc/internal/store"
)

// Server serves the job API, the SSE progress streams, and the prometheus
// metrics of the sweep workers.
type Server struct {
	manager  *JobManager
	store    store.Store
	recorder *metrics.PrometheusRecorder
	registry *prometheus.Registry
	addr     string
	server   *http.Server
}

// NewServer creates a server that persists checkpoints to st. A nil store
// disables checkpointing.
func NewServer(addr string, st store.Store) (*Server, error) {
	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics recorder: %w", err)
	}
	return &Server{
		manager:  NewJobManager(),
		store:    st,
		recorder: recorder,
		registry: registry,
		addr:     addr,
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start begins serving and blocks until the listener fails or the server is
// shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	slog.Info("starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server", "running_jobs", len(s.manager.GetRunningJobs()))
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs serves /api/v1/jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID serves /api/v1/jobs/:id and its subresources.
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	jobID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleJobStatus(w, r, jobID)
		case http.MethodDelete:
			s.handleCancelJob(w, r, jobID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "status":
		s.handleJobStatus(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "checkpoint":
		s.handleJobCheckpoint(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob serves POST /api/v1/jobs.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	req.applyDefaults()
	if err := req.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Reject unbuildable moves before a job record exists.
	if _, err := buildStrategy(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.manager.CreateJob(req.Config)
	ctx, cancel := context.WithCancel(context.Background())
	s.manager.bindCancel(job.ID, cancel)
	go runJob(ctx, s.manager, s.store, s.recorder, job.ID, req)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs serves GET /api/v1/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListJobs())
}

// handleJobStatus serves GET /api/v1/jobs/:id.
func (s *Server) handleJobStatus(w http.ResponseWriter, _ *http.Request, jobID string) {
	job, exists := s.manager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	period := uint64(job.Config.TriggerPeriod)
	var sweepsDone uint64
	if period > 0 {
		sweepsDone = job.Step / period
	}
	var sps float64
	if elapsed.Seconds() > 0 {
		sps = float64(sweepsDone) / elapsed.Seconds()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              job.ID,
		"state":           job.State,
		"config":          job.Config,
		"step":            job.Step,
		"sweepsDone":      sweepsDone,
		"shapes":          job.Shapes,
		"counts":          job.Counts,
		"acceptRate":      overallAcceptance(job.Counts),
		"elapsed":         elapsed.Seconds(),
		"sweepsPerSecond": sps,
		"startTime":       job.StartTime,
		"endTime":         job.EndTime,
		"error":           job.Error,
	})
}

// handleCancelJob serves DELETE /api/v1/jobs/:id.
func (s *Server) handleCancelJob(w http.ResponseWriter, _ *http.Request, jobID string) {
	if _, exists := s.manager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.manager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":    jobID,
		"state": "cancelling",
	})
}

// handleJobCheckpoint serves GET /api/v1/jobs/:id/checkpoint.
func (s *Server) handleJobCheckpoint(w http.ResponseWriter, _ *http.Request, jobID string) {
	if s.store == nil {
		http.Error(w, "Checkpointing is disabled", http.StatusNotFound)
		return
	}
	checkpoint, err := s.store.LoadCheckpoint(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No checkpoint for job", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to load checkpoint: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, checkpoint)
}

// handleHealthz serves GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"runningJobs": len(s.manager.GetRunningJobs()),
	})
}

// corsMiddleware adds permissive CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs every request at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
