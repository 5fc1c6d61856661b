package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/portfolioopt/internal/opt"
	"github.com/cwbudde/portfolioopt/internal/problem"
	"github.com/cwbudde/portfolioopt/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// JobRequest is the body of POST /api/v1/jobs. Zero budget fields take the
// stock defaults and missing bounds take the problem's suggested ones.
type JobRequest struct {
	Problem         string   `json:"problem" validate:"required"`
	Dim             int      `json:"dim" validate:"min=0"`
	Engine          string   `json:"engine" validate:"omitempty,oneof=compass mayfly"`
	Seed            int64    `json:"seed"`
	Iter            int      `json:"iter" validate:"min=0"`
	Depth           int      `json:"depth" validate:"min=0"`
	Attc            int      `json:"attc" validate:"min=0"`
	LowerBound      *float64 `json:"lowerBound"`
	UpperBound      *float64 `json:"upperBound"`
	PortfolioCopies int      `json:"portfolioCopies" validate:"min=0"`
}

// ToConfig validates the request and resolves it into a job configuration.
func (r JobRequest) ToConfig() (JobConfig, error) {
	if err := validate.Struct(r); err != nil {
		return JobConfig{}, err
	}

	p, ok := problem.Lookup(r.Problem)
	if !ok {
		return JobConfig{}, fmt.Errorf("unknown problem: %s (available: %s)", r.Problem, strings.Join(problem.Names(), ", "))
	}
	dim, err := p.Dim(r.Dim)
	if err != nil {
		return JobConfig{}, err
	}

	params := opt.DefaultParams()
	params.LowerBound, params.UpperBound = p.LowerBound, p.UpperBound
	if r.Iter > 0 {
		params.Iter = r.Iter
	}
	if r.Depth > 0 {
		params.Depth = r.Depth
	}
	if r.Attc > 0 {
		params.Attc = r.Attc
	}
	if r.PortfolioCopies > 0 {
		params.PortfolioCopies = r.PortfolioCopies
	}
	if r.LowerBound != nil {
		params.LowerBound = *r.LowerBound
	}
	if r.UpperBound != nil {
		params.UpperBound = *r.UpperBound
	}
	if err := params.Validate(); err != nil {
		return JobConfig{}, err
	}

	engineName := r.Engine
	if engineName == "" {
		engineName = "compass"
	}

	return JobConfig{
		Problem: r.Problem,
		Dim:     dim,
		Engine:  engineName,
		Seed:    r.Seed,
		Params:  params,
	}, nil
}

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	addr       string
	server     *http.Server
	metrics    *metrics

	// slots bounds the number of jobs solving at once; nil means unbounded.
	slots *semaphore.Weighted

	// jobCtx is cancelled on shutdown; jobs finishing afterwards are
	// marked cancelled.
	jobCtx    context.Context
	cancelJob context.CancelFunc
	jobs      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMaxJobs limits how many jobs solve concurrently. Further jobs stay
// pending until a slot frees up. n <= 0 means no limit.
func WithMaxJobs(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.slots = semaphore.NewWeighted(int64(n))
		} else {
			s.slots = nil
		}
	}
}

// NewServer creates a new HTTP server. resultStore may be nil, in which case
// records and traces are not persisted.
func NewServer(addr string, resultStore store.Store, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		store:      resultStore,
		addr:       addr,
		metrics:    newMetrics(),
		jobCtx:     ctx,
		cancelJob:  cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/problems", s.handleProblems)
	mux.Handle("/metrics", s.metrics.handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for running jobs. A portfolio
// cannot be interrupted, so jobs run to completion and are then marked
// cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancelJob()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Shutdown deadline reached with jobs still running", "running", len(s.jobManager.GetRunningJobs()))
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// startJob runs the job in the background once a slot is free.
func (s *Server) startJob(jobID string) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer s.recordFinished(jobID)

		if s.slots != nil {
			s.metrics.queued.Inc()
			err := s.slots.Acquire(s.jobCtx, 1)
			s.metrics.queued.Dec()
			if err != nil {
				markJobCancelled(s.jobManager, jobID)
				return
			}
			defer s.slots.Release(1)
		}

		s.metrics.running.Inc()
		defer s.metrics.running.Dec()
		runJob(s.jobCtx, s.jobManager, s.store, jobID)
	}()
}

func (s *Server) recordFinished(jobID string) {
	if job, ok := s.jobManager.GetJob(jobID); ok && job.State.Terminal() {
		s.metrics.finished(job)
	}
}

// handleJobs handles /api/v1/jobs
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

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	case parts[1] == "trace":
		s.handleGetTrace(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	config, err := req.ToConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// JobStatus is the response of GET /api/v1/jobs/:id/status.
type JobStatus struct {
	*Job
	Elapsed        float64 `json:"elapsed"`
	EvalsPerSecond float64 `json:"evalsPerSecond"`
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
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

	status := JobStatus{Job: job, Elapsed: elapsed.Seconds()}
	if elapsed > 0 && job.Evaluations > 0 {
		status.EvalsPerSecond = float64(job.Evaluations) / elapsed.Seconds()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.store == nil {
		http.Error(w, "No result store configured", http.StatusNotFound)
		return
	}

	entries, err := s.store.LoadTrace(jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load trace: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// ProblemInfo describes a registered problem.
type ProblemInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	DefaultDim  int     `json:"defaultDim"`
	Fixed       bool    `json:"fixed"`
	LowerBound  float64 `json:"lowerBound"`
	UpperBound  float64 `json:"upperBound"`
}

// handleProblems handles GET /api/v1/problems
func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := problem.Names()
	infos := make([]ProblemInfo, 0, len(names))
	for _, name := range names {
		p, _ := problem.Lookup(name)
		infos = append(infos, ProblemInfo{
			Name:        p.Name,
			Description: p.Description,
			DefaultDim:  p.DefaultDim,
			Fixed:       p.Fixed,
			LowerBound:  p.LowerBound,
			UpperBound:  p.UpperBound,
		})
	}

	writeJSON(w, http.StatusOK, infos)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
