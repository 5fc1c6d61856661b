package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Metrics(t *testing.T) {
	s, h := newTestServer(t)

	createJob(t, s, h, JobRequest{Problem: "l1-2d", Iter: 100, Attc: 2, PortfolioCopies: 2})

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `portfolioopt_jobs_total{state="completed"} 1`)
	assert.Contains(t, body, `portfolioopt_job_duration_seconds_count{engine="compass"} 1`)
	assert.Contains(t, body, "portfolioopt_jobs_running 0")
	assert.Contains(t, body, "portfolioopt_jobs_queued 0")
	assert.NotContains(t, body, "portfolioopt_evaluations_total 0\n")
}

func TestServer_Metrics_FailedJob(t *testing.T) {
	s, h := newTestServer(t)

	cfg := testConfig("l1-2d")
	cfg.Engine = "simplex"
	job := s.jobManager.CreateJob(cfg)
	s.startJob(job.ID)
	s.jobs.Wait()

	body := do(t, h, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `portfolioopt_jobs_total{state="failed"} 1`)
}

func TestServer_MaxJobs_QueuedJobCancelledOnShutdown(t *testing.T) {
	s := NewServer(":0", nil, WithMaxJobs(1))
	require.NotNil(t, s.slots)

	// Hold the only slot so the job stays queued.
	require.NoError(t, s.slots.Acquire(context.Background(), 1))

	job := s.jobManager.CreateJob(testConfig("l1-2d"))
	s.startJob(job.ID)

	got, ok := s.jobManager.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatePending, got.State)

	require.NoError(t, s.Shutdown(context.Background()))

	got, ok = s.jobManager.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, got.State)

	body := do(t, s.Handler(), http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `portfolioopt_jobs_total{state="cancelled"} 1`)
	assert.Contains(t, body, "portfolioopt_jobs_queued 0")
}

func TestServer_MaxJobs_RunsJobsInTurn(t *testing.T) {
	s := NewServer(":0", nil, WithMaxJobs(1))
	h := s.Handler()

	for range 3 {
		w := do(t, h, http.MethodPost, "/api/v1/jobs", JobRequest{Problem: "sphere", Dim: 3, Iter: 100, Attc: 2})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	s.jobs.Wait()

	for _, job := range s.jobManager.ListJobs() {
		assert.Equal(t, StateCompleted, job.State, job.Error)
	}
	body := do(t, h, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `portfolioopt_jobs_total{state="completed"} 3`)
}

func TestWithMaxJobs_Unlimited(t *testing.T) {
	assert.Nil(t, NewServer(":0", nil, WithMaxJobs(0)).slots)
	assert.Nil(t, NewServer(":0", nil).slots)
}
