package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbudde/portfolioopt/internal/engine"
	"github.com/cwbudde/portfolioopt/internal/problem"
	"github.com/cwbudde/portfolioopt/internal/store"
)

// progressInterval caps how often improvements are pushed to SSE clients.
const progressInterval = 100 * time.Millisecond

// runJob executes a portfolio job. Every improvement of the shared best
// register updates the job, is appended to the trace when resultStore is not
// nil, and is broadcast to stream clients at a throttled rate. On success the
// job's record is saved to resultStore.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	cfg := job.Config
	logger := slog.Default().With("job_id", jobID)
	logger.Info("Starting job", "problem", cfg.Problem, "engine", cfg.Engine, "copies", cfg.Params.PortfolioCopies)

	p, ok := problem.Lookup(cfg.Problem)
	if !ok {
		err := fmt.Errorf("unknown problem: %s", cfg.Problem)
		markJobFailed(jm, jobID, err)
		return err
	}

	eng, err := engine.New(cfg.Engine, cfg.Seed, logger)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	var sink store.TraceSink
	if resultStore != nil {
		sink, err = resultStore.OpenTrace(jobID)
		if err != nil {
			logger.Warn("Trace disabled", "error", err)
			sink = nil
		}
	}

	// Improvements arrive one at a time in order, so seq needs no extra guard.
	limiter := rate.NewLimiter(rate.Every(progressInterval), 1)
	seq := 0
	observe := func(score float64, x []float64) {
		seq++
		now := time.Now()

		jm.UpdateJob(jobID, func(j *Job) {
			j.BestScore = score
			j.BestParams = slices.Clone(x)
			j.Improvements = seq
		})

		if sink != nil {
			if err := sink.Write(store.TraceEntry{Seq: seq, Score: score, Timestamp: now, Params: x}); err != nil {
				logger.Warn("Failed to write trace entry", "seq", seq, "error", err)
			}
		}

		if limiter.Allow() {
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:        jobID,
				State:        StateRunning,
				BestScore:    score,
				Improvements: seq,
				Timestamp:    now,
			})
		}
	}

	outcome, err := p.SolveWithLogger(eng, cfg.Params, cfg.Dim, nil, observe, logger)

	if sink != nil {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("Failed to close trace", "error", cerr)
		}
	}

	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestParams = outcome.Vector
		j.BestScore = outcome.Score
		j.ArchetypeScore = outcome.ArchetypeScore
		j.Evaluations = outcome.Evaluations
		j.Improvements = outcome.Improvements
		j.Summary = outcome.Summary
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	if resultStore != nil {
		cfg.Dim = len(outcome.Vector)
		record := store.NewRecord(jobID, cfg, outcome.Vector, outcome.Score, outcome.ArchetypeScore,
			outcome.Evaluations, outcome.Improvements, outcome.Summary)
		if err := resultStore.SaveRecord(jobID, record); err != nil {
			logger.Error("Failed to save record", "error", err)
		}
	}

	logger.Info("Job completed",
		"elapsed", outcome.Elapsed,
		"archetype_score", outcome.ArchetypeScore,
		"best_score", outcome.Score,
		"evaluations", outcome.Evaluations,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:        jobID,
		State:        StateCompleted,
		BestScore:    outcome.Score,
		Improvements: outcome.Improvements,
		Evaluations:  outcome.Evaluations,
		Timestamp:    endTime,
	})

	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
