package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/config"
	"github.com/cwbudde/invsizer/internal/metrics"
	"github.com/cwbudde/invsizer/internal/search"
	"github.com/cwbudde/invsizer/internal/store"
)

// progressInterval throttles SSE updates to two per second.
const progressInterval = 500 * time.Millisecond

// runJob executes a sizing job in the background. If st is not nil the run
// record is saved when the job completes.
func runJob(ctx context.Context, jm *JobManager, st store.Store, base *config.Config, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	cfg, err := job.Request.Apply(base)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}

	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	slog.Info("Starting job", "job_id", jobID, "kind", job.Request.Kind, "simulate", job.Request.UseSimulator())

	model, err := cell.NewModel(cfg.Technology)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	ev, err := cfg.NewEvaluator(model, job.Request.UseSimulator())
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	var rec *store.RunRecord
	switch job.Request.Kind {
	case store.KindOptimize:
		rec, err = runOptimizeJob(ctx, jm, cfg, ev, jobID)
	case store.KindGrid:
		rec, err = runGridJob(ctx, jm, cfg, ev, jobID)
	}
	close(progressDone)

	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	rec.Settings["simulate"] = strconv.FormatBool(job.Request.UseSimulator())
	rec.Settings["jobId"] = jobID
	if st != nil {
		if err := st.SaveRun(rec); err != nil {
			markJobFailed(jm, jobID, fmt.Errorf("failed to save run record: %w", err))
			return err
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Evaluations = rec.Evaluations
		if rec.Found {
			best := search.Candidate{
				Sizing:    rec.Best,
				Result:    rec.Result,
				Objective: rec.Objective,
				Feasible:  true,
			}
			j.Best = &best
		}
		if st != nil {
			j.RunID = rec.RunID
		}
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}
	metrics.Jobs.WithLabelValues(string(StateCompleted)).Inc()

	slog.Info("Job completed",
		"job_id", jobID,
		"run_id", rec.RunID,
		"evaluations", rec.Evaluations,
		"found", rec.Found,
		"objective", rec.Objective,
		"elapsed", rec.Elapsed,
	)

	broadcastState(jm, jobID)
	return nil
}

func runOptimizeJob(ctx context.Context, jm *JobManager, cfg *config.Config, ev cell.Evaluator, jobID string) (*store.RunRecord, error) {
	composer, err := cfg.Composer()
	if err != nil {
		return nil, err
	}
	optimizer, err := cfg.NewOptimizer()
	if err != nil {
		return nil, err
	}

	start := cfg.Start
	m := &search.Metaheuristic{
		Composer:  composer,
		Evaluator: ev,
		Optimizer: optimizer,
		Start:     &start,
		OnCandidate: func(run int, c search.Candidate) {
			recordCandidate(jm, jobID, c)
		},
	}

	rec := store.NewRunRecord(store.KindOptimize, cfg.Optimizer.Algorithm, cfg.Bounds)
	rec.Settings = map[string]string{
		"runs":           strconv.Itoa(cfg.Optimizer.Runs),
		"seed":           strconv.FormatInt(cfg.Optimizer.Seed, 10),
		"maxEvaluations": strconv.Itoa(cfg.Optimizer.MaxEvaluations),
	}

	out, err := m.Optimize(ctx, cfg.Bounds, cfg.Budget())
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}
	rec.SetOutcome(out)
	return rec, nil
}

func runGridJob(ctx context.Context, jm *JobManager, cfg *config.Config, ev cell.Evaluator, jobID string) (*store.RunRecord, error) {
	composer, err := cfg.Composer()
	if err != nil {
		return nil, err
	}
	composer.Bounds = cfg.Grid.Bounds

	g := &search.Grid{
		Composer:  composer,
		Evaluator: ev,
		Options: search.GridOptions{
			Workers:      cfg.Grid.Workers,
			AbortOnError: cfg.Grid.AbortOnError,
			OnPoint: func(p search.PointOutcome) {
				if p.Candidate != nil {
					recordCandidate(jm, jobID, *p.Candidate)
				}
			},
		},
	}

	rec := store.NewRunRecord(store.KindGrid, "grid", cfg.Grid.Bounds)
	rec.Settings = map[string]string{
		"stepsWn": strconv.Itoa(cfg.Grid.Steps.Wn),
		"stepsWp": strconv.Itoa(cfg.Grid.Steps.Wp),
		"workers": strconv.Itoa(cfg.Grid.Workers),
	}

	report, err := g.Search(ctx, cfg.Grid.Bounds, cfg.Grid.Steps)
	if err != nil {
		return nil, err
	}
	rec.SetGridReport(report)
	return rec, nil
}

// recordCandidate counts c and keeps it if it is the best feasible one.
func recordCandidate(jm *JobManager, jobID string, c search.Candidate) {
	jm.UpdateJob(jobID, func(j *Job) {
		j.Evaluations++
		if c.Feasible && (j.Best == nil || c.Objective < j.Best.Objective) {
			best := c
			j.Best = &best
		}
	})
}

// monitorProgress periodically broadcasts progress events during a job.
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastState(jm, jobID) {
				return
			}
		}
	}
}

func broadcastState(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(progressOf(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	metrics.Jobs.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	metrics.Jobs.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastState(jm, jobID)
}
