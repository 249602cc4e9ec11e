// Package server runs optimize and grid jobs behind an HTTP API and
// streams their progress over server-sent events.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/invsizer/internal/config"
	"github.com/cwbudde/invsizer/internal/search"
	"github.com/cwbudde/invsizer/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the state is final.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobRequest selects the job kind and overrides the server configuration.
// Zero values keep the configured setting.
type JobRequest struct {
	// Kind is store.KindOptimize or store.KindGrid.
	Kind string `json:"kind"`

	Algorithm      string `json:"algorithm,omitempty"`
	Runs           int    `json:"runs,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
	MaxEvaluations int    `json:"maxEvaluations,omitempty"`

	Steps   *search.Steps `json:"steps,omitempty"`
	Workers int           `json:"workers,omitempty"`

	// Simulate evaluates through the SPICE simulator. Grid jobs default to
	// the simulator, optimize jobs to the analytical model.
	Simulate *bool `json:"simulate,omitempty"`
}

// Apply returns a validated copy of base with the request's overrides.
func (r JobRequest) Apply(base *config.Config) (*config.Config, error) {
	if r.Kind != store.KindOptimize && r.Kind != store.KindGrid {
		return nil, fmt.Errorf("kind must be %q or %q, got %q", store.KindOptimize, store.KindGrid, r.Kind)
	}

	cfg := *base
	if r.Algorithm != "" {
		cfg.Optimizer.Algorithm = r.Algorithm
	}
	if r.Runs > 0 {
		cfg.Optimizer.Runs = r.Runs
	}
	if r.Seed != nil {
		cfg.Optimizer.Seed = *r.Seed
	}
	if r.MaxEvaluations > 0 {
		cfg.Optimizer.MaxEvaluations = r.MaxEvaluations
	}
	if r.Steps != nil {
		cfg.Grid.Steps = *r.Steps
	}
	if r.Workers > 0 {
		cfg.Grid.Workers = r.Workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UseSimulator resolves the Simulate default for the request's kind.
func (r JobRequest) UseSimulator() bool {
	if r.Simulate != nil {
		return *r.Simulate
	}
	return r.Kind == store.KindGrid
}

// Job represents a sizing job
type Job struct {
	ID      string     `json:"id"`
	State   JobState   `json:"state"`
	Request JobRequest `json:"request"`

	// Evaluations counts scored candidates so far.
	Evaluations int               `json:"evaluations"`
	Best        *search.Candidate `json:"best,omitempty"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	// RunID is set once the run record has been saved.
	RunID string `json:"runId,omitempty"`

	cancel context.CancelFunc
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for req.
func (jm *JobManager) CreateJob(req JobRequest) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		State:     StatePending,
		Request:   req,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return job.snapshot()
}

// GetJob returns a copy of the job.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.snapshot(), true
}

// ListJobs returns copies of all jobs, oldest first.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// CancelJob stops a pending or running job. It reports false for unknown
// or finished jobs.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Done() || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, job.snapshot())
		}
	}
	return running
}

func (j *Job) snapshot() Job {
	c := *j
	c.cancel = nil
	if j.Best != nil {
		best := *j.Best
		c.Best = &best
	}
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return c
}
