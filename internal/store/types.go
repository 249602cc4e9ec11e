package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/invsizer/internal/cell"
)

// Run kinds.
const (
	KindOptimize = "optimize"
	KindGrid     = "grid"
)

// RunRecord is the persisted outcome of one optimize or grid invocation.
type RunRecord struct {
	RunID string `json:"runId"`
	Kind  string `json:"kind"`

	// Driver names the search: "mayfly", "nelder-mead" or "grid".
	Driver string `json:"driver"`

	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`

	Bounds cell.Bounds `json:"bounds"`

	// Found is false when no feasible candidate was scored.
	Found     bool        `json:"found"`
	Best      cell.Sizing `json:"best"`
	Result    cell.Result `json:"result"`
	Objective float64     `json:"objective"`

	Evaluations int  `json:"evaluations"`
	Converged   bool `json:"converged,omitempty"`
	Failures    int  `json:"failures,omitempty"`

	// Settings holds the effective driver settings as display strings.
	Settings map[string]string `json:"settings,omitempty"`
}

// RunInfo is the listing view of a RunRecord.
type RunInfo struct {
	RunID     string
	Kind      string
	Driver    string
	Started   time.Time
	Found     bool
	Best      cell.Sizing
	Objective float64
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewRunRecord starts a record with a fresh ID and the current time.
func NewRunRecord(kind, driver string, bounds cell.Bounds) *RunRecord {
	return &RunRecord{
		RunID:   NewRunID(),
		Kind:    kind,
		Driver:  driver,
		Started: time.Now(),
		Bounds:  bounds,
	}
}

// ToInfo converts a record to its listing view.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:     r.RunID,
		Kind:      r.Kind,
		Driver:    r.Driver,
		Started:   r.Started,
		Found:     r.Found,
		Best:      r.Best,
		Objective: r.Objective,
	}
}

// Validate checks the fields a reader relies on.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &cell.ValidationError{Field: "runId", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.RunID); err != nil {
		return &cell.ValidationError{Field: "runId", Reason: "is not a UUID"}
	}
	if r.Kind != KindOptimize && r.Kind != KindGrid {
		return &cell.ValidationError{Field: "kind", Reason: "must be optimize or grid, got " + r.Kind}
	}
	if r.Driver == "" {
		return &cell.ValidationError{Field: "driver", Reason: "cannot be empty"}
	}
	if r.Started.IsZero() {
		return &cell.ValidationError{Field: "started", Reason: "cannot be zero"}
	}
	if r.Evaluations < 0 {
		return &cell.ValidationError{Field: "evaluations", Reason: "cannot be negative"}
	}
	return nil
}
