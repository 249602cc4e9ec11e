// Package store persists optimization and grid-search runs on disk.
package store

// Store defines the interface for run persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the record for rec.RunID, replacing any
	// previous record for the same run.
	SaveRun(rec *RunRecord) error

	// LoadRun returns the record for runID or ErrNotFound.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns a summary of every readable run. Corrupted records
	// are logged and skipped.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run directory including its trace.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
