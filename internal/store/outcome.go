package store

import (
	"github.com/cwbudde/invsizer/internal/search"
)

// SetOutcome copies a metaheuristic outcome into the record.
func (r *RunRecord) SetOutcome(out *search.Outcome) {
	r.Elapsed = out.Elapsed
	r.Found = out.Best.Feasible
	r.Best = out.Best.Sizing
	r.Result = out.Best.Result
	r.Objective = out.Best.Objective
	r.Evaluations = out.Evaluations
	r.Converged = out.Converged
}

// SetGridReport copies a grid report into the record.
func (r *RunRecord) SetGridReport(rep *search.GridReport) {
	r.Elapsed = rep.Elapsed
	r.Found = rep.Found
	r.Evaluations = rep.Evaluated
	r.Failures = len(rep.Failures)
	if rep.Found {
		r.Best = rep.Best.Sizing
		r.Result = rep.Best.Result
		r.Objective = rep.Best.Objective
	}
}

// CandidateEntry converts a scored candidate to a trace entry.
func CandidateEntry(c search.Candidate) TraceEntry {
	res := c.Result
	return TraceEntry{
		Sizing:    c.Sizing,
		Result:    &res,
		Objective: c.Objective,
		Feasible:  c.Feasible,
		Reason:    c.Reason,
	}
}

// PointEntry converts a grid point to a trace entry. Points skipped before
// evaluation produce no entry.
func PointEntry(p search.PointOutcome) (TraceEntry, bool) {
	switch {
	case p.Err != nil:
		return TraceEntry{Sizing: p.Sizing, Error: p.Err.Error()}, true
	case p.Candidate != nil:
		return CandidateEntry(*p.Candidate), true
	default:
		return TraceEntry{}, false
	}
}
