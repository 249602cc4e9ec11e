// Package search drives the sizing searches: a metaheuristic over the
// analytical objective and an exhaustive grid over a (usually simulated)
// evaluator.
package search

import (
	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/objective"
)

// Candidate is one scored sizing.
type Candidate struct {
	Sizing    cell.Sizing `json:"sizing"`
	Result    cell.Result `json:"result"`
	Objective float64     `json:"objective"`
	Feasible  bool        `json:"feasible"`
	// Reason explains why an infeasible candidate was penalized.
	Reason string `json:"reason,omitempty"`
}

// NewCandidate builds a candidate from an objective evaluation.
func NewCandidate(s cell.Sizing, e objective.Evaluation) Candidate {
	return Candidate{
		Sizing:    s,
		Result:    e.Result,
		Objective: e.Objective,
		Feasible:  e.Feasible,
		Reason:    e.Reason,
	}
}

// better reports whether c beats best. Ties keep best, so the first
// candidate encountered wins.
func (c Candidate) better(best *Candidate) bool {
	if best == nil {
		return true
	}
	if c.Feasible != best.Feasible {
		return c.Feasible
	}
	return c.Objective < best.Objective
}
