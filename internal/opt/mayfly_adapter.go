package opt

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopSize is the smallest population mayfly v0.1.0 accepts.
const MinPopSize = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	popSize     int
	convergence ConvergenceConfig
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(popSize int, convergence ConvergenceConfig) (*MayflyAdapter, error) {
	if popSize < MinPopSize {
		return nil, fmt.Errorf("mayfly population must be at least %d, got %d", MinPopSize, popSize)
	}
	return &MayflyAdapter{
		popSize:     popSize,
		convergence: convergence,
	}, nil
}

// Minimize executes the Mayfly optimization using the external library.
//
// The library takes one scalar bound for every dimension, so the search runs
// in the unit cube and each point is mapped into the problem box before the
// objective sees it.
func (m *MayflyAdapter) Minimize(p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	b := newBudgeted(p, m.popSize, m.convergence)

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = b.eval
	config.ProblemSize = len(p.Lower)
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Males and females are both evaluated each iteration; the cap in
	// budgeted handles the offspring the estimate leaves out.
	config.MaxIterations = max(1, p.MaxEvaluations/(2*m.popSize))

	config.Rand = rand.New(rand.NewSource(p.Seed))

	if _, err := mayfly.Optimize(config); err != nil {
		if b.evals == 0 {
			return Result{}, fmt.Errorf("mayfly optimization failed: %w", err)
		}
		slog.Warn("Mayfly stopped early, keeping best point seen", "error", err, "evaluations", b.evals)
	}

	return b.result(), nil
}
