package opt

import (
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

// NelderMead is a gradient-free local search. Each run starts from a point
// drawn from the problem's seed, so independent runs act as a multi-start.
type NelderMead struct {
	convergence ConvergenceConfig
}

// NewNelderMead creates a Nelder-Mead optimizer.
func NewNelderMead(convergence ConvergenceConfig) *NelderMead {
	return &NelderMead{convergence: convergence}
}

// Minimize implements Optimizer.
func (n *NelderMead) Minimize(p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	dim := len(p.Lower)
	// one generation = one simplex worth of evaluations
	b := newBudgeted(p, dim+1, n.convergence)

	rng := rand.New(rand.NewSource(p.Seed))
	u0 := make([]float64, dim)
	for i := range u0 {
		u0[i] = rng.Float64()
	}

	settings := &optimize.Settings{
		FuncEvaluations: p.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
	}
	method := &optimize.NelderMead{SimplexSize: 0.25}

	res, err := optimize.Minimize(optimize.Problem{Func: b.eval}, u0, settings, method)
	if err != nil && b.evals == 0 {
		return Result{}, err
	}
	if err != nil {
		slog.Debug("Nelder-Mead terminated", "error", err, "evaluations", b.evals)
	}

	out := b.result()
	if res != nil && res.Status == optimize.FunctionConvergence {
		out.Converged = true
	}
	return out, nil
}
