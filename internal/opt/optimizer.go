package opt

import "fmt"

// Problem describes a bounded minimization handed to an Optimizer.
type Problem struct {
	// Objective is the function to minimize. It must be safe to call with
	// any vector inside [Lower, Upper].
	Objective func(x []float64) float64

	// Lower and Upper bound each dimension (inclusive). A dimension with
	// Lower == Upper is legal and stays fixed.
	Lower []float64
	Upper []float64

	// MaxEvaluations caps the number of Objective calls.
	MaxEvaluations int

	// Seed drives the optimizer's random source.
	Seed int64
}

// Result is the best point an Optimizer found.
type Result struct {
	X           []float64
	Cost        float64
	Evaluations int
	// Converged is false when the budget ran out before the search
	// stagnated. That is an expected outcome, not an error.
	Converged bool
}

// Optimizer defines a black-box minimizer.
type Optimizer interface {
	// Minimize searches the box for the lowest Objective value.
	// Returns the best point seen, even if the search did not converge.
	Minimize(p Problem) (Result, error)
}

// Validate checks the problem definition.
func (p Problem) Validate() error {
	if p.Objective == nil {
		return fmt.Errorf("objective cannot be nil")
	}
	if len(p.Lower) == 0 {
		return fmt.Errorf("problem must have at least one dimension")
	}
	if len(p.Lower) != len(p.Upper) {
		return fmt.Errorf("bound length mismatch: lower %d, upper %d", len(p.Lower), len(p.Upper))
	}
	for i := range p.Lower {
		if p.Upper[i] < p.Lower[i] {
			return fmt.Errorf("dimension %d: upper bound %g below lower bound %g", i, p.Upper[i], p.Lower[i])
		}
	}
	if p.MaxEvaluations <= 0 {
		return fmt.Errorf("max evaluations must be positive, got %d", p.MaxEvaluations)
	}
	return nil
}
