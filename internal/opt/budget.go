package opt

import "math"

// budgeted runs optimizers in the unit cube. It maps normalized points back
// into the problem box, enforces the evaluation cap and remembers the best
// point seen, so the reported result never depends on how a library
// tracks its own incumbent.
type budgeted struct {
	p     Problem
	evals int

	bestX    []float64
	bestCost float64

	generation int
	tracker    *ConvergenceTracker
	converged  bool
}

func newBudgeted(p Problem, generation int, conv ConvergenceConfig) *budgeted {
	if generation < 1 {
		generation = 1
	}
	return &budgeted{
		p:          p,
		bestCost:   math.Inf(1),
		generation: generation,
		tracker:    NewConvergenceTracker(conv),
	}
}

// denormalize maps u in [0,1]^n (clamped) into the problem box.
func (b *budgeted) denormalize(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		v = math.Max(0, math.Min(1, v))
		x[i] = b.p.Lower[i] + v*(b.p.Upper[i]-b.p.Lower[i])
	}
	return x
}

func (b *budgeted) exhausted() bool {
	return b.evals >= b.p.MaxEvaluations
}

// eval is the normalized objective given to the wrapped library.
// Calls past the cap are not forwarded and score just above the incumbent.
func (b *budgeted) eval(u []float64) float64 {
	if b.exhausted() {
		return b.overBudget()
	}
	x := b.denormalize(u)
	cost := b.p.Objective(x)
	b.evals++

	if cost < b.bestCost {
		b.bestCost = cost
		b.bestX = x
	}
	if b.evals%b.generation == 0 && !b.converged {
		b.converged = b.tracker.Update(b.bestCost)
	}
	return cost
}

func (b *budgeted) overBudget() float64 {
	if math.IsInf(b.bestCost, 1) {
		return math.MaxFloat64
	}
	return b.bestCost + math.Abs(b.bestCost) + 1
}

func (b *budgeted) result() Result {
	return Result{
		X:           append([]float64(nil), b.bestX...),
		Cost:        b.bestCost,
		Evaluations: b.evals,
		Converged:   b.converged,
	}
}
