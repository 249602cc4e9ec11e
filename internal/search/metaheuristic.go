package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/metrics"
	"github.com/cwbudde/invsizer/internal/objective"
	"github.com/cwbudde/invsizer/internal/opt"
)

// Budget bounds a metaheuristic optimization.
type Budget struct {
	// MaxEvaluations caps objective calls per run.
	MaxEvaluations int `json:"maxEvaluations" yaml:"maxEvaluations"`

	// Runs is the number of independent runs; the best one is reported.
	Runs int `json:"runs" yaml:"runs"`

	// Seed of the first run. Run i uses Seed+i.
	Seed int64 `json:"seed" yaml:"seed"`
}

// Validate checks the budget.
func (b Budget) Validate() error {
	if b.MaxEvaluations <= 0 {
		return &cell.ValidationError{Field: "optimizer.maxEvaluations", Reason: "must be positive"}
	}
	if b.Runs <= 0 {
		return &cell.ValidationError{Field: "optimizer.runs", Reason: "must be positive"}
	}
	return nil
}

// RunSummary describes one independent run.
type RunSummary struct {
	Run         int       `json:"run"`
	Seed        int64     `json:"seed"`
	Best        Candidate `json:"best"`
	Evaluations int       `json:"evaluations"`
	Converged   bool      `json:"converged"`
}

// Outcome is the result of Metaheuristic.Optimize.
type Outcome struct {
	Best  Candidate    `json:"best"`
	Start *Candidate   `json:"start,omitempty"`
	Runs  []RunSummary `json:"runs"`

	// Evaluations counts objective calls over all runs, including the start point.
	Evaluations int `json:"evaluations"`

	// Converged is the convergence flag of the run that produced Best.
	// False means the budget ran out first; Best is still the best seen.
	Converged bool `json:"converged"`

	Elapsed time.Duration `json:"elapsed"`
}

// Metaheuristic adapts the objective to a black-box Optimizer.
type Metaheuristic struct {
	Composer  *objective.Composer
	Evaluator cell.Evaluator
	Optimizer opt.Optimizer

	// Start, if set, is scored before the first run and competes with the
	// runs' results, so the outcome is never worse than it.
	Start *cell.Sizing

	// OnCandidate, if set, sees every scored candidate.
	OnCandidate func(run int, c Candidate)
}

// Optimize searches bounds for the sizing with the lowest objective.
//
// A dimension whose lower and upper bound coincide is held fixed; the
// optimizer only sees the free ones. Infeasible points score the
// composer's penalty. Any other evaluator failure aborts the search and
// is returned together with the sizing that caused it.
func (m *Metaheuristic) Optimize(ctx context.Context, bounds cell.Bounds, budget Budget) (*Outcome, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	composer := *m.Composer
	composer.Bounds = bounds
	if err := composer.Validate(); err != nil {
		return nil, err
	}

	sp := newSpace(bounds)
	started := time.Now()
	out := &Outcome{}
	var best *Candidate

	slog.Info("Starting metaheuristic optimization",
		"free_dims", len(sp.free),
		"runs", budget.Runs,
		"max_evaluations", budget.MaxEvaluations,
	)

	if m.Start != nil {
		if err := composer.Check(*m.Start); err != nil {
			return nil, fmt.Errorf("start point rejected: %w", err)
		}
		e, err := composer.Evaluate(ctx, m.Evaluator, *m.Start)
		if err != nil {
			return nil, fmt.Errorf("start point %s: %w", m.Start, err)
		}
		start := NewCandidate(*m.Start, e)
		m.record(-1, start)
		out.Start = &start
		out.Evaluations++
		best = &start
		slog.Info("Start point scored", "sizing", start.Sizing.String(), "objective", start.Objective)
	}

	bestRun := -1
	for run := 0; run < budget.Runs; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		summary, err := m.runOnce(ctx, &composer, sp, run, budget)
		out.Evaluations += summary.Evaluations
		if err != nil {
			return nil, fmt.Errorf("run %d (seed %d): %w", run, summary.Seed, err)
		}
		out.Runs = append(out.Runs, summary)

		slog.Info("Run complete",
			"run", run,
			"seed", summary.Seed,
			"objective", summary.Best.Objective,
			"evaluations", summary.Evaluations,
			"converged", summary.Converged,
		)

		if summary.Best.better(best) {
			c := summary.Best
			best = &c
			bestRun = run
		}
	}

	out.Best = *best
	if bestRun >= 0 {
		out.Converged = out.Runs[bestRun].Converged
	}
	out.Elapsed = time.Since(started)

	if !out.Best.Feasible {
		slog.Warn("No feasible sizing found", "best_objective", out.Best.Objective)
	}
	metrics.BestObjective.WithLabelValues("metaheuristic").Set(out.Best.Objective)

	slog.Info("Metaheuristic optimization complete",
		"sizing", out.Best.Sizing.String(),
		"objective", out.Best.Objective,
		"evaluations", out.Evaluations,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

func (m *Metaheuristic) runOnce(ctx context.Context, composer *objective.Composer, sp space, run int, budget Budget) (RunSummary, error) {
	seed := budget.Seed + int64(run)
	summary := RunSummary{Run: run, Seed: seed}

	var (
		fatal   error
		runBest *Candidate
	)
	objectiveFn := func(x []float64) float64 {
		if fatal != nil {
			return composer.Penalty
		}
		if err := ctx.Err(); err != nil {
			fatal = err
			return composer.Penalty
		}
		s := sp.expand(x)
		metrics.Evaluations.WithLabelValues("metaheuristic").Inc()
		e, err := composer.Evaluate(ctx, m.Evaluator, s)
		if err != nil {
			fatal = fmt.Errorf("evaluating %s: %w", s, err)
			return composer.Penalty
		}
		c := NewCandidate(s, e)
		m.record(run, c)
		if c.better(runBest) {
			runBest = &c
		}
		slog.Debug("Evaluated", "run", run, "sizing", s.String(), "objective", e.Objective)
		return e.Objective
	}

	if len(sp.free) == 0 {
		// nothing to search: score the single point
		objectiveFn(nil)
		summary.Evaluations = 1
		summary.Converged = true
	} else {
		res, err := m.Optimizer.Minimize(opt.Problem{
			Objective:      objectiveFn,
			Lower:          sp.lower,
			Upper:          sp.upper,
			MaxEvaluations: budget.MaxEvaluations,
			Seed:           seed,
		})
		if err != nil {
			return summary, err
		}
		summary.Evaluations = res.Evaluations
		summary.Converged = res.Converged

		// Prefer the optimizer's reported point; fall back to our own
		// incumbent when it re-expands to something we did not score.
		if fatal == nil && len(res.X) == len(sp.free) {
			s := sp.expand(res.X)
			if runBest == nil || s != runBest.Sizing {
				metrics.Evaluations.WithLabelValues("metaheuristic").Inc()
				summary.Evaluations++
				e, err := composer.Evaluate(ctx, m.Evaluator, s)
				if err != nil {
					return summary, fmt.Errorf("re-evaluating %s: %w", s, err)
				}
				c := NewCandidate(s, e)
				m.record(run, c)
				if c.better(runBest) {
					runBest = &c
				}
			}
		}
	}

	if fatal != nil {
		return summary, fatal
	}
	if runBest == nil {
		return summary, fmt.Errorf("optimizer returned without evaluating the objective")
	}
	summary.Best = *runBest
	return summary, nil
}

func (m *Metaheuristic) record(run int, c Candidate) {
	if m.OnCandidate != nil {
		m.OnCandidate(run, c)
	}
}

// space maps between sizings and the optimizer's vector of free dimensions.
type space struct {
	fixed        []float64
	free         []int
	lower, upper []float64
}

func newSpace(b cell.Bounds) space {
	lo, hi := b.Lower.Vector(), b.Upper.Vector()
	sp := space{fixed: lo}
	for i := range lo {
		if hi[i] > lo[i] {
			sp.free = append(sp.free, i)
			sp.lower = append(sp.lower, lo[i])
			sp.upper = append(sp.upper, hi[i])
		}
	}
	return sp
}

func (sp space) expand(x []float64) cell.Sizing {
	v := append([]float64(nil), sp.fixed...)
	for j, i := range sp.free {
		v[i] = x[j]
	}
	return cell.SizingFromVector(v)
}
