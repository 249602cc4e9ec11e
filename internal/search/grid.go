package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/metrics"
	"github.com/cwbudde/invsizer/internal/objective"
)

// Steps is the lattice resolution along Wn and Wp.
type Steps struct {
	Wn int `json:"wn" yaml:"wn"`
	Wp int `json:"wp" yaml:"wp"`
}

// Points returns the number of lattice points, which is also the worst-case
// number of evaluator calls.
func (s Steps) Points() int {
	return s.Wn * s.Wp
}

// Lattice returns the grid points in iteration order: Wn outer, Wp inner.
// Each axis spans its bounds inclusively; a single step sits on the lower
// bound. L is held at bounds.Lower.L.
func Lattice(bounds cell.Bounds, steps Steps) ([]cell.Sizing, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if steps.Wn < 1 || steps.Wp < 1 {
		return nil, &cell.ValidationError{
			Field:  "grid.steps",
			Reason: fmt.Sprintf("must be at least 1x1, got %dx%d", steps.Wn, steps.Wp),
		}
	}

	wn := axis(bounds.Lower.Wn, bounds.Upper.Wn, steps.Wn)
	wp := axis(bounds.Lower.Wp, bounds.Upper.Wp, steps.Wp)

	points := make([]cell.Sizing, 0, steps.Points())
	for _, n := range wn {
		for _, p := range wp {
			points = append(points, cell.Sizing{Wn: n, Wp: p, L: bounds.Lower.L})
		}
	}
	return points, nil
}

func axis(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	v[n-1] = hi
	return v
}

// GridOptions controls failure handling and pooling.
type GridOptions struct {
	// Workers > 1 evaluates points concurrently. The evaluator must then
	// isolate its invocations (spice.Runner does).
	Workers int

	// AbortOnError stops at the first failed evaluation. By default failed
	// points are logged, recorded and skipped.
	AbortOnError bool

	// KeepTrace retains every scored candidate in the report.
	KeepTrace bool

	// OnPoint, if set, is called after each lattice point, in completion
	// order. Calls are serialized.
	OnPoint func(p PointOutcome)
}

// PointOutcome is what happened at one lattice point.
type PointOutcome struct {
	Index     int
	Sizing    cell.Sizing
	Candidate *Candidate
	// Skipped is set for points that failed the feasibility check.
	Skipped bool
	Err     error
}

// GridFailure records a failed lattice point.
type GridFailure struct {
	Sizing cell.Sizing `json:"sizing"`
	Error  string      `json:"error"`
}

// GridReport is the result of Grid.Search.
type GridReport struct {
	Best Candidate `json:"best"`
	// Found is false when no point could be scored feasibly.
	Found bool `json:"found"`

	// Planned is the lattice size; Feasible the points that pass the
	// feasibility check and are sent to the evaluator.
	Planned  int `json:"planned"`
	Feasible int `json:"feasible"`

	// Evaluated counts evaluator invocations actually made, Skipped the
	// infeasible points, Failures the invocations that errored.
	Evaluated int           `json:"evaluated"`
	Skipped   int           `json:"skipped"`
	Failures  []GridFailure `json:"failures,omitempty"`

	Trace   []Candidate   `json:"trace,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Grid is an exhaustive search over a Wn×Wp lattice.
type Grid struct {
	Composer  *objective.Composer
	Evaluator cell.Evaluator
	Options   GridOptions
}

// Search evaluates every feasible lattice point and returns the one with
// the lowest objective. Ties go to the point that comes first in lattice
// order, independent of Workers.
func (g *Grid) Search(ctx context.Context, bounds cell.Bounds, steps Steps) (*GridReport, error) {
	points, err := Lattice(bounds, steps)
	if err != nil {
		return nil, err
	}
	composer := *g.Composer
	composer.Bounds = bounds
	if err := composer.Validate(); err != nil {
		return nil, err
	}

	report := &GridReport{Planned: len(points)}
	outcomes := make([]PointOutcome, len(points))
	todo := make([]int, 0, len(points))
	for i, s := range points {
		outcomes[i] = PointOutcome{Index: i, Sizing: s}
		if err := composer.Check(s); err != nil {
			outcomes[i].Skipped = true
			slog.Warn("Skipping infeasible grid point", "sizing", s.String(), "reason", err)
			continue
		}
		todo = append(todo, i)
	}
	report.Feasible = len(todo)

	slog.Info("Starting grid search",
		"steps_wn", steps.Wn,
		"steps_wp", steps.Wp,
		"planned", report.Planned,
		"to_evaluate", report.Feasible,
		"workers", max(1, g.Options.Workers),
	)
	started := time.Now()

	var mu sync.Mutex
	notify := func(o PointOutcome) {
		if g.Options.OnPoint == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		g.Options.OnPoint(o)
	}
	for i := range outcomes {
		if outcomes[i].Skipped {
			notify(outcomes[i])
		}
	}

	evalPoint := func(ctx context.Context, i int) error {
		o := &outcomes[i]
		metrics.Evaluations.WithLabelValues("grid").Inc()
		e, err := composer.Evaluate(ctx, g.Evaluator, o.Sizing)
		if err != nil {
			o.Err = err
			notify(*o)
			return err
		}
		c := NewCandidate(o.Sizing, e)
		o.Candidate = &c
		o.Skipped = !c.Feasible
		notify(*o)
		return nil
	}

	var runErr error
	if g.Options.Workers > 1 {
		p := pool.New().WithContext(ctx).WithMaxGoroutines(g.Options.Workers)
		if g.Options.AbortOnError {
			p = p.WithCancelOnError().WithFirstError()
		}
		for _, i := range todo {
			p.Go(func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return nil
				}
				if err := evalPoint(ctx, i); err != nil && g.Options.AbortOnError {
					return err
				}
				return nil
			})
		}
		runErr = p.Wait()
	} else {
		for _, i := range todo {
			if err := ctx.Err(); err != nil {
				break
			}
			if err := evalPoint(ctx, i); err != nil && g.Options.AbortOnError {
				runErr = err
				break
			}
		}
	}

	// Select in lattice order so the result does not depend on scheduling.
	var best *Candidate
	for i := range outcomes {
		o := outcomes[i]
		switch {
		case o.Err != nil:
			report.Evaluated++
			report.Failures = append(report.Failures, GridFailure{Sizing: o.Sizing, Error: o.Err.Error()})
			if !errors.Is(o.Err, context.Canceled) {
				slog.Warn("Grid point failed", "sizing", o.Sizing.String(), "error", o.Err)
			}
		case o.Candidate != nil:
			report.Evaluated++
			if o.Skipped {
				report.Skipped++
			}
			if g.Options.KeepTrace {
				report.Trace = append(report.Trace, *o.Candidate)
			}
			if o.Candidate.Feasible && o.Candidate.better(best) {
				best = o.Candidate
			}
		case o.Skipped:
			report.Skipped++
		}
	}
	report.Elapsed = time.Since(started)

	if best != nil {
		report.Best = *best
		report.Found = true
		metrics.BestObjective.WithLabelValues("grid").Set(best.Objective)
	}

	slog.Info("Grid search complete",
		"planned", report.Planned,
		"evaluated", report.Evaluated,
		"skipped", report.Skipped,
		"failed", len(report.Failures),
		"found", report.Found,
		"elapsed", report.Elapsed,
	)

	if runErr != nil {
		return report, fmt.Errorf("grid search aborted: %w", runErr)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
