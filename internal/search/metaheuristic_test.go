package search

import (
	"context"
	"errors"
	"testing"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/objective"
	"github.com/cwbudde/invsizer/internal/opt"
)

var (
	paperBounds = cell.Bounds{
		Lower: cell.Sizing{Wn: 1, Wp: 1, L: 0.35},
		Upper: cell.Sizing{Wn: 10, Wp: 10, L: 1},
	}
	defaultSizing = cell.Sizing{Wn: 2, Wp: 6, L: 0.35}
)

func newModel(t *testing.T) *cell.Model {
	t.Helper()
	m, err := cell.NewModel(cell.AMS035())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newMayfly(t *testing.T) opt.Optimizer {
	t.Helper()
	m, err := opt.NewMayfly(20, opt.DefaultConvergenceConfig())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func defaultObjective(t *testing.T, model *cell.Model) float64 {
	t.Helper()
	c := objective.New(paperBounds)
	e, err := c.Evaluate(context.Background(), model, defaultSizing)
	if err != nil || !e.Feasible {
		t.Fatalf("default sizing not scorable: %v %s", err, e.Reason)
	}
	return e.Objective
}

func TestOptimizeBeatsDefaultSizing(t *testing.T) {
	model := newModel(t)
	ref := defaultObjective(t, model)

	tests := []struct {
		name      string
		optimizer opt.Optimizer
		start     *cell.Sizing
	}{
		{"mayfly with start", newMayfly(t), &defaultSizing},
		{"mayfly without start", newMayfly(t), nil},
		{"nelder-mead with start", opt.NewNelderMead(opt.DefaultConvergenceConfig()), &defaultSizing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Metaheuristic{
				Composer:  objective.New(paperBounds),
				Evaluator: model,
				Optimizer: tt.optimizer,
				Start:     tt.start,
			}
			out, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 2000, Runs: 3, Seed: 42})
			if err != nil {
				t.Fatalf("Optimize failed: %v", err)
			}
			if !out.Best.Feasible {
				t.Fatalf("best candidate infeasible: %s", out.Best.Reason)
			}
			if out.Best.Objective > ref {
				t.Errorf("objective %f worse than default %f", out.Best.Objective, ref)
			}
			if !paperBounds.Contains(out.Best.Sizing) {
				t.Errorf("best sizing %s outside bounds", out.Best.Sizing)
			}
			if len(out.Runs) != 3 {
				t.Errorf("expected 3 run summaries, got %d", len(out.Runs))
			}
			// the reported result must belong to the reported sizing
			again, _ := model.Compute(out.Best.Sizing)
			if again != out.Best.Result {
				t.Errorf("result %+v does not match sizing %s", out.Best.Result, out.Best.Sizing)
			}
		})
	}
}

func TestOptimizeRespectsBudget(t *testing.T) {
	model := newModel(t)
	calls := 0
	counting := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		calls++
		return model.Compute(s)
	})

	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: counting,
		Optimizer: newMayfly(t),
	}
	out, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 200, Runs: 2, Seed: 1})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	for _, r := range out.Runs {
		if r.Evaluations > 200 {
			t.Errorf("run %d used %d evaluations, budget 200", r.Run, r.Evaluations)
		}
		if r.Seed != int64(1+r.Run) {
			t.Errorf("run %d seed = %d", r.Run, r.Seed)
		}
	}
	// infeasible points never reach the evaluator, so calls <= evaluations
	if calls > out.Evaluations {
		t.Errorf("evaluator called %d times for %d objective evaluations", calls, out.Evaluations)
	}
}

func TestOptimizeHoldsFixedLength(t *testing.T) {
	bounds := paperBounds
	bounds.Upper.L = bounds.Lower.L

	seen := map[float64]bool{}
	d := &Metaheuristic{
		Composer:  objective.New(bounds),
		Evaluator: newModel(t),
		Optimizer: newMayfly(t),
		OnCandidate: func(run int, c Candidate) {
			seen[c.Sizing.L] = true
		},
	}
	out, err := d.Optimize(context.Background(), bounds, Budget{MaxEvaluations: 500, Runs: 1, Seed: 5})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if out.Best.Sizing.L != 0.35 {
		t.Errorf("L = %f, want fixed 0.35", out.Best.Sizing.L)
	}
	if len(seen) != 1 || !seen[0.35] {
		t.Errorf("L varied during search: %v", seen)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	run := func() *Outcome {
		d := &Metaheuristic{
			Composer:  objective.New(paperBounds),
			Evaluator: newModel(t),
			Optimizer: newMayfly(t),
		}
		out, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 600, Runs: 2, Seed: 9})
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	a, b := run(), run()
	if a.Best != b.Best {
		t.Errorf("same seed gave different results: %+v vs %+v", a.Best, b.Best)
	}
}

func TestOptimizeRejectsBadStart(t *testing.T) {
	outside := cell.Sizing{Wn: 20, Wp: 6, L: 0.35}
	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: newModel(t),
		Optimizer: newMayfly(t),
		Start:     &outside,
	}
	_, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 100, Runs: 1})
	if !errors.Is(err, cell.ErrInvalidSizing) {
		t.Errorf("expected ErrInvalidSizing for start outside bounds, got %v", err)
	}
}

func TestOptimizeValidatesInputs(t *testing.T) {
	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: newModel(t),
		Optimizer: newMayfly(t),
	}
	if _, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 0, Runs: 1}); err == nil {
		t.Error("expected error for zero budget")
	}
	if _, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 10, Runs: 0}); err == nil {
		t.Error("expected error for zero runs")
	}
	bad := cell.Bounds{Lower: cell.Sizing{Wn: 0, Wp: 1, L: 0.35}, Upper: paperBounds.Upper}
	if _, err := d.Optimize(context.Background(), bad, Budget{MaxEvaluations: 10, Runs: 1}); err == nil {
		t.Error("expected error for non-positive lower bound")
	}
}

func TestOptimizeSurfacesEvaluatorFailure(t *testing.T) {
	boom := errors.New("simulator crashed")
	failing := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		return cell.Result{}, boom
	})
	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: failing,
		Optimizer: newMayfly(t),
	}
	_, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 100, Runs: 1})
	if !errors.Is(err, boom) {
		t.Errorf("expected evaluator failure to surface, got %v", err)
	}
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: newModel(t),
		Optimizer: newMayfly(t),
	}
	if _, err := d.Optimize(ctx, paperBounds, Budget{MaxEvaluations: 100, Runs: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// scriptedOptimizer scores the points in tried and then reports best,
// which it never handed to the objective.
type scriptedOptimizer struct {
	tried [][]float64
	best  []float64
}

func (o scriptedOptimizer) Minimize(p opt.Problem) (opt.Result, error) {
	for _, x := range o.tried {
		p.Objective(x)
	}
	return opt.Result{X: o.best, Evaluations: len(o.tried)}, nil
}

func TestOptimizeCountsReportedPointEvaluation(t *testing.T) {
	model := newModel(t)
	calls := 0
	counting := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		calls++
		return model.Compute(s)
	})
	var seen []cell.Sizing

	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: counting,
		Optimizer: scriptedOptimizer{
			tried: [][]float64{{2, 6, 0.35}, {2, 5, 0.4}},
			best:  []float64{3, 6, 0.35},
		},
		OnCandidate: func(run int, c Candidate) { seen = append(seen, c.Sizing) },
	}
	out, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 10, Runs: 1})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("evaluator called %d times, want 3", calls)
	}
	if out.Evaluations != calls || out.Runs[0].Evaluations != calls {
		t.Errorf("evaluations = %d (run %d), evaluator calls = %d", out.Evaluations, out.Runs[0].Evaluations, calls)
	}
	want := cell.Sizing{Wn: 3, Wp: 6, L: 0.35}
	if len(seen) != 3 || seen[2] != want {
		t.Errorf("candidates seen = %v, want the reported point last", seen)
	}
}

func TestOptimizeSkipsReevaluatingScoredPoint(t *testing.T) {
	model := newModel(t)
	calls := 0
	counting := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		calls++
		return model.Compute(s)
	})

	// the single scored point is the run's incumbent and the reported point
	d := &Metaheuristic{
		Composer:  objective.New(paperBounds),
		Evaluator: counting,
		Optimizer: scriptedOptimizer{
			tried: [][]float64{{2, 6, 0.35}},
			best:  []float64{2, 6, 0.35},
		},
	}
	out, err := d.Optimize(context.Background(), paperBounds, Budget{MaxEvaluations: 10, Runs: 1})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if calls != 1 || out.Evaluations != 1 {
		t.Errorf("evaluator calls = %d, evaluations = %d, want 1 and 1", calls, out.Evaluations)
	}
}
