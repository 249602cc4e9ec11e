package objective

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/cwbudde/invsizer/internal/cell"
)

var testBounds = cell.Bounds{
	Lower: cell.Sizing{Wn: 0.5, Wp: 0.5, L: 0.35},
	Upper: cell.Sizing{Wn: 50, Wp: 150, L: 1},
}

func TestScoreWeightedSum(t *testing.T) {
	c := New(testBounds)
	r := cell.Result{Delay: 2e-9, Power: 10e-6, Area: 8}

	// 2ns + 0.01*10µW + 0.001*8µm²
	want := 2 + 0.1 + 0.008
	if got := c.Score(r); math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %.12f, want %.12f", got, want)
	}
}

func TestScoreMonotonic(t *testing.T) {
	c := New(testBounds)
	base := cell.Result{Delay: 2e-12, Power: 1.1e-5, Area: 8.4}
	ref := c.Score(base)

	tests := []struct {
		name string
		bump func(r cell.Result) cell.Result
	}{
		{"delay", func(r cell.Result) cell.Result { r.Delay *= 1.01; return r }},
		{"power", func(r cell.Result) cell.Result { r.Power *= 1.01; return r }},
		{"area", func(r cell.Result) cell.Result { r.Area *= 1.01; return r }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Score(tt.bump(base)); got <= ref {
				t.Errorf("score should increase with %s: %g <= %g", tt.name, got, ref)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	c := New(testBounds)

	tests := []struct {
		name     string
		sizing   cell.Sizing
		feasible bool
	}{
		{"reference sizing", cell.Sizing{Wn: 2, Wp: 6, L: 0.35}, true},
		{"ratio at lower edge", cell.Sizing{Wn: 5, Wp: 6, L: 0.35}, true},
		{"ratio too small", cell.Sizing{Wn: 6, Wp: 6, L: 0.35}, false},
		{"ratio too large", cell.Sizing{Wn: 1, Wp: 5, L: 0.35}, false},
		{"L below bound", cell.Sizing{Wn: 2, Wp: 6, L: 0.3}, false},
		{"Wp above bound", cell.Sizing{Wn: 40, Wp: 160, L: 0.35}, false},
		{"zero width", cell.Sizing{Wn: 0, Wp: 6, L: 0.35}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Check(tt.sizing)
			if tt.feasible && err != nil {
				t.Errorf("expected feasible, got %v", err)
			}
			if !tt.feasible && !errors.Is(err, cell.ErrInvalidSizing) {
				t.Errorf("expected ErrInvalidSizing, got %v", err)
			}
		})
	}
}

func TestCheckRatioDisabled(t *testing.T) {
	c := New(testBounds)
	c.Ratio.Enabled = false
	if err := c.Check(cell.Sizing{Wn: 6, Wp: 6, L: 0.35}); err != nil {
		t.Errorf("ratio window disabled, got %v", err)
	}
}

func TestEvaluatePenalizesInfeasible(t *testing.T) {
	c := New(testBounds)
	calls := 0
	ev := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		calls++
		return cell.Result{Delay: 1e-12, Power: 1e-5, Area: 1}, nil
	})

	e, err := c.Evaluate(context.Background(), ev, cell.Sizing{Wn: 10, Wp: 1, L: 0.35})
	if err != nil {
		t.Fatalf("infeasible sizing must not error, got %v", err)
	}
	if e.Objective != DefaultPenalty || e.Feasible {
		t.Errorf("expected penalty, got %+v", e)
	}
	if math.IsInf(e.Objective, 0) {
		t.Error("penalty must be finite")
	}
	if calls != 0 {
		t.Errorf("evaluator called %d times for infeasible sizing", calls)
	}
}

func TestEvaluateMapsEvaluatorErrors(t *testing.T) {
	c := New(testBounds)
	s := cell.Sizing{Wn: 2, Wp: 6, L: 0.35}

	rejecting := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		return cell.Result{}, &cell.SizingError{Sizing: s, Reason: "rejected"}
	})
	e, err := c.Evaluate(context.Background(), rejecting, s)
	if err != nil || e.Objective != DefaultPenalty {
		t.Errorf("InvalidSizing from evaluator should map to penalty, got %+v, %v", e, err)
	}

	boom := errors.New("tool crashed")
	failing := cell.EvaluatorFunc(func(ctx context.Context, s cell.Sizing) (cell.Result, error) {
		return cell.Result{}, fmt.Errorf("simulate: %w", boom)
	})
	if _, err := c.Evaluate(context.Background(), failing, s); !errors.Is(err, boom) {
		t.Errorf("expected evaluator error to propagate, got %v", err)
	}
}

func TestEvaluateWithModel(t *testing.T) {
	m, err := cell.NewModel(cell.AMS035())
	if err != nil {
		t.Fatal(err)
	}
	c := New(testBounds)

	e, err := c.Evaluate(context.Background(), m, cell.Sizing{Wn: 2, Wp: 6, L: 0.35})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !e.Feasible {
		t.Fatalf("reference sizing should be feasible: %s", e.Reason)
	}
	if math.Abs(e.Objective-0.1197664) > 1e-6 {
		t.Errorf("Objective = %.7f, want 0.1197664", e.Objective)
	}
}

func TestValidate(t *testing.T) {
	c := New(testBounds)
	if err := c.Validate(); err != nil {
		t.Fatalf("default composer invalid: %v", err)
	}

	c.Weights.Area = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero weight")
	}

	c = New(testBounds)
	c.Ratio = RatioWindow{Enabled: true, Min: 3, Max: 2}
	if err := c.Validate(); err == nil {
		t.Error("expected error for inverted ratio window")
	}
}
