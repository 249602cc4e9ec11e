package cell

import (
	"context"
	"fmt"
	"math"
)

// Sizing holds the device dimensions of the inverter, in micrometers.
type Sizing struct {
	Wn float64 `json:"wn" yaml:"wn"` // Pull-down (NMOS) width
	Wp float64 `json:"wp" yaml:"wp"` // Pull-up (PMOS) width
	L  float64 `json:"l" yaml:"l"`   // Shared channel length
}

// Dim is the length of the flat vector form of a Sizing.
const Dim = 3

// Vector returns the sizing as [Wn, Wp, L].
func (s Sizing) Vector() []float64 {
	return []float64{s.Wn, s.Wp, s.L}
}

// SizingFromVector is the inverse of Vector.
func SizingFromVector(v []float64) Sizing {
	return Sizing{Wn: v[0], Wp: v[1], L: v[2]}
}

// Ratio returns Wp/Wn.
func (s Sizing) Ratio() float64 {
	return s.Wp / s.Wn
}

func (s Sizing) String() string {
	return fmt.Sprintf("Wn=%.3fµm Wp=%.3fµm L=%.3fµm", s.Wn, s.Wp, s.L)
}

// Result is the performance of one sizing. Delay in seconds, power in watts,
// area in µm².
type Result struct {
	Delay float64 `json:"delay"`
	Power float64 `json:"power"`
	Area  float64 `json:"area"`

	// Breakdown, zero when the producing evaluator does not report it.
	TpHL        float64 `json:"tphl,omitempty"`
	TpLH        float64 `json:"tplh,omitempty"`
	PowerDyn    float64 `json:"powerDyn,omitempty"`
	PowerStatic float64 `json:"powerStatic,omitempty"`
}

// Evaluator maps a sizing to its performance. The analytical Model and the
// simulator-backed evaluator both satisfy it, so either can sit behind the
// objective.
type Evaluator interface {
	Evaluate(ctx context.Context, s Sizing) (Result, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, s Sizing) (Result, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, s Sizing) (Result, error) {
	return f(ctx, s)
}

// Bounds is the feasible box of the search.
type Bounds struct {
	Lower Sizing `json:"lower" yaml:"lower"`
	Upper Sizing `json:"upper" yaml:"upper"`
}

// Validate checks that the box is non-empty and strictly positive.
func (b Bounds) Validate() error {
	lo, hi := b.Lower.Vector(), b.Upper.Vector()
	names := [Dim]string{"Wn", "Wp", "L"}
	for i := range lo {
		if !(lo[i] > 0) || math.IsInf(lo[i], 0) {
			return &ValidationError{Field: "bounds.lower." + names[i], Reason: fmt.Sprintf("must be positive and finite, got %g", lo[i])}
		}
		if math.IsInf(hi[i], 0) {
			return &ValidationError{Field: "bounds.upper." + names[i], Reason: "must be finite"}
		}
		if !(hi[i] >= lo[i]) {
			return &ValidationError{
				Field:  "bounds.upper." + names[i],
				Reason: fmt.Sprintf("must be >= lower bound %g, got %g", lo[i], hi[i]),
			}
		}
	}
	return nil
}

// Contains reports whether s lies inside the box (inclusive).
func (b Bounds) Contains(s Sizing) bool {
	v, lo, hi := s.Vector(), b.Lower.Vector(), b.Upper.Vector()
	for i := range v {
		if !(v[i] >= lo[i] && v[i] <= hi[i]) {
			return false
		}
	}
	return true
}

// Clamp projects s onto the box.
func (b Bounds) Clamp(s Sizing) Sizing {
	v, lo, hi := s.Vector(), b.Lower.Vector(), b.Upper.Vector()
	for i := range v {
		v[i] = clamp(v[i], lo[i], hi[i])
	}
	return SizingFromVector(v)
}

func clamp(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
