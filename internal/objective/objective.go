// Package objective folds the delay, power and area of a sizing into the
// single scalar the optimizers minimize.
package objective

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/metrics"
)

// DefaultPenalty is returned for infeasible sizings. It is finite so the
// optimizer's population arithmetic stays well defined.
const DefaultPenalty = 1e6

// Weights of the three terms, applied after unit scaling.
type Weights struct {
	Delay float64 `json:"delay" yaml:"delay"`
	Power float64 `json:"power" yaml:"power"`
	Area  float64 `json:"area" yaml:"area"`
}

// Scales convert model units (s, W, µm²) into the units the weights expect.
type Scales struct {
	Delay float64 `json:"delay" yaml:"delay"`
	Power float64 `json:"power" yaml:"power"`
	Area  float64 `json:"area" yaml:"area"`
}

// RatioWindow constrains Wp/Wn to [Min, Max] when Enabled.
type RatioWindow struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
}

// Composer scores performance results and checks sizing feasibility.
type Composer struct {
	Weights Weights
	Scales  Scales
	Bounds  cell.Bounds
	Ratio   RatioWindow
	Penalty float64
}

// DefaultWeights returns delay 1, power 0.01, area 0.001.
func DefaultWeights() Weights {
	return Weights{Delay: 1, Power: 0.01, Area: 0.001}
}

// DefaultScales reports delay in ns, power in µW and area in µm².
func DefaultScales() Scales {
	return Scales{Delay: 1e9, Power: 1e6, Area: 1}
}

// DefaultRatio keeps the switching threshold near mid-rail.
func DefaultRatio() RatioWindow {
	return RatioWindow{Enabled: true, Min: 1.2, Max: 4.5}
}

// New returns a composer with the default weights, scales, ratio window and penalty.
func New(bounds cell.Bounds) *Composer {
	return &Composer{
		Weights: DefaultWeights(),
		Scales:  DefaultScales(),
		Bounds:  bounds,
		Ratio:   DefaultRatio(),
		Penalty: DefaultPenalty,
	}
}

// Validate checks the composer configuration.
func (c *Composer) Validate() error {
	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"objective.weights.delay", c.Weights.Delay},
		{"objective.weights.power", c.Weights.Power},
		{"objective.weights.area", c.Weights.Area},
		{"objective.scales.delay", c.Scales.Delay},
		{"objective.scales.power", c.Scales.Power},
		{"objective.scales.area", c.Scales.Area},
		{"objective.penalty", c.Penalty},
	} {
		if !(f.val > 0) {
			return &cell.ValidationError{Field: f.name, Reason: "must be positive"}
		}
	}
	if c.Ratio.Enabled && (c.Ratio.Min <= 0 || c.Ratio.Max < c.Ratio.Min) {
		return &cell.ValidationError{
			Field:  "objective.ratio",
			Reason: fmt.Sprintf("invalid window [%g, %g]", c.Ratio.Min, c.Ratio.Max),
		}
	}
	return nil
}

// Score returns delay·wd + power·wp + area·wa in scaled units.
// It is strictly increasing in each term.
func (c *Composer) Score(r cell.Result) float64 {
	return c.Weights.Delay*c.Scales.Delay*r.Delay +
		c.Weights.Power*c.Scales.Power*r.Power +
		c.Weights.Area*c.Scales.Area*r.Area
}

// Check verifies s against the bounds and the ratio window.
func (c *Composer) Check(s cell.Sizing) error {
	if err := cell.CheckDimensions(s); err != nil {
		return err
	}
	if !c.Bounds.Contains(s) {
		return &cell.SizingError{Sizing: s, Reason: "outside search bounds"}
	}
	if c.Ratio.Enabled {
		r := s.Ratio()
		if r < c.Ratio.Min || r > c.Ratio.Max {
			return &cell.SizingError{
				Sizing: s,
				Reason: fmt.Sprintf("Wp/Wn=%.3f outside [%g, %g]", r, c.Ratio.Min, c.Ratio.Max),
			}
		}
	}
	return nil
}

// Evaluation is the outcome of scoring one sizing.
type Evaluation struct {
	Result    cell.Result
	Objective float64
	// Feasible is false when the penalty was applied.
	Feasible bool
	// Reason holds the feasibility failure, if any.
	Reason string
}

// Evaluate checks feasibility, evaluates s with ev and scores the result.
// Infeasible sizings, including ones the evaluator rejects with
// cell.ErrInvalidSizing, yield the penalty and a nil error. Any other
// evaluator error is returned unchanged.
func (c *Composer) Evaluate(ctx context.Context, ev cell.Evaluator, s cell.Sizing) (Evaluation, error) {
	if err := c.Check(s); err != nil {
		return c.penalize(err), nil
	}
	res, err := ev.Evaluate(ctx, s)
	if errors.Is(err, cell.ErrInvalidSizing) {
		return c.penalize(err), nil
	}
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Result: res, Objective: c.Score(res), Feasible: true}, nil
}

func (c *Composer) penalize(err error) Evaluation {
	metrics.Penalties.Inc()
	return Evaluation{Objective: c.Penalty, Reason: err.Error()}
}
