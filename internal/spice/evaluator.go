package spice

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/invsizer/internal/cell"
)

// EvaluatorConfig names the netlist parameters and log measures.
type EvaluatorConfig struct {
	// Netlist parameter names for the three dimensions.
	WnParam string `json:"wnParam" yaml:"wnParam"`
	WpParam string `json:"wpParam" yaml:"wpParam"`
	LParam  string `json:"lParam" yaml:"lParam"`

	// FallMeasure and RiseMeasure are the high-to-low and low-to-high
	// propagation delays [s].
	FallMeasure string `json:"fallMeasure" yaml:"fallMeasure"`
	RiseMeasure string `json:"riseMeasure" yaml:"riseMeasure"`

	// PowerMeasure is an optional average supply power measure [W]. When
	// empty, power comes from the analytical model.
	PowerMeasure string `json:"powerMeasure,omitempty" yaml:"powerMeasure,omitempty"`
}

// DefaultEvaluatorConfig matches the .meas statements of the reference
// inverter netlist.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		WnParam:     "Wn",
		WpParam:     "Wp",
		LParam:      "L",
		FallMeasure: "tphl",
		RiseMeasure: "tplh",
	}
}

// Evaluator evaluates sizings through a Simulator. It satisfies
// cell.Evaluator, so it can replace the analytical model behind the
// objective.
type Evaluator struct {
	sim   Simulator
	model *cell.Model
	cfg   EvaluatorConfig
}

// NewEvaluator creates a simulator-backed evaluator. The model supplies the
// layout area, and the power when no power measure is configured.
func NewEvaluator(sim Simulator, model *cell.Model, cfg EvaluatorConfig) (*Evaluator, error) {
	if sim == nil {
		return nil, fmt.Errorf("simulator cannot be nil")
	}
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if cfg.FallMeasure == "" || cfg.RiseMeasure == "" {
		return nil, fmt.Errorf("fall and rise measures must be named")
	}
	if cfg.WnParam == "" || cfg.WpParam == "" || cfg.LParam == "" {
		return nil, fmt.Errorf("netlist parameter names cannot be empty")
	}
	return &Evaluator{sim: sim, model: model, cfg: cfg}, nil
}

// Overrides returns the netlist parameter values for s, in meters.
func (e *Evaluator) Overrides(s cell.Sizing) map[string]float64 {
	return map[string]float64{
		e.cfg.WnParam: s.Wn * 1e-6,
		e.cfg.WpParam: s.Wp * 1e-6,
		e.cfg.LParam:  s.L * 1e-6,
	}
}

// Evaluate runs one simulation for s. Failures carry the sizing that
// triggered them and are never replaced with default values.
func (e *Evaluator) Evaluate(ctx context.Context, s cell.Sizing) (cell.Result, error) {
	if err := cell.CheckDimensions(s); err != nil {
		return cell.Result{}, err
	}
	meas, err := e.sim.Simulate(ctx, e.Overrides(s))
	if err != nil {
		var simErr *SimulationError
		if errors.As(err, &simErr) {
			simErr.Sizing = &s
			return cell.Result{}, simErr
		}
		return cell.Result{}, &SimulationError{Sizing: &s, Err: err}
	}

	tphl, err := e.require(meas, e.cfg.FallMeasure, s)
	if err != nil {
		return cell.Result{}, err
	}
	tplh, err := e.require(meas, e.cfg.RiseMeasure, s)
	if err != nil {
		return cell.Result{}, err
	}

	analytic, err := e.model.Compute(s)
	if err != nil {
		return cell.Result{}, err
	}

	res := cell.Result{
		Delay: (tphl + tplh) / 2,
		Area:  analytic.Area,
		TpHL:  tphl,
		TpLH:  tplh,
	}
	if e.cfg.PowerMeasure != "" {
		p, err := e.require(meas, e.cfg.PowerMeasure, s)
		if err != nil {
			return cell.Result{}, err
		}
		// supply power is reported with the sign of the source current
		res.Power = math.Abs(p)
	} else {
		res.Power = analytic.Power
		res.PowerDyn = analytic.PowerDyn
		res.PowerStatic = analytic.PowerStatic
	}
	return res, nil
}

func (e *Evaluator) require(meas Measurements, name string, s cell.Sizing) (float64, error) {
	v, ok := meas.Get(name)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MeasurementError{Sizing: &s, Name: name, Available: meas.Names()}
	}
	return v, nil
}
