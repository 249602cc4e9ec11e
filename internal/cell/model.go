package cell

import (
	"context"
	"math"
)

// Model is the closed-form performance model of a static CMOS inverter.
// It holds no mutable state and is safe for concurrent use.
type Model struct {
	tech Tech
}

// NewModel validates the constants and returns a model bound to them.
func NewModel(tech Tech) (*Model, error) {
	if err := tech.Validate(); err != nil {
		return nil, err
	}
	return &Model{tech: tech}, nil
}

// Tech returns the constants the model was built with.
func (m *Model) Tech() Tech {
	return m.tech
}

// Evaluate implements Evaluator. The context is unused; the model never blocks.
func (m *Model) Evaluate(_ context.Context, s Sizing) (Result, error) {
	return m.Compute(s)
}

// Compute returns delay, power and area for s.
//
// Each device is treated as a linear resistor R = 1/(k'·(W/L)·(Vdd−Vth))
// charging or discharging the fixed load, so tp = DelayFactor·R·CL.
// The reported delay is the mean of the fall (NMOS) and rise (PMOS) delays.
func (m *Model) Compute(s Sizing) (Result, error) {
	if err := CheckDimensions(s); err != nil {
		return Result{}, err
	}
	t := m.tech

	// µm -> m cancels in W/L
	aspectN := s.Wn / s.L
	aspectP := s.Wp / s.L

	rn := 1.0 / (t.KPrimeN() * aspectN * (t.Vdd - t.VthN))
	rp := 1.0 / (t.KPrimeP() * aspectP * (t.Vdd - t.VthP))

	tphl := t.DelayFactor * rn * t.LoadCap
	tplh := t.DelayFactor * rp * t.LoadCap

	pDyn := t.Activity * t.LoadCap * t.Vdd * t.Vdd * t.ClockFreq
	pStat := t.LeakagePerWidth * (s.Wn + s.Wp) * t.Vdd

	return Result{
		Delay:       (tphl + tplh) / 2,
		Power:       pDyn + pStat,
		Area:        m.Area(s),
		TpHL:        tphl,
		TpLH:        tplh,
		PowerDyn:    pDyn,
		PowerStatic: pStat,
	}, nil
}

// Area returns the layout area estimate in µm². It does not validate s.
func (m *Model) Area(s Sizing) float64 {
	return m.tech.LayoutFactor*(s.Wn+s.Wp)*s.L + m.tech.AreaOverhead
}

// CheckDimensions rejects non-finite or non-positive dimensions.
func CheckDimensions(s Sizing) error {
	for _, d := range []struct {
		name string
		val  float64
	}{{"Wn", s.Wn}, {"Wp", s.Wp}, {"L", s.L}} {
		if math.IsNaN(d.val) || math.IsInf(d.val, 0) {
			return &SizingError{Sizing: s, Reason: d.name + " is not finite"}
		}
		if d.val <= 0 {
			return &SizingError{Sizing: s, Reason: d.name + " must be positive"}
		}
	}
	return nil
}
