package cell

import "fmt"

// Tech holds the process constants used by the analytical model. Values are
// in SI units unless the field says otherwise.
type Tech struct {
	// Supply voltage and threshold magnitudes [V].
	Vdd  float64 `json:"vdd" yaml:"vdd"`
	VthN float64 `json:"vthN" yaml:"vthN"`
	VthP float64 `json:"vthP" yaml:"vthP"`

	// Low-field mobilities [cm²/Vs].
	U0N float64 `json:"u0N" yaml:"u0N"`
	U0P float64 `json:"u0P" yaml:"u0P"`

	// Oxide thickness [m] and permittivity [F/m].
	Tox   float64 `json:"tox" yaml:"tox"`
	EpsOx float64 `json:"epsOx" yaml:"epsOx"`

	// LoadCap is the fixed output load [F].
	LoadCap float64 `json:"loadCap" yaml:"loadCap"`

	// ClockFreq is the switching frequency [Hz].
	ClockFreq float64 `json:"clockFreq" yaml:"clockFreq"`

	// Activity is the switching activity factor α.
	Activity float64 `json:"activity" yaml:"activity"`

	// DelayFactor k in tp = k·R·C (0.69 for the 50% crossing).
	DelayFactor float64 `json:"delayFactor" yaml:"delayFactor"`

	// LeakagePerWidth is the subthreshold leakage per µm of total device width [A/µm].
	LeakagePerWidth float64 `json:"leakagePerWidth" yaml:"leakagePerWidth"`

	// Area = LayoutFactor·(Wn + Wp)·L + AreaOverhead, in µm².
	LayoutFactor float64 `json:"layoutFactor" yaml:"layoutFactor"`
	AreaOverhead float64 `json:"areaOverhead" yaml:"areaOverhead"`
}

// AMS035 returns the constants of the AMS 0.35µm process (5827_035.lib).
// The leakage coefficient reproduces a 10nA total at Wn=2µm, Wp=6µm.
func AMS035() Tech {
	return Tech{
		Vdd:             3.3,
		VthN:            0.498,
		VthP:            0.6915,
		U0N:             475.8,
		U0P:             148.2,
		Tox:             7.575e-9,
		EpsOx:           3.9 * 8.85e-12,
		LoadCap:         10e-15,
		ClockFreq:       100e6,
		Activity:        1.0,
		DelayFactor:     0.69,
		LeakagePerWidth: 1.25e-9,
		LayoutFactor:    3.0,
		AreaOverhead:    0,
	}
}

// Cox returns the gate oxide capacitance per unit area [F/m²].
func (t Tech) Cox() float64 {
	return t.EpsOx / t.Tox
}

// KPrimeN returns the NMOS process transconductance µn·Cox [A/V²].
func (t Tech) KPrimeN() float64 {
	return t.U0N * 1e-4 * t.Cox()
}

// KPrimeP returns the PMOS process transconductance µp·Cox [A/V²].
func (t Tech) KPrimeP() float64 {
	return t.U0P * 1e-4 * t.Cox()
}

// Validate checks that the constants describe a usable process.
func (t Tech) Validate() error {
	positive := []struct {
		name string
		val  float64
	}{
		{"vdd", t.Vdd},
		{"vthN", t.VthN},
		{"vthP", t.VthP},
		{"u0N", t.U0N},
		{"u0P", t.U0P},
		{"tox", t.Tox},
		{"epsOx", t.EpsOx},
		{"loadCap", t.LoadCap},
		{"clockFreq", t.ClockFreq},
		{"activity", t.Activity},
		{"delayFactor", t.DelayFactor},
		{"leakagePerWidth", t.LeakagePerWidth},
		{"layoutFactor", t.LayoutFactor},
	}
	for _, p := range positive {
		if !(p.val > 0) {
			return &ValidationError{Field: "technology." + p.name, Reason: "must be positive"}
		}
	}
	if t.AreaOverhead < 0 {
		return &ValidationError{Field: "technology.areaOverhead", Reason: "cannot be negative"}
	}
	if t.Vdd <= t.VthN || t.Vdd <= t.VthP {
		return &ValidationError{
			Field:  "technology.vdd",
			Reason: fmt.Sprintf("must exceed both thresholds (%g, %g)", t.VthN, t.VthP),
		}
	}
	return nil
}
