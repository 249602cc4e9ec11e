package cell

import (
	"context"
	"errors"
	"math"
	"testing"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(AMS035())
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	return m
}

func relClose(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol*math.Abs(want)
}

func TestComputeReferenceSizing(t *testing.T) {
	m := newTestModel(t)

	res, err := m.Compute(Sizing{Wn: 2, Wp: 6, L: 0.35})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"tphl", res.TpHL, 1.98778e-12},
		{"tplh", res.TpLH, 2.28508e-12},
		{"delay", res.Delay, 2.13643e-12},
		{"powerDyn", res.PowerDyn, 1.089e-5},
		{"powerStatic", res.PowerStatic, 3.3e-8},
		{"power", res.Power, 1.0923e-5},
		{"area", res.Area, 8.4},
	}
	for _, c := range checks {
		if !relClose(c.got, c.want, 1e-4) {
			t.Errorf("%s = %g, want %g", c.name, c.got, c.want)
		}
	}

	// Plausible ranges for a 0.35µm process
	if res.Delay <= 0 || res.Delay >= 1e-9 {
		t.Errorf("delay %g s not sub-nanosecond", res.Delay)
	}
	if res.Power < 1e-6 || res.Power > 1e-3 {
		t.Errorf("power %g W outside µW-mW range", res.Power)
	}
	if res.Area <= 0 || res.Area >= 100 {
		t.Errorf("area %g µm² not below 100", res.Area)
	}
}

func TestComputeIdempotent(t *testing.T) {
	m := newTestModel(t)
	s := Sizing{Wn: 3.7, Wp: 8.1, L: 0.42}

	first, err := m.Compute(s)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := m.Evaluate(context.Background(), s)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if again != first {
			t.Fatalf("evaluation %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestComputeMonotonicInWidth(t *testing.T) {
	m := newTestModel(t)
	base := Sizing{Wn: 2, Wp: 6, L: 0.35}
	ref, _ := m.Compute(base)

	tests := []struct {
		name   string
		sizing Sizing
		// drive is the delay component that must shrink
		drive func(Result) float64
	}{
		{"wider NMOS", Sizing{Wn: 4, Wp: 6, L: 0.35}, func(r Result) float64 { return r.TpHL }},
		{"wider PMOS", Sizing{Wn: 2, Wp: 12, L: 0.35}, func(r Result) float64 { return r.TpLH }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Compute(tt.sizing)
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}
			if res.Power <= ref.Power {
				t.Errorf("power should grow with width: %g <= %g", res.Power, ref.Power)
			}
			if res.Area <= ref.Area {
				t.Errorf("area should grow with width: %g <= %g", res.Area, ref.Area)
			}
			if tt.drive(res) >= tt.drive(ref) {
				t.Errorf("driven delay should shrink: %g >= %g", tt.drive(res), tt.drive(ref))
			}
			if res.Delay >= ref.Delay {
				t.Errorf("mean delay should shrink: %g >= %g", res.Delay, ref.Delay)
			}
		})
	}
}

func TestComputeStrictlyPositiveOverBox(t *testing.T) {
	m := newTestModel(t)
	for wn := 1.0; wn <= 10; wn += 1.5 {
		for wp := 1.0; wp <= 10; wp += 1.5 {
			for _, l := range []float64{0.35, 0.6, 1.0} {
				res, err := m.Compute(Sizing{Wn: wn, Wp: wp, L: l})
				if err != nil {
					t.Fatalf("Compute(%g,%g,%g) failed: %v", wn, wp, l, err)
				}
				if res.Delay <= 0 || res.Power <= 0 || res.Area <= 0 {
					t.Errorf("non-positive result at (%g,%g,%g): %+v", wn, wp, l, res)
				}
			}
		}
	}
}

func TestComputeRejectsInvalidSizing(t *testing.T) {
	m := newTestModel(t)

	tests := []struct {
		name   string
		sizing Sizing
	}{
		{"zero Wn", Sizing{Wn: 0, Wp: 6, L: 0.35}},
		{"negative Wn", Sizing{Wn: -1, Wp: 6, L: 0.35}},
		{"zero Wp", Sizing{Wn: 2, Wp: 0, L: 0.35}},
		{"zero L", Sizing{Wn: 2, Wp: 6, L: 0}},
		{"negative L", Sizing{Wn: 2, Wp: 6, L: -0.35}},
		{"NaN Wp", Sizing{Wn: 2, Wp: math.NaN(), L: 0.35}},
		{"infinite L", Sizing{Wn: 2, Wp: 6, L: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Compute(tt.sizing)
			if !errors.Is(err, ErrInvalidSizing) {
				t.Fatalf("expected ErrInvalidSizing, got %v", err)
			}
			if res != (Result{}) {
				t.Errorf("expected zero result on error, got %+v", res)
			}
		})
	}
}

func TestNewModelRejectsBadTech(t *testing.T) {
	tech := AMS035()
	tech.Vdd = 0.4 // below both thresholds

	if _, err := NewModel(tech); err == nil {
		t.Fatal("expected error for Vdd below threshold")
	}

	tech = AMS035()
	tech.LoadCap = 0
	_, err := NewModel(tech)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "technology.loadCap" {
		t.Errorf("Field = %q, want technology.loadCap", verr.Field)
	}
}

func TestBoundsValidateAndClamp(t *testing.T) {
	b := Bounds{
		Lower: Sizing{Wn: 1, Wp: 1, L: 0.35},
		Upper: Sizing{Wn: 10, Wp: 10, L: 1},
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if !b.Contains(Sizing{Wn: 1, Wp: 10, L: 0.35}) {
		t.Error("bounds should be inclusive")
	}
	if b.Contains(Sizing{Wn: 0.5, Wp: 5, L: 0.5}) {
		t.Error("Wn below lower bound should not be contained")
	}

	clamped := b.Clamp(Sizing{Wn: -3, Wp: 20, L: 0.5})
	want := Sizing{Wn: 1, Wp: 10, L: 0.5}
	if clamped != want {
		t.Errorf("Clamp = %+v, want %+v", clamped, want)
	}

	inverted := Bounds{Lower: Sizing{Wn: 5, Wp: 1, L: 0.35}, Upper: Sizing{Wn: 2, Wp: 10, L: 1}}
	if err := inverted.Validate(); err == nil {
		t.Error("expected error for upper < lower")
	}
}

func TestBoundsValidateRejectsNonFinite(t *testing.T) {
	valid := Bounds{
		Lower: Sizing{Wn: 1, Wp: 1, L: 0.35},
		Upper: Sizing{Wn: 10, Wp: 10, L: 1},
	}
	tests := []struct {
		name  string
		edit  func(b *Bounds)
		field string
	}{
		{"NaN upper", func(b *Bounds) { b.Upper.Wn = math.NaN() }, "bounds.upper.Wn"},
		{"Inf upper", func(b *Bounds) { b.Upper.Wp = math.Inf(1) }, "bounds.upper.Wp"},
		{"NaN lower", func(b *Bounds) { b.Lower.L = math.NaN() }, "bounds.lower.L"},
		{"Inf lower", func(b *Bounds) { b.Lower.Wn = math.Inf(1) }, "bounds.lower.Wn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.edit(&b)
			err := b.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("Validate() = %v, want error on %s", err, tt.field)
			}
		})
	}

	nanBox := valid
	nanBox.Upper.Wn = math.NaN()
	if nanBox.Contains(Sizing{Wn: 2, Wp: 6, L: 0.35}) {
		t.Error("a NaN bound must not contain any sizing")
	}
	if valid.Contains(Sizing{Wn: math.NaN(), Wp: 6, L: 0.35}) {
		t.Error("a NaN sizing must not be contained")
	}
}

func TestSizingVectorRoundTrip(t *testing.T) {
	s := Sizing{Wn: 2, Wp: 6, L: 0.35}
	v := s.Vector()
	if len(v) != Dim {
		t.Fatalf("vector length %d, want %d", len(v), Dim)
	}
	if got := SizingFromVector(v); got != s {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}
	if r := s.Ratio(); r != 3 {
		t.Errorf("Ratio = %g, want 3", r)
	}
}
