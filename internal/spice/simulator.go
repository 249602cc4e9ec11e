// Package spice evaluates sizings with an external circuit simulator.
//
// A Runner writes the parameter overrides into a copy of a netlist template,
// runs the simulator in an isolated working directory and parses the
// measurements from its log. An Evaluator turns those measurements into the
// same cell.Result the analytical model produces.
package spice

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cwbudde/invsizer/internal/cell"
)

// Measurements holds the named scalar results of one simulation, by
// lower-cased measure name.
type Measurements map[string]float64

// Get returns the named measurement. The lookup is case-insensitive, as in SPICE.
func (m Measurements) Get(name string) (float64, bool) {
	v, ok := m[strings.ToLower(name)]
	return v, ok
}

// Names returns the measurement names in sorted order.
func (m Measurements) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Simulator runs one simulation with the given parameter overrides.
// Override values are in SI units (meters for geometry).
type Simulator interface {
	Simulate(ctx context.Context, overrides map[string]float64) (Measurements, error)
}

// SimulatorFunc adapts a plain function to Simulator.
type SimulatorFunc func(ctx context.Context, overrides map[string]float64) (Measurements, error)

func (f SimulatorFunc) Simulate(ctx context.Context, overrides map[string]float64) (Measurements, error) {
	return f(ctx, overrides)
}

// ErrSimulationFailed matches any SimulationError.
var ErrSimulationFailed = &SimulationError{}

// SimulationError reports a failed simulator invocation: missing
// executable, bad netlist, non-zero exit or timeout.
type SimulationError struct {
	// Sizing is set once the error has passed through an Evaluator.
	Sizing *cell.Sizing
	// Reason is a short description of what went wrong.
	Reason string
	// Diagnostic is the tail of the tool's output, if any.
	Diagnostic string
	Err        error
}

func (e *SimulationError) Error() string {
	var b strings.Builder
	b.WriteString("simulation failed")
	if e.Sizing != nil {
		b.WriteString(" for " + e.Sizing.String())
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Diagnostic != "" {
		b.WriteString("\n" + e.Diagnostic)
	}
	return b.String()
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

func (e *SimulationError) Is(target error) bool {
	_, ok := target.(*SimulationError)
	return ok
}

// ErrMeasurementNotFound matches any MeasurementError.
var ErrMeasurementNotFound = &MeasurementError{}

// MeasurementError reports a measure that is missing from, or failed in,
// the simulator output.
type MeasurementError struct {
	Sizing *cell.Sizing
	Name   string
	// Available lists the measures that were found.
	Available []string
}

func (e *MeasurementError) Error() string {
	msg := fmt.Sprintf("measurement %q not found", e.Name)
	if e.Sizing != nil {
		msg += " for " + e.Sizing.String()
	}
	if len(e.Available) > 0 {
		msg += " (found: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}

func (e *MeasurementError) Is(target error) bool {
	_, ok := target.(*MeasurementError)
	return ok
}
