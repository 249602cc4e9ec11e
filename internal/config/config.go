// Package config loads the YAML configuration shared by the CLI commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/objective"
	"github.com/cwbudde/invsizer/internal/opt"
	"github.com/cwbudde/invsizer/internal/search"
	"github.com/cwbudde/invsizer/internal/spice"
)

// Optimizer algorithms.
const (
	AlgorithmMayfly     = "mayfly"
	AlgorithmNelderMead = "nelder-mead"
)

// Config is the complete, file-backed configuration.
type Config struct {
	Technology cell.Tech   `yaml:"technology"`
	Objective  Objective   `yaml:"objective"`
	Bounds     cell.Bounds `yaml:"bounds"`
	Start      cell.Sizing `yaml:"start"`
	Optimizer  Optimizer   `yaml:"optimizer"`
	Grid       Grid        `yaml:"grid"`
	Simulator  Simulator   `yaml:"simulator"`
}

// Objective mirrors objective.Composer minus the bounds.
type Objective struct {
	Weights objective.Weights     `yaml:"weights"`
	Scales  objective.Scales      `yaml:"scales"`
	Ratio   objective.RatioWindow `yaml:"ratio"`
	Penalty float64               `yaml:"penalty"`
}

// Optimizer configures the metaheuristic driver.
type Optimizer struct {
	Algorithm      string                `yaml:"algorithm"`
	PopSize        int                   `yaml:"popSize"`
	MaxEvaluations int                   `yaml:"maxEvaluations"`
	Runs           int                   `yaml:"runs"`
	Seed           int64                 `yaml:"seed"`
	Convergence    opt.ConvergenceConfig `yaml:"convergence"`
}

// Grid configures the exhaustive search.
type Grid struct {
	Bounds       cell.Bounds  `yaml:"bounds"`
	Steps        search.Steps `yaml:"steps"`
	Workers      int          `yaml:"workers"`
	AbortOnError bool         `yaml:"abortOnError"`
}

// Simulator configures the process runner and measurement mapping.
type Simulator struct {
	spice.RunnerConfig `yaml:",inline"`
	Measures           spice.EvaluatorConfig `yaml:"measures"`
}

// Default mirrors the reference AMS 0.35µm inverter flow.
func Default() *Config {
	return &Config{
		Technology: cell.AMS035(),
		Objective: Objective{
			Weights: objective.DefaultWeights(),
			Scales:  objective.DefaultScales(),
			Ratio:   objective.DefaultRatio(),
			Penalty: objective.DefaultPenalty,
		},
		Bounds: cell.Bounds{
			Lower: cell.Sizing{Wn: 1, Wp: 1, L: 0.35},
			Upper: cell.Sizing{Wn: 10, Wp: 10, L: 1},
		},
		Start: cell.Sizing{Wn: 2, Wp: 6, L: 0.35},
		Optimizer: Optimizer{
			Algorithm:      AlgorithmMayfly,
			PopSize:        30,
			MaxEvaluations: 3000,
			Runs:           1,
			Seed:           42,
			Convergence:    opt.DefaultConvergenceConfig(),
		},
		Grid: Grid{
			Bounds: cell.Bounds{
				Lower: cell.Sizing{Wn: 1, Wp: 3, L: 0.35},
				Upper: cell.Sizing{Wn: 3, Wp: 9, L: 0.35},
			},
			Steps:   search.Steps{Wn: 3, Wp: 3},
			Workers: 1,
		},
		Simulator: Simulator{
			RunnerConfig: spice.RunnerConfig{
				Executable: "ltspice",
				Args:       append([]string(nil), spice.LTspiceArgs...),
				Netlist:    "ltspice/inverter_cmos.cir",
				Timeout:    spice.DefaultTimeout,
			},
			Measures: spice.DefaultEvaluatorConfig(),
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses YAML from r over the defaults and validates the result.
// An empty document yields the defaults.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := c.Technology.Validate(); err != nil {
		return err
	}
	if _, err := c.Composer(); err != nil {
		return err
	}
	if !c.Bounds.Contains(c.Start) {
		return &cell.ValidationError{
			Field:  "start",
			Reason: fmt.Sprintf("%s lies outside the bounds", c.Start),
		}
	}

	o := c.Optimizer
	switch o.Algorithm {
	case AlgorithmMayfly:
		if o.PopSize < opt.MinPopSize {
			return &cell.ValidationError{
				Field:  "optimizer.popSize",
				Reason: fmt.Sprintf("must be at least %d, got %d", opt.MinPopSize, o.PopSize),
			}
		}
	case AlgorithmNelderMead:
	default:
		return &cell.ValidationError{
			Field:  "optimizer.algorithm",
			Reason: fmt.Sprintf("must be %s or %s, got %q", AlgorithmMayfly, AlgorithmNelderMead, o.Algorithm),
		}
	}
	if err := c.Budget().Validate(); err != nil {
		return err
	}
	if o.Convergence.Enabled && (o.Convergence.Patience < 1 || o.Convergence.Threshold < 0) {
		return &cell.ValidationError{Field: "optimizer.convergence", Reason: "needs patience >= 1 and threshold >= 0"}
	}

	g := c.Grid
	if err := g.Bounds.Validate(); err != nil {
		var verr *cell.ValidationError
		if errors.As(err, &verr) {
			return &cell.ValidationError{Field: "grid." + verr.Field, Reason: verr.Reason}
		}
		return err
	}
	if _, err := search.Lattice(g.Bounds, g.Steps); err != nil {
		return err
	}
	if g.Workers < 1 {
		return &cell.ValidationError{Field: "grid.workers", Reason: fmt.Sprintf("must be at least 1, got %d", g.Workers)}
	}

	if c.Simulator.Timeout < 0 {
		return &cell.ValidationError{Field: "simulator.timeout", Reason: "cannot be negative"}
	}
	if c.Simulator.Timeout > 0 && c.Simulator.Timeout < time.Second {
		return &cell.ValidationError{Field: "simulator.timeout", Reason: "must be at least 1s"}
	}
	return nil
}

// Composer builds the objective composer over the optimization bounds.
func (c *Config) Composer() (*objective.Composer, error) {
	comp := &objective.Composer{
		Weights: c.Objective.Weights,
		Scales:  c.Objective.Scales,
		Bounds:  c.Bounds,
		Ratio:   c.Objective.Ratio,
		Penalty: c.Objective.Penalty,
	}
	if err := comp.Validate(); err != nil {
		return nil, err
	}
	return comp, nil
}

// Budget returns the metaheuristic evaluation budget.
func (c *Config) Budget() search.Budget {
	return search.Budget{
		MaxEvaluations: c.Optimizer.MaxEvaluations,
		Runs:           c.Optimizer.Runs,
		Seed:           c.Optimizer.Seed,
	}
}

// NewOptimizer instantiates the configured algorithm.
func (c *Config) NewOptimizer() (opt.Optimizer, error) {
	switch c.Optimizer.Algorithm {
	case AlgorithmNelderMead:
		return opt.NewNelderMead(c.Optimizer.Convergence), nil
	case AlgorithmMayfly:
		return opt.NewMayfly(c.Optimizer.PopSize, c.Optimizer.Convergence)
	default:
		return nil, fmt.Errorf("unknown optimizer algorithm %q", c.Optimizer.Algorithm)
	}
}

// NewEvaluator returns the analytical model, or a simulator-backed
// evaluator over the configured runner when simulate is set.
func (c *Config) NewEvaluator(model *cell.Model, simulate bool) (cell.Evaluator, error) {
	if !simulate {
		return model, nil
	}
	runner, err := spice.NewRunner(c.Simulator.RunnerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to set up simulator: %w", err)
	}
	return spice.NewEvaluator(runner, model, c.Simulator.Measures)
}
