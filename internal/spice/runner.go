package spice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/invsizer/internal/metrics"
)

// DefaultTimeout bounds one simulator invocation.
const DefaultTimeout = 120 * time.Second

// diagnosticBytes is how much tool output is kept in errors.
const diagnosticBytes = 2048

// LTspiceArgs runs LTspice in batch mode; the log lands next to the netlist.
var LTspiceArgs = []string{"-b", "{netlist}"}

// NgspiceArgs runs ngspice in batch mode with an explicit log file.
var NgspiceArgs = []string{"-b", "-o", "{log}", "{netlist}"}

// RunnerConfig configures a process-backed Simulator.
type RunnerConfig struct {
	// Executable is the simulator binary (looked up in PATH if not absolute).
	Executable string `json:"executable" yaml:"executable"`

	// Args are passed to the executable after placeholder expansion:
	// {netlist}, {log} and {dir}.
	Args []string `json:"args" yaml:"args"`

	// Netlist is the parameterized circuit description.
	Netlist string `json:"netlist" yaml:"netlist"`

	// Includes are copied into every working directory (technology
	// libraries referenced by .include/.lib).
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// WorkRoot is where per-invocation directories are created
	// (os.TempDir when empty).
	WorkRoot string `json:"workRoot,omitempty" yaml:"workRoot,omitempty"`

	// Timeout bounds one invocation; DefaultTimeout when zero.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// KeepWork leaves working directories in place for inspection.
	KeepWork bool `json:"keepWork,omitempty" yaml:"keepWork,omitempty"`
}

// Runner invokes an external SPICE simulator. Every call uses its own
// working directory, so one Runner may serve concurrent callers.
type Runner struct {
	cfg      RunnerConfig
	template []byte
	includes map[string][]byte
}

// NewRunner loads the netlist template and include files.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Executable == "" {
		return nil, fmt.Errorf("simulator executable cannot be empty")
	}
	if cfg.Netlist == "" {
		return nil, fmt.Errorf("netlist path cannot be empty")
	}
	if len(cfg.Args) == 0 {
		cfg.Args = LTspiceArgs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	template, err := os.ReadFile(cfg.Netlist)
	if err != nil {
		return nil, fmt.Errorf("failed to read netlist: %w", err)
	}

	includes := make(map[string][]byte, len(cfg.Includes))
	for _, inc := range cfg.Includes {
		data, err := os.ReadFile(inc)
		if err != nil {
			return nil, fmt.Errorf("failed to read include %s: %w", inc, err)
		}
		includes[filepath.Base(inc)] = data
	}

	return &Runner{cfg: cfg, template: template, includes: includes}, nil
}

// Simulate writes the overrides into a fresh copy of the netlist, runs the
// simulator and parses every measurement from its log.
func (r *Runner) Simulate(ctx context.Context, overrides map[string]float64) (Measurements, error) {
	start := time.Now()
	defer func() {
		metrics.SimulatorSeconds.Observe(time.Since(start).Seconds())
	}()

	dir, err := r.prepare(overrides)
	if err != nil {
		metrics.SimulatorFailures.WithLabelValues("setup").Inc()
		return nil, &SimulationError{Reason: "failed to prepare working directory", Err: err}
	}
	if !r.cfg.KeepWork {
		defer os.RemoveAll(dir)
	}

	netlistPath := filepath.Join(dir, filepath.Base(r.cfg.Netlist))
	logPath := strings.TrimSuffix(netlistPath, filepath.Ext(netlistPath)) + ".log"

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Executable, r.expandArgs(netlistPath, logPath, dir)...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Debug("Running simulator", "executable", r.cfg.Executable, "dir", dir, "overrides", overrides)

	runErr := cmd.Run()
	logData, readErr := os.ReadFile(logPath)

	if runErr != nil {
		diag := tail(output.Bytes(), diagnosticBytes)
		if readErr == nil {
			diag = joinDiag(diag, tail(logData, diagnosticBytes))
		}
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			metrics.SimulatorFailures.WithLabelValues("timeout").Inc()
			return nil, &SimulationError{
				Reason:     fmt.Sprintf("timed out after %s", r.cfg.Timeout),
				Diagnostic: diag,
				Err:        runCtx.Err(),
			}
		case ctx.Err() != nil:
			metrics.SimulatorFailures.WithLabelValues("cancelled").Inc()
			return nil, &SimulationError{Reason: "cancelled", Err: ctx.Err()}
		default:
			metrics.SimulatorFailures.WithLabelValues("exec").Inc()
			return nil, &SimulationError{Reason: "simulator exited with error", Diagnostic: diag, Err: runErr}
		}
	}
	if readErr != nil {
		metrics.SimulatorFailures.WithLabelValues("log").Inc()
		return nil, &SimulationError{
			Reason:     "simulator produced no log",
			Diagnostic: tail(output.Bytes(), diagnosticBytes),
			Err:        readErr,
		}
	}

	text, err := DecodeLog(logData)
	if err != nil {
		metrics.SimulatorFailures.WithLabelValues("log").Inc()
		return nil, &SimulationError{Reason: "unreadable log " + logPath, Err: err}
	}

	found, failed, err := ParseLog(text)
	if err != nil {
		metrics.SimulatorFailures.WithLabelValues("log").Inc()
		return nil, &SimulationError{Reason: "unparsable log " + logPath, Err: err}
	}
	for _, name := range failed {
		slog.Debug("Simulator reported failed measure", "name", name, "log", logPath)
	}
	return found, nil
}

func (r *Runner) prepare(overrides map[string]float64) (string, error) {
	dir, err := os.MkdirTemp(r.cfg.WorkRoot, "sim-*")
	if err != nil {
		return "", err
	}
	netlist := SetParams(r.template, overrides)
	if err := os.WriteFile(filepath.Join(dir, filepath.Base(r.cfg.Netlist)), netlist, 0644); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	for name, data := range r.includes {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func (r *Runner) expandArgs(netlist, log, dir string) []string {
	repl := strings.NewReplacer("{netlist}", netlist, "{log}", log, "{dir}", dir)
	args := make([]string, len(r.cfg.Args))
	for i, a := range r.cfg.Args {
		args[i] = repl.Replace(a)
	}
	return args
}

func joinDiag(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
