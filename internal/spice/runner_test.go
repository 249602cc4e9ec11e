package spice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable fake simulator.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake simulator needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakespice.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeNetlist(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inverter_cmos.cir")
	if err := os.WriteFile(path, []byte(inverterNetlist), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

var testOverrides = map[string]float64{"Wn": 2e-6, "Wp": 6e-6, "L": 0.35e-6}

func TestRunnerSimulate(t *testing.T) {
	copyPath := filepath.Join(t.TempDir(), "seen.cir")
	script := writeScript(t, `
netlist="$2"
log="${netlist%.*}.log"
cp "$netlist" "$3"
test -f "$(dirname "$netlist")/5827_035.lib" || exit 4
echo "tphl=1.5e-10 FROM 1e-08 TO 1.015e-08" > "$log"
echo "tplh=2.5e-10 FROM 2e-08 TO 2.025e-08" >> "$log"
`)
	lib := filepath.Join(t.TempDir(), "5827_035.lib")
	if err := os.WriteFile(lib, []byte("* models\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRunner(RunnerConfig{
		Executable: script,
		Args:       []string{"-b", "{netlist}", copyPath},
		Netlist:    writeNetlist(t),
		Includes:   []string{lib},
		WorkRoot:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	meas, err := r.Simulate(context.Background(), testOverrides)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if v, _ := meas.Get("tphl"); v != 1.5e-10 {
		t.Errorf("tphl = %g, want 1.5e-10", v)
	}
	if v, _ := meas.Get("tplh"); v != 2.5e-10 {
		t.Errorf("tplh = %g, want 2.5e-10", v)
	}

	seen, err := os.ReadFile(copyPath)
	if err != nil {
		t.Fatalf("simulator did not see netlist: %v", err)
	}
	if !strings.Contains(string(seen), ".param Wn=2u Wp=6u") {
		t.Errorf("overrides not applied:\n%s", seen)
	}
}

func TestRunnerIsolatesWorkDirs(t *testing.T) {
	script := writeScript(t, `
netlist="$2"
echo "tphl=1e-10" > "${netlist%.*}.log"
echo "tplh=1e-10" >> "${netlist%.*}.log"
`)
	root := t.TempDir()
	r, err := NewRunner(RunnerConfig{Executable: script, Netlist: writeNetlist(t), WorkRoot: root})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Simulate(context.Background(), testOverrides); err != nil {
			t.Fatalf("Simulate %d failed: %v", i, err)
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected working directories to be removed, found %d", len(entries))
	}
}

func TestRunnerFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		timeout time.Duration
		diag    string
	}{
		{name: "non-zero exit", script: "echo 'syntax error in netlist' >&2\nexit 2\n", diag: "syntax error"},
		{name: "no log written", script: "exit 0\n"},
		{name: "timeout", script: "exec sleep 5\n", timeout: 100 * time.Millisecond},
		{
			name:   "oversized log line",
			script: "log=\"${2%.*}.log\"\nhead -c 2000000 /dev/zero | tr '\\0' x > \"$log\"\necho >> \"$log\"\necho 'tphl=1e-10' >> \"$log\"\n",
			diag:   "unparsable log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRunner(RunnerConfig{
				Executable: writeScript(t, tt.script),
				Netlist:    writeNetlist(t),
				WorkRoot:   t.TempDir(),
				Timeout:    tt.timeout,
			})
			if err != nil {
				t.Fatal(err)
			}
			_, err = r.Simulate(context.Background(), testOverrides)
			if !errors.Is(err, ErrSimulationFailed) {
				t.Fatalf("expected ErrSimulationFailed, got %v", err)
			}
			if tt.diag != "" && !strings.Contains(err.Error(), tt.diag) {
				t.Errorf("diagnostic %q missing from %q", tt.diag, err.Error())
			}
		})
	}
}

func TestRunnerMissingExecutable(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		Executable: filepath.Join(t.TempDir(), "no-such-simulator"),
		Netlist:    writeNetlist(t),
		WorkRoot:   t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Simulate(context.Background(), testOverrides); !errors.Is(err, ErrSimulationFailed) {
		t.Errorf("expected ErrSimulationFailed, got %v", err)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	if _, err := NewRunner(RunnerConfig{Netlist: "x.cir"}); err == nil {
		t.Error("expected error for empty executable")
	}
	if _, err := NewRunner(RunnerConfig{Executable: "ltspice"}); err == nil {
		t.Error("expected error for empty netlist")
	}
	if _, err := NewRunner(RunnerConfig{Executable: "ltspice", Netlist: filepath.Join(t.TempDir(), "missing.cir")}); err == nil {
		t.Error("expected error for unreadable netlist")
	}
}
