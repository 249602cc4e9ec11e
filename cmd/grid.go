package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/config"
	"github.com/cwbudde/invsizer/internal/search"
	"github.com/cwbudde/invsizer/internal/store"
)

var (
	gridStepsWn     int
	gridStepsWp     int
	gridWorkers     int
	gridAbort       bool
	gridAnalytical  bool
	gridDryRun      bool
	gridResultsFile string
	gridRecord      bool
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Exhaustive grid search through the SPICE simulator",
	Long: `Simulates every point of a Wn x Wp lattice at fixed L and reports the
sizing with the lowest objective. Points outside the Wp/Wn window are
skipped without simulation. Failed simulations are logged and skipped
unless --abort-on-error is set.`,
	RunE: runGrid,
}

func init() {
	f := gridCmd.Flags()
	f.IntVar(&gridStepsWn, "steps-wn", 0, "Lattice points along Wn (default from config)")
	f.IntVar(&gridStepsWp, "steps-wp", 0, "Lattice points along Wp (default from config)")
	f.IntVar(&gridWorkers, "workers", 0, "Concurrent simulator invocations (default from config)")
	f.BoolVar(&gridAbort, "abort-on-error", false, "Stop at the first failed simulation")
	f.BoolVar(&gridAnalytical, "analytical", false, "Score points with the analytical model instead of the simulator")
	f.BoolVar(&gridDryRun, "dry-run", false, "Only print the planned number of simulations")
	f.StringVar(&gridResultsFile, "results-file", "", "Write the best Wn/Wp/L as key=value lines")
	f.BoolVar(&gridRecord, "record", true, "Save a run record and trace under the data directory")
	rootCmd.AddCommand(gridCmd)
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg := *currentConfig()
	if cmd != nil {
		flags := cmd.Flags()
		if flags.Changed("steps-wn") {
			cfg.Grid.Steps.Wn = gridStepsWn
		}
		if flags.Changed("steps-wp") {
			cfg.Grid.Steps.Wp = gridStepsWp
		}
		if flags.Changed("workers") {
			cfg.Grid.Workers = gridWorkers
		}
		if flags.Changed("abort-on-error") {
			cfg.Grid.AbortOnError = gridAbort
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	composer, err := cfg.Composer()
	if err != nil {
		return err
	}
	composer.Bounds = cfg.Grid.Bounds

	w := stdout(cmd)
	if gridDryRun {
		planned, feasible, err := planGrid(&cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d lattice points, %d simulations (%d outside the Wp/Wn window)\n",
			planned, feasible, planned-feasible)
		return nil
	}

	model, err := cell.NewModel(cfg.Technology)
	if err != nil {
		return err
	}
	ev, err := cfg.NewEvaluator(model, !gridAnalytical)
	if err != nil {
		return err
	}

	rec := store.NewRunRecord(store.KindGrid, "grid", cfg.Grid.Bounds)
	rec.Settings = map[string]string{
		"stepsWn":    strconv.Itoa(cfg.Grid.Steps.Wn),
		"stepsWp":    strconv.Itoa(cfg.Grid.Steps.Wp),
		"workers":    strconv.Itoa(cfg.Grid.Workers),
		"analytical": strconv.FormatBool(gridAnalytical),
	}

	var st *store.FSStore
	var tw *store.TraceWriter
	if gridRecord {
		st, err = store.NewFSStore(dataDir())
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		tw, err = store.NewTraceWriter(st.BaseDir(), rec.RunID)
		if err != nil {
			return err
		}
		defer tw.Close()
	}

	g := &search.Grid{
		Composer:  composer,
		Evaluator: ev,
		Options: search.GridOptions{
			Workers:      cfg.Grid.Workers,
			AbortOnError: cfg.Grid.AbortOnError,
			OnPoint: func(p search.PointOutcome) {
				logPoint(p)
				if tw != nil {
					writePoint(tw, p)
				}
			},
		},
	}

	report, searchErr := g.Search(commandContext(cmd), cfg.Grid.Bounds, cfg.Grid.Steps)
	if report == nil {
		return fmt.Errorf("grid search failed: %w", searchErr)
	}

	fmt.Fprintf(w, "Grid %dx%d: %d points, %d outside the Wp/Wn window, %d simulated, %d failed in %s\n",
		cfg.Grid.Steps.Wn, cfg.Grid.Steps.Wp,
		report.Planned, report.Planned-report.Feasible, report.Evaluated, len(report.Failures),
		report.Elapsed.Round(time.Millisecond))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.Sizing, firstLine(f.Error))
	}

	rec.SetGridReport(report)
	if report.Found {
		fmt.Fprintln(w)
		printCandidate(w, "Best sizing", report.Best)
	} else {
		fmt.Fprintln(w, "No simulation succeeded. Check the simulator configuration.")
	}

	if st != nil {
		if err := st.SaveRun(rec); err != nil {
			return fmt.Errorf("failed to save run record: %w", err)
		}
		fmt.Fprintf(w, "Run recorded as %s\n", rec.RunID)
	}
	if report.Found && gridResultsFile != "" {
		if err := writeResultsFile(gridResultsFile, report.Best.Sizing); err != nil {
			return err
		}
	}

	if searchErr != nil {
		return fmt.Errorf("grid search failed: %w", searchErr)
	}
	return nil
}

// planGrid reports the lattice size and how many points need a simulation.
func planGrid(cfg *config.Config) (planned, feasible int, err error) {
	composer, err := cfg.Composer()
	if err != nil {
		return 0, 0, err
	}
	composer.Bounds = cfg.Grid.Bounds

	points, err := search.Lattice(cfg.Grid.Bounds, cfg.Grid.Steps)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range points {
		if composer.Check(s) == nil {
			feasible++
		}
	}
	return len(points), feasible, nil
}

func logPoint(p search.PointOutcome) {
	switch {
	case p.Err != nil:
		// failures are logged by the driver
	case p.Candidate != nil:
		slog.Info("Grid point simulated",
			"index", p.Index,
			"sizing", p.Sizing.String(),
			"delay_ns", p.Candidate.Result.Delay*1e9,
			"objective", p.Candidate.Objective,
		)
	default:
		// skipped points are logged by the driver
	}
}

func writePoint(tw *store.TraceWriter, p search.PointOutcome) {
	entry, ok := store.PointEntry(p)
	if !ok {
		return
	}
	if err := tw.Write(entry); err != nil {
		slog.Warn("Failed to write trace entry", "error", err)
	}
}

func writeResultsFile(path string, s cell.Sizing) error {
	content := fmt.Sprintf("Wn=%g\nWp=%g\nL=%g\n", s.Wn, s.Wp, s.L)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	slog.Info("Results written", "path", path)
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
