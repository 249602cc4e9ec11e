package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/config"
	"github.com/cwbudde/invsizer/internal/search"
	"github.com/cwbudde/invsizer/internal/store"
)

var (
	optAlgorithm string
	optRuns      int
	optSeed      int64
	optMaxEvals  int
	optPopSize   int
	optNoStart   bool
	optSimulate  bool
	optRecord    bool
	optTrace     bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search the sizing space with a metaheuristic",
	Long: `Minimizes the objective over the configured bounds with mayfly or
Nelder-Mead. A bound whose lower and upper value coincide is held fixed.
The configured start point competes with the search results.`,
	RunE: runOptimize,
}

func init() {
	f := optimizeCmd.Flags()
	f.StringVar(&optAlgorithm, "algorithm", "", "Optimizer: mayfly or nelder-mead (default from config)")
	f.IntVar(&optRuns, "runs", 0, "Independent runs (default from config)")
	f.Int64Var(&optSeed, "seed", 0, "Seed of the first run (default from config)")
	f.IntVar(&optMaxEvals, "max-evals", 0, "Evaluation budget per run (default from config)")
	f.IntVar(&optPopSize, "pop", 0, "Mayfly population size (default from config)")
	f.BoolVar(&optNoStart, "no-start", false, "Do not score the configured start point")
	f.BoolVar(&optSimulate, "simulate", false, "Evaluate through the SPICE simulator")
	f.BoolVar(&optRecord, "record", true, "Save a run record under the data directory")
	f.BoolVar(&optTrace, "trace", false, "Write every evaluated candidate to the run trace")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg := *currentConfig()
	if cmd != nil {
		flags := cmd.Flags()
		if flags.Changed("algorithm") {
			cfg.Optimizer.Algorithm = optAlgorithm
		}
		if flags.Changed("runs") {
			cfg.Optimizer.Runs = optRuns
		}
		if flags.Changed("seed") {
			cfg.Optimizer.Seed = optSeed
		}
		if flags.Changed("max-evals") {
			cfg.Optimizer.MaxEvaluations = optMaxEvals
		}
		if flags.Changed("pop") {
			cfg.Optimizer.PopSize = optPopSize
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	model, err := cell.NewModel(cfg.Technology)
	if err != nil {
		return err
	}
	ev, err := cfg.NewEvaluator(model, optSimulate)
	if err != nil {
		return err
	}
	composer, err := cfg.Composer()
	if err != nil {
		return err
	}
	optimizer, err := cfg.NewOptimizer()
	if err != nil {
		return err
	}

	rec := store.NewRunRecord(store.KindOptimize, cfg.Optimizer.Algorithm, cfg.Bounds)
	rec.Settings = map[string]string{
		"runs":           strconv.Itoa(cfg.Optimizer.Runs),
		"seed":           strconv.FormatInt(cfg.Optimizer.Seed, 10),
		"maxEvaluations": strconv.Itoa(cfg.Optimizer.MaxEvaluations),
		"simulate":       strconv.FormatBool(optSimulate),
	}
	if cfg.Optimizer.Algorithm == config.AlgorithmMayfly {
		rec.Settings["popSize"] = strconv.Itoa(cfg.Optimizer.PopSize)
	}

	m := &search.Metaheuristic{
		Composer:  composer,
		Evaluator: ev,
		Optimizer: optimizer,
	}
	if !optNoStart {
		start := cfg.Start
		m.Start = &start
	}

	var st *store.FSStore
	if optRecord {
		st, err = store.NewFSStore(dataDir())
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
	}
	if optRecord && optTrace {
		tw, err := store.NewTraceWriter(st.BaseDir(), rec.RunID)
		if err != nil {
			return err
		}
		defer tw.Close()
		m.OnCandidate = func(run int, c search.Candidate) {
			if err := tw.Write(store.CandidateEntry(c)); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		}
	}

	slog.Info("Starting optimization",
		"run_id", rec.RunID,
		"algorithm", cfg.Optimizer.Algorithm,
		"runs", cfg.Optimizer.Runs,
		"seed", cfg.Optimizer.Seed,
	)

	out, err := m.Optimize(commandContext(cmd), cfg.Bounds, cfg.Budget())
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	rec.SetOutcome(out)

	w := stdout(cmd)
	if out.Start != nil {
		printCandidate(w, "Start point", *out.Start)
		fmt.Fprintln(w)
	}
	printRuns(cmd, out.Runs)
	printCandidate(w, "Best sizing", out.Best)
	fmt.Fprintf(w, "\n%d evaluations in %s, converged: %v\n", out.Evaluations, out.Elapsed.Round(time.Millisecond), out.Converged)
	if out.Start != nil && out.Start.Objective > 0 {
		gain := 100 * (out.Start.Objective - out.Best.Objective) / out.Start.Objective
		fmt.Fprintf(w, "Improvement over start point: %.2f%%\n", gain)
	}

	if st != nil {
		if err := st.SaveRun(rec); err != nil {
			return fmt.Errorf("failed to save run record: %w", err)
		}
		fmt.Fprintf(w, "Run recorded as %s\n", rec.RunID)
	}
	return nil
}

func printRuns(cmd *cobra.Command, runs []search.RunSummary) {
	if len(runs) < 2 {
		return
	}
	w := tabwriter.NewWriter(stdout(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSEED\tOBJECTIVE\tEVALS\tCONVERGED\tSIZING")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%d\t%.6g\t%d\t%v\t%s\n",
			r.Run, r.Seed, r.Best.Objective, r.Evaluations, r.Converged, r.Best.Sizing)
	}
	fmt.Fprintln(w)
	w.Flush()
}
