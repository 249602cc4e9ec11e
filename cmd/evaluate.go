package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/search"
)

var (
	evalWn       float64
	evalWp       float64
	evalL        float64
	evalSimulate bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a single sizing",
	Long: `Evaluates delay, power, area and the objective of one sizing with the
analytical model, or with the configured simulator when --simulate is set.
Dimensions default to the configured start point.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().Float64Var(&evalWn, "wn", 0, "NMOS width in µm")
	evaluateCmd.Flags().Float64Var(&evalWp, "wp", 0, "PMOS width in µm")
	evaluateCmd.Flags().Float64Var(&evalL, "l", 0, "Channel length in µm")
	evaluateCmd.Flags().BoolVar(&evalSimulate, "simulate", false, "Use the SPICE simulator instead of the analytical model")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()

	s := cfg.Start
	if evalWn != 0 {
		s.Wn = evalWn
	}
	if evalWp != 0 {
		s.Wp = evalWp
	}
	if evalL != 0 {
		s.L = evalL
	}

	model, err := cell.NewModel(cfg.Technology)
	if err != nil {
		return err
	}
	ev, err := cfg.NewEvaluator(model, evalSimulate)
	if err != nil {
		return err
	}
	composer, err := cfg.Composer()
	if err != nil {
		return err
	}

	e, err := composer.Evaluate(commandContext(cmd), ev, s)
	if err != nil {
		return fmt.Errorf("evaluation of %s failed: %w", s, err)
	}
	slog.Debug("Evaluated sizing", "sizing", s.String(), "objective", e.Objective, "feasible", e.Feasible)

	printCandidate(stdout(cmd), "Sizing", search.NewCandidate(s, e))
	return nil
}
