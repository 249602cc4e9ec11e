package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/invsizer/internal/cell"
	"github.com/cwbudde/invsizer/internal/search"
)

// stdout returns the command's output, or os.Stdout when cmd is nil.
func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

// printCandidate writes one scored sizing in reporting units.
func printCandidate(out io.Writer, title string, c search.Candidate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "  Wn\t%.4g µm\n", c.Sizing.Wn)
	fmt.Fprintf(w, "  Wp\t%.4g µm\n", c.Sizing.Wp)
	fmt.Fprintf(w, "  L\t%.4g µm\n", c.Sizing.L)
	fmt.Fprintf(w, "  Wp/Wn\t%.3f\n", c.Sizing.Ratio())
	printResult(w, c.Result)
	fmt.Fprintf(w, "  Objective\t%.6g\n", c.Objective)
	if !c.Feasible {
		fmt.Fprintf(w, "  Infeasible\t%s\n", c.Reason)
	}
	w.Flush()
}

func printResult(w io.Writer, r cell.Result) {
	if r.TpHL > 0 || r.TpLH > 0 {
		fmt.Fprintf(w, "  tpHL / tpLH\t%.4g / %.4g ns\n", r.TpHL*1e9, r.TpLH*1e9)
	}
	fmt.Fprintf(w, "  Delay\t%.4g ns\n", r.Delay*1e9)
	if r.PowerDyn > 0 || r.PowerStatic > 0 {
		fmt.Fprintf(w, "  Power\t%.4g µW (dynamic %.4g, static %.4g)\n", r.Power*1e6, r.PowerDyn*1e6, r.PowerStatic*1e6)
	} else {
		fmt.Fprintf(w, "  Power\t%.4g µW\n", r.Power*1e6)
	}
	fmt.Fprintf(w, "  Area\t%.4g µm²\n", r.Area)
}
