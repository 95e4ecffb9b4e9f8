package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/summary"
)

func newStatsCmd(a *app) *cobra.Command {
	var accuracy float64

	cmd := &cobra.Command{
		Use:   "stats FILE TABLE COLUMN",
		Short: "Summarize a numeric column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accuracy <= 0 {
				accuracy = a.cfg.Summary.Accuracy
			}

			s, err := a.open(args[0], true)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := lookup(cmd, s, args[1])
			if err != nil {
				return err
			}
			leaf, ok := container.AsTable(n)
			if !ok {
				return fmt.Errorf("%s is a %s: %w", n.Path(), n.Kind(), errors.ErrKindMismatch)
			}

			sum, err := summary.Column(cmd.Context(), s.File(), leaf, args[2], accuracy)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}

	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "relative accuracy of percentiles (overrides config)")
	return cmd
}

func printSummary(w io.Writer, s summary.Summary) {
	fmt.Fprintf(w, "count  %s\n", humanize.Comma(s.Count))
	fmt.Fprintf(w, "nulls  %s\n", humanize.Comma(s.Nulls))
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "min    %g\n", s.Min)
	fmt.Fprintf(w, "max    %g\n", s.Max)
	fmt.Fprintf(w, "sum    %g\n", s.Sum)
	fmt.Fprintf(w, "avg    %g\n", s.Avg)
	for _, p := range []struct {
		name string
		v    *float64
	}{{"p50", s.P50}, {"p90", s.P90}, {"p95", s.P95}, {"p99", s.P99}} {
		if p.v != nil {
			fmt.Fprintf(w, "%-6s %g\n", p.name, *p.v)
		}
	}
}
