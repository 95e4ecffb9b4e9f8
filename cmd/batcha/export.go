package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		outDir      string
		compression string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "export FILE [PATH]",
		Short: "Write every table and array at or below PATH to Parquet files",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := container.RootPath
			if len(args) == 2 {
				root = args[1]
			}

			opts := export.DefaultOptions()
			if outDir == "" {
				outDir = a.cfg.Export.Dir
			}
			if compression == "" {
				compression = a.cfg.Export.Compression
			}
			c, err := export.ParseCompression(compression)
			if err != nil {
				return err
			}
			opts.Compression = c
			opts.Workers = a.cfg.Export.Workers
			if workers > 0 {
				opts.Workers = workers
			}

			s, err := a.open(args[0], true)
			if err != nil {
				return err
			}
			defer s.Close()

			results, err := export.Tree(cmd.Context(), s.File(), root, outDir, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var total int
			for _, r := range results {
				fmt.Fprintf(out, "%s -> %s (%s rows)\n", r.Node, r.File, humanize.Comma(int64(r.Rows)))
				total += r.Rows
			}
			fmt.Fprintf(out, "%d files, %s rows\n", len(results), humanize.Comma(int64(total)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (overrides config)")
	cmd.Flags().StringVar(&compression, "compression", "", "parquet compression (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "files written in parallel (overrides config)")
	return cmd
}
