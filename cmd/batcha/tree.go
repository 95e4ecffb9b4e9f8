package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xtxerr/batcha/internal/container"
)

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree FILE [PATH]",
		Short: "List the groups, tables and arrays of a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := container.RootPath
			if len(args) == 2 {
				root = args[1]
			}

			s, err := a.open(args[0], true)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if info, err := os.Stat(args[0]); err == nil {
				fmt.Fprintf(out, "%s (%s)\n", args[0], humanize.Bytes(uint64(info.Size())))
			}

			return s.File().View(cmd.Context(), func(tx *container.Txn) error {
				start, err := tx.Lookup(root)
				if err != nil {
					return err
				}
				depth := len(container.Segments(start.Path()))
				return tx.Walk(start, func(n container.Node) error {
					return printNode(out, tx, n, len(container.Segments(n.Path()))-depth)
				})
			})
		},
	}
}

func printNode(w io.Writer, tx *container.Txn, n container.Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	name := n.Name()

	switch leaf := n.(type) {
	case *container.Group:
		if n.Path() == container.RootPath {
			fmt.Fprintln(w, container.RootPath)
			return nil
		}
		fmt.Fprintf(w, "%s%s/\n", indent, name)
	case *container.TableLeaf:
		rows, err := tx.NumRows(leaf)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s%s  table %s  %s rows\n", indent, name, leaf.Schema(), humanize.Comma(int64(rows)))
	case *container.ArrayLeaf:
		rows, err := tx.NumRows(leaf)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s%s  array %s  %s entries\n", indent, name, leaf.Elem(), humanize.Comma(int64(rows)))
	}
	return nil
}
