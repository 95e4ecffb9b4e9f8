package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
)

func newAttrsCmd(a *app) *cobra.Command {
	var del []string

	cmd := &cobra.Command{
		Use:   "attrs FILE PATH [KEY=VALUE...]",
		Short: "Show or set the attributes of a node",
		Long: `Without KEY=VALUE arguments, attrs prints the attributes of the node at
PATH. Otherwise each pair is stored on the node, and keys given with
--delete are removed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			readonly := len(sets) == 0 && len(del) == 0

			s, err := a.open(args[0], readonly)
			if err != nil {
				return err
			}
			defer s.Close()

			f := s.File()
			if !readonly {
				err := f.Update(cmd.Context(), func(tx *container.Txn) error {
					n, err := tx.Lookup(args[1])
					if err != nil {
						return err
					}
					for _, kv := range sets {
						if err := tx.SetAttr(n, kv[0], kv[1]); err != nil {
							return err
						}
					}
					for _, k := range del {
						if err := tx.DelAttr(n, k); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
				if err := f.Flush(cmd.Context()); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			return f.View(cmd.Context(), func(tx *container.Txn) error {
				n, err := tx.Lookup(args[1])
				if err != nil {
					return err
				}
				attrs, err := tx.Attrs(n)
				if err != nil {
					return err
				}
				keys, err := tx.AttrKeys(n)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintf(out, "%s=%s\n", k, attrs[k])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&del, "delete", nil, "attribute keys to remove")
	return cmd
}

func parseAssignments(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("attribute %q: want KEY=VALUE: %w", arg, errors.ErrInvalidName)
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}
