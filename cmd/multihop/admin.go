package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrypster/multihop/internal/storage"
)

func newIndexesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the graph lookup indexes if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withGraph(cmd.Context(), func(store storage.Graph) error {
				if err := store.EnsureIndexes(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "indexes ensured on %s backend\n", o.cfg.Graph.Backend)
				return err
			})
		},
	}
}

func newImportCmd(o *options) *cobra.Command {
	var sample bool

	cmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Load entities and relations from a YAML graph fixture",
		Example: `  multihop import --sample
  multihop import graph.yaml --backend sqlite`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader
			switch {
			case sample && len(args) > 0:
				return errors.New("pass either a file or --sample, not both")
			case sample:
				r = bytes.NewReader(storage.SampleFixture())
			case len(args) == 1:
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			default:
				return errors.New("a fixture file or --sample is required")
			}

			return o.withGraph(cmd.Context(), func(store storage.Graph) error {
				if err := store.EnsureIndexes(cmd.Context()); err != nil {
					return err
				}
				fx, err := storage.LoadFixture(cmd.Context(), store, r)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities and %d relations\n", len(fx.Entities), len(fx.Relations))
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&sample, "sample", false, "load the bundled shareholding sample graph")
	return cmd
}
