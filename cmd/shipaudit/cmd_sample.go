package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/shipaudit/internal/samplebatch"
)

func newSampleCmd(c *cli) *cobra.Command {
	var (
		count int
		seed  uint64
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a synthetic batch and a matching tracking fixture",
		Example: `  shipaudit sample --count 50 --dir demo
  shipaudit run --input demo/batch.csv --output demo/results.csv --fixture demo/fixture.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := c.cfg.Catalog()
			if err != nil {
				return err
			}
			s, err := samplebatch.Generate(cmd.Context(), samplebatch.Config{
				Count:   count,
				Seed:    seed,
				Catalog: catalog,
			})
			if err != nil {
				return err
			}
			batch, fix, err := s.Write(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch:   %s\nfixture: %s\n", batch, fix)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 24, "number of shipments")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "generator seed")
	cmd.Flags().StringVar(&dir, "dir", ".", "output directory")
	return cmd
}
