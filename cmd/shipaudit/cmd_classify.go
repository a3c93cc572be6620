package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/shipaudit/internal/domain/ontime"
)

func newClassifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "classify <service-level> <ship-date> <ship-time> <delivery-date> <delivery-time>",
		Short:   "Classify one delivery without looking anything up",
		Example: `  shipaudit classify "2nd Day Air" 01/06/2025 "10:00 A.M." 01/08/2025 "2:00 P.M."`,
		Args:    cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := c.cfg.Catalog()
			if err != nil {
				return err
			}
			verdict, err := ontime.New(ontime.WithCatalog(catalog)).Classify(args[0], args[1], args[2], args[3], args[4])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), verdict)
			return nil
		},
	}
}

func newCatalogCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the configured service levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := c.cfg.Catalog()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE LEVEL\tEARLIEST\tLATEST\tDAYS")
			for _, name := range catalog.Names() {
				ct, err := catalog.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", ct.Name, ct.Earliest, ct.Latest, ct.DaysLimit)
			}
			return tw.Flush()
		},
	}
}
