package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/problem"
)

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List the registered benchmark problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIM\tBOUNDS\tDESCRIPTION")
			for _, name := range problem.Names() {
				p, _ := problem.Lookup(name)
				dim := fmt.Sprintf("%d", p.DefaultDim)
				if !p.Fixed {
					dim += "+"
				}
				fmt.Fprintf(w, "%s\t%s\t[%g, %g]\t%s\n", p.Name, dim, p.LowerBound, p.UpperBound, p.Description)
			}
			return w.Flush()
		},
	}
}
