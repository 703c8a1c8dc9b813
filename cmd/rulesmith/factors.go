package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-health/rulesmith/internal/factors"
)

var factorsJSON bool

var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "List the factor taxonomy",
	RunE: func(cmd *cobra.Command, args []string) error {
		categories := factors.DefaultTaxonomy().Categories()
		if factorsJSON {
			return writeIndented(cmd.OutOrStdout(), categories)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tKEY\tTYPE\tALLOWED VALUES")
		for _, c := range categories {
			for _, d := range c.Factors {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, d.Key, d.DataType, strings.Join(d.AllowedValues, ", "))
			}
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(factorsCmd)
	factorsCmd.Flags().BoolVar(&factorsJSON, "json", false, "print the taxonomy as JSON")
}
