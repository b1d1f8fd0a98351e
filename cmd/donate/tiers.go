package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ln-donations/internal/models"
)

func tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List donation tiers and their suggested amounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTiers(cmd.OutOrStdout())
		},
	}
}

func printTiers(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tAMOUNT\tPERK")
	for _, tier := range models.Tiers {
		info, _ := tier.Info()
		amount := "any"
		if !tier.CustomAmount() {
			amount = "$" + info.SuggestedAmount.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", tier, amount, info.Perk)
	}
	return tw.Flush()
}
