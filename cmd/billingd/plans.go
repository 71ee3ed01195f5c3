package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/money"
)

func plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage the plan catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed <file>",
		Short: "Create the plans defined in a YAML file",
		Long:  "Create every plan in the file that does not exist yet. Existing plans are left untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := seedPlans(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			cmd.Printf("created %d plan(s)\n", created)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			plans, err := a.catalog.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tPRICE\tINTERVAL\tTRIAL\tACTIVE")
			for _, p := range plans {
				fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%dd\t%t\n",
					p.Code, p.Name, money.Format(p.Amount, p.Currency), p.Currency, p.Interval(), p.TrialDays, p.Active)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func seedPlans(ctx context.Context, a *app, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()

	specs, err := catalog.LoadYAML(f)
	if err != nil {
		return 0, err
	}
	return catalog.Seed(ctx, a.catalog, specs)
}
