package main

import (
	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one billing sweep and exit",
		Long: `Charge every subscription that is due now, once, and print the
report. Concurrent runs are safe: each subscription is charged under its lock.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Sweep(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("due=%d charged=%d failed=%d expired=%d cancelled=%d skipped=%d errored=%d took=%s\n",
				report.Due, report.Charged, report.Failed, report.Expired,
				report.Cancelled, report.Skipped, report.Errored, report.Duration)
			return nil
		},
	}
}
