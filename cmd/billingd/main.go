// Command billingd runs the subscription billing service: the HTTP API, the
// webhook queue worker and the periodic billing sweep.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billing/pkg/config"
)

var version = "dev"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "billingd",
		Short:         "Subscription billing engine and webhook pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(plansCmd())
	return root
}
