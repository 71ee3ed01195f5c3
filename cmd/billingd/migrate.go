package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billing/pkg/config"
	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/storage/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply the embedded goose migrations to the database in PG_CONN_URL.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var appCfg appConfig
			var cfg pg.Config
			if err := config.Load(&appCfg); err != nil {
				return err
			}
			if err := config.Load(&cfg); err != nil {
				return err
			}
			log := newLogger(appCfg)

			pool, err := pg.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			return pg.Migrate(ctx, pool, cfg, postgres.Migrations, postgres.MigrationsDir, log)
		},
	}
}
