// Package pg bootstraps the PostgreSQL side of the billing service on top
// of pgx/v5 and goose/v3.
//
// Config is read from PG_* environment variables. Connect opens a pgxpool
// and retries until the database answers a ping. Migrate applies goose
// migrations from an fs.FS, usually an embedded directory, through the
// pool. Healthcheck returns a probe for the readiness endpoint.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, postgres.Migrations, postgres.MigrationsDir, slog.Default()); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError, IsForeignKeyViolationError and IsNotFoundError
// classify pgx errors so stores can map them to domain sentinels.
package pg
