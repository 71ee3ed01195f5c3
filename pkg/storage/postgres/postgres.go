// Package postgres implements the catalog, subscription, payment, webhook
// and queue stores on PostgreSQL with pgx/v5. The schema ships as embedded
// goose migrations; apply them with pg.Migrate(ctx, pool, cfg, Migrations,
// MigrationsDir, log).
package postgres

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations holds the goose migrations under MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

// DB is the part of pgxpool.Pool and pgx.Tx the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Stores bundles every store on one pool.
type Stores struct {
	Plans         *PlanStore
	Subscriptions *SubscriptionStore
	Attempts      *AttemptStore
	Webhooks      *WebhookStore
	Queue         *QueueStorage
}

func New(pool *pgxpool.Pool) *Stores {
	if pool == nil {
		panic("postgres: pool is required")
	}
	return &Stores{
		Plans:         NewPlanStore(pool),
		Subscriptions: NewSubscriptionStore(pool),
		Attempts:      NewAttemptStore(pool),
		Webhooks:      NewWebhookStore(pool),
		Queue:         NewQueueStorage(pool),
	}
}

// limitOrAll maps a non-positive limit to no limit.
func limitOrAll(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}
