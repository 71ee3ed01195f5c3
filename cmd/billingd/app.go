package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/config"
	"github.com/dmitrymomot/billing/pkg/correlation"
	"github.com/dmitrymomot/billing/pkg/gateway"
	"github.com/dmitrymomot/billing/pkg/httpserver"
	"github.com/dmitrymomot/billing/pkg/locker"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/metrics"
	"github.com/dmitrymomot/billing/pkg/notify"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/queue"
	"github.com/dmitrymomot/billing/pkg/redis"
	"github.com/dmitrymomot/billing/pkg/storage/postgres"
	"github.com/dmitrymomot/billing/pkg/subscription"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

const serviceName = "billingd"

type queueStorage interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
	queue.SchedulerRepository
}

// app holds the wired service. Fields are filled by newApp according to
// STORAGE_DRIVER and LOCK_DRIVER.
type app struct {
	cfg     appConfig
	billing billing.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	alerter notify.Alerter

	pool  *pgxpool.Pool
	redis *goredis.Client

	planStore catalog.Store
	subStore  subscription.Store
	attempts  payment.AttemptStore
	events    webhook.Store
	tasks     queueStorage
	locks     locker.Locker

	catalog       *catalog.Service
	subscriptions *subscription.Service
	engine        *billing.Engine
	enqueuer      *queue.Enqueuer

	checks  []httpserver.Check
	closers []func()
}

func newLogger(cfg appConfig) *slog.Logger {
	l := logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(correlation.LoggerExtractor()),
	)
	logger.SetAsDefault(l)
	return l
}

func newApp(ctx context.Context) (*app, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: newLogger(cfg), metrics: metrics.New()}
	if err := config.Load(&a.billing); err != nil {
		return nil, err
	}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLocker(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	return pool, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.StorageDriver {
	case driverPostgres:
		pool, err := a.connectPostgres(ctx)
		if err != nil {
			return err
		}
		stores := postgres.New(pool)
		a.planStore = stores.Plans
		a.subStore = stores.Subscriptions
		a.attempts = stores.Attempts
		a.events = stores.Webhooks
		a.tasks = stores.Queue
	default:
		a.log.Warn("using in-memory storage, state is lost on restart")
		a.planStore = catalog.NewMemoryStore()
		a.subStore = subscription.NewMemoryStore()
		a.attempts = payment.NewMemoryStore()
		a.events = webhook.NewMemoryStore()
		a.tasks = queue.NewMemoryStorage()
	}
	return nil
}

func (a *app) openLocker(ctx context.Context) error {
	switch a.cfg.LockDriver {
	case driverRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks = append(a.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		a.locks = locker.NewRedis(client)
	case driverPostgres:
		pool, err := a.connectPostgres(ctx)
		if err != nil {
			return err
		}
		a.locks = locker.NewPostgres(pool)
	default:
		a.locks = locker.NewMemory()
	}
	return nil
}

func (a *app) buildServices() error {
	var (
		gwCfg     gateway.Config
		notifyCfg notify.Config
	)
	if err := errors.Join(config.Load(&gwCfg), config.Load(&notifyCfg)); err != nil {
		return err
	}

	gw, err := gateway.New(gwCfg, gateway.WithClientLogger(a.log))
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if a.alerter, err = notify.New(notifyCfg, a.log); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	lifecycle := subscription.NewLifecycle(
		subscription.WithRetryPolicy(a.billing.RetryPolicy()),
		subscription.WithTransitionObserver(a.metrics.ObserveTransition),
	)
	charger := payment.NewCharger(gw, a.attempts,
		payment.WithTimeout(a.billing.ChargeTimeout),
		payment.WithLogger(a.log),
		payment.WithObserver(a.metrics),
	)

	a.catalog = catalog.NewService(a.planStore,
		catalog.WithUsageChecker(a.subStore),
		catalog.WithLogger(a.log))
	a.subscriptions = subscription.NewService(a.subStore, a.planStore, charger,
		subscription.WithLocker(a.locks),
		subscription.WithLockWait(a.billing.LockWait),
		subscription.WithLifecycle(lifecycle),
		subscription.WithLogger(a.log))
	a.engine = billing.NewEngine(a.subStore, a.planStore, charger, a.attempts,
		billing.WithConfig(a.billing),
		billing.WithLifecycle(lifecycle),
		billing.WithLocker(a.locks),
		billing.WithLogger(a.log),
		billing.WithAlerter(a.alerter),
		billing.WithObserver(a.metrics))

	if a.enqueuer, err = queue.NewEnqueuer(a.tasks); err != nil {
		return err
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
