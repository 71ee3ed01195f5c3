package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billing/pkg/api"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/config"
	"github.com/dmitrymomot/billing/pkg/httpserver"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/queue"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, queue worker and billing scheduler",
		Long: `Run the HTTP API, the queue worker that processes webhook events and
billing sweeps, and the scheduler that enqueues a sweep every
BILLING_SWEEP_INTERVAL. SIGINT or SIGTERM drains all three.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		httpCfg    httpserver.Config
		queueCfg   queue.Config
		webhookCfg webhook.Config
	)
	if err := errors.Join(config.Load(&httpCfg), config.Load(&queueCfg), config.Load(&webhookCfg)); err != nil {
		return err
	}

	if a.cfg.PlansFile != "" {
		if _, err := seedPlans(ctx, a, a.cfg.PlansFile); err != nil {
			return err
		}
	}

	verifier, err := webhook.NewVerifier(webhookCfg)
	if err != nil {
		return fmt.Errorf("webhook verifier: %w", err)
	}
	hookOpts := []webhook.Option{
		webhook.WithConfig(webhookCfg),
		webhook.WithLogger(a.log),
		webhook.WithObserver(a.metrics),
		webhook.WithAlerter(a.alerter),
	}
	pipeline := webhook.NewPipeline(a.events, verifier, a.enqueuer, hookOpts...)
	dispatcher := webhook.NewDispatcher()
	webhook.RegisterBillingHandlers(dispatcher, a.engine, a.subscriptions)
	processor := webhook.NewProcessor(a.events, dispatcher, a.enqueuer, hookOpts...)

	worker, err := queue.NewWorker(a.tasks,
		queue.WithWorkerConfig(queueCfg),
		queue.WithWorkerLogger(a.log),
		queue.WithTaskObserver(a.metrics.ObserveTask))
	if err != nil {
		return err
	}
	if err := worker.RegisterHandlers(processor.Handler(), a.engine.SweepHandler()); err != nil {
		return err
	}

	scheduler, err := queue.NewScheduler(a.tasks,
		queue.WithCheckInterval(queueCfg.SchedulerInterval),
		queue.WithSchedulerLogger(a.log))
	if err != nil {
		return err
	}
	if err := scheduler.AddTask(billing.SweepTaskName, queue.EveryInterval(a.billing.SweepInterval),
		queue.WithTaskPriority(queue.PriorityHigh)); err != nil {
		return err
	}

	router := api.NewRouter(a.subscriptions, a.catalog, pipeline,
		api.WithLogger(a.log),
		api.WithMetrics(a.metrics),
		api.WithReadinessChecks(a.checks...),
		api.WithMaxWebhookBytes(webhookCfg.MaxBodyBytes))
	server := httpserver.New(httpCfg, httpserver.WithLogger(a.log))

	a.log.InfoContext(ctx, "billing service starting",
		logger.Component("serve"),
		slog.String("storage", a.cfg.StorageDriver),
		slog.String("locks", a.cfg.LockDriver))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, router) })
	g.Go(worker.Run(ctx))
	g.Go(scheduler.Run(ctx))
	return g.Wait()
}
