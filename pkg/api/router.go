package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/correlation"
	"github.com/dmitrymomot/billing/pkg/httpserver"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/proration"
	"github.com/dmitrymomot/billing/pkg/subscription"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

// SubscriptionService is implemented by *subscription.Service.
type SubscriptionService interface {
	Create(ctx context.Context, req subscription.CreateRequest) (subscription.Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (subscription.Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]subscription.Subscription, error)
	PreviewChange(ctx context.Context, id uuid.UUID, newPlanCode string) (proration.Result, error)
	ChangePlan(ctx context.Context, id uuid.UUID, req subscription.UpdateRequest) (subscription.Subscription, proration.Result, error)
	Cancel(ctx context.Context, id uuid.UUID, atPeriodEnd bool) (subscription.Subscription, error)
	Pause(ctx context.Context, id uuid.UUID) (subscription.Subscription, error)
	Resume(ctx context.Context, id uuid.UUID) (subscription.Subscription, error)
	UpdatePaymentMethod(ctx context.Context, id uuid.UUID, paymentMethodID string) (subscription.Subscription, error)
}

// PlanService is implemented by *catalog.Service.
type PlanService interface {
	CreatePlan(ctx context.Context, spec catalog.Spec) (catalog.Plan, error)
	GetPlan(ctx context.Context, code string) (catalog.Plan, error)
	ListActive(ctx context.Context) ([]catalog.Plan, error)
	ListAll(ctx context.Context) ([]catalog.Plan, error)
	Activate(ctx context.Context, code string) error
	Deactivate(ctx context.Context, code string) error
	Delete(ctx context.Context, code string) error
}

// WebhookService is implemented by *webhook.Pipeline.
type WebhookService interface {
	Receive(ctx context.Context, header http.Header, payload []byte) (webhook.Receipt, error)
	Replay(ctx context.Context, id uuid.UUID) (webhook.Event, error)
	Get(ctx context.Context, id uuid.UUID) (webhook.Event, error)
	ListByStatus(ctx context.Context, status webhook.Status, limit int) ([]webhook.Event, error)
}

type router struct {
	subs     SubscriptionService
	plans    PlanService
	webhooks WebhookService

	logger          *slog.Logger
	metrics         Metrics
	checks          []httpserver.Check
	readyTimeout    time.Duration
	maxWebhookBytes int64
}

// NewRouter mounts every billing route. It panics if a service is nil.
func NewRouter(subs SubscriptionService, plans PlanService, webhooks WebhookService, opts ...Option) http.Handler {
	if subs == nil || plans == nil || webhooks == nil {
		panic("api: subscription, plan and webhook services are required")
	}

	rt := &router{
		subs:            subs,
		plans:           plans,
		webhooks:        webhooks,
		logger:          slog.Default(),
		readyTimeout:    2 * time.Second,
		maxWebhookBytes: defaultMaxWebhookBytes,
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger = rt.logger.With(logger.Component("api"))

	r := chi.NewRouter()
	r.Use(correlation.Middleware)
	r.Use(middleware.Recoverer)
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(rt.logger, rt.readyTimeout, rt.checks...))
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", rt.listPlans)
		r.Post("/", rt.createPlan)
		r.Get("/{code}", rt.getPlan)
		r.Delete("/{code}", rt.deletePlan)
		r.Post("/{code}/activate", rt.activatePlan)
		r.Post("/{code}/deactivate", rt.deactivatePlan)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", rt.createSubscription)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", rt.getSubscription)
			r.Patch("/", rt.changePlan)
			r.Get("/proration-preview", rt.previewChange)
			r.Post("/cancel", rt.cancelSubscription)
			r.Post("/pause", rt.pauseSubscription)
			r.Post("/resume", rt.resumeSubscription)
			r.Put("/payment-method", rt.updatePaymentMethod)
		})
	})
	r.Get("/customers/{customerID}/subscriptions", rt.listCustomerSubscriptions)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/processor", rt.receiveWebhook)
		r.Get("/events", rt.listEvents)
		r.Get("/events/{id}", rt.getEvent)
		r.Post("/events/{id}/replay", rt.replayEvent)
	})

	return r
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
