package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

// view attaches the plan price. A failed plan lookup is logged and the price
// left out; the subscription itself is still returned.
func (rt *router) view(r *http.Request, s subscription.Subscription) subscriptionView {
	plan, err := rt.plans.GetPlan(r.Context(), s.PlanCode)
	if err != nil {
		rt.logger.WarnContext(r.Context(), "plan lookup for response failed",
			logger.SubscriptionID(s.ID), logger.PlanCode(s.PlanCode), logger.Error(err))
		plan = catalog.Plan{}
	}
	return newSubscriptionView(s, plan)
}

// IdempotencyKeyHeader carries the client's key for safe create retries.
const IdempotencyKeyHeader = "Idempotency-Key"

func (rt *router) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscription.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		req.IdempotencyKey = key
	}
	sub, err := rt.subs.Create(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rt.view(r, sub))
}

func (rt *router) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	sub, err := rt.subs.Get(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rt.view(r, sub))
}

func (rt *router) listCustomerSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := rt.subs.ListByCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	views := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, rt.view(r, s))
	}
	writeData(w, http.StatusOK, views)
}

func (rt *router) changePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req subscription.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sub, res, err := rt.subs.ChangePlan(r.Context(), id, req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, changeView{Subscription: rt.view(r, sub), Proration: newProrationView(res)})
}

func (rt *router) previewChange(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	code := r.URL.Query().Get("plan")
	if code == "" {
		rt.writeError(w, r, ErrInvalidQuery)
		return
	}
	res, err := rt.subs.PreviewChange(r.Context(), id, code)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newProrationView(res))
}

func (rt *router) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	atPeriodEnd := false
	if v := r.URL.Query().Get("at_period_end"); v != "" {
		if atPeriodEnd, err = strconv.ParseBool(v); err != nil {
			rt.writeError(w, r, ErrInvalidQuery)
			return
		}
	}
	sub, err := rt.subs.Cancel(r.Context(), id, atPeriodEnd)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rt.view(r, sub))
}

func (rt *router) pauseSubscription(w http.ResponseWriter, r *http.Request) {
	rt.mutateSubscription(w, r, rt.subs.Pause)
}

func (rt *router) resumeSubscription(w http.ResponseWriter, r *http.Request) {
	rt.mutateSubscription(w, r, rt.subs.Resume)
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

func (rt *router) updatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req paymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sub, err := rt.subs.UpdatePaymentMethod(r.Context(), id, req.PaymentMethodID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rt.view(r, sub))
}

func (rt *router) mutateSubscription(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (subscription.Subscription, error)) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	sub, err := fn(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rt.view(r, sub))
}
