package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/money"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/proration"
	"github.com/dmitrymomot/billing/pkg/subscription"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

var (
	ErrMalformedBody = errors.New("api: malformed request body")
	ErrInvalidID     = errors.New("api: invalid id")
	ErrInvalidQuery  = errors.New("api: invalid query parameter")
)

// errorInfo is the classified form of a handler error.
type errorInfo struct {
	status int
	code   string
}

var errorTable = []struct {
	target error
	info   errorInfo
}{
	{ErrMalformedBody, errorInfo{http.StatusBadRequest, "malformed_body"}},
	{ErrInvalidID, errorInfo{http.StatusBadRequest, "invalid_id"}},
	{ErrInvalidQuery, errorInfo{http.StatusBadRequest, "invalid_query"}},

	{catalog.ErrInvalidPlan, errorInfo{http.StatusUnprocessableEntity, "invalid_plan"}},
	{subscription.ErrInvalidRequest, errorInfo{http.StatusUnprocessableEntity, "invalid_request"}},
	{proration.ErrInvalidProrationWindow, errorInfo{http.StatusUnprocessableEntity, "invalid_proration_window"}},
	{proration.ErrCurrencyMismatch, errorInfo{http.StatusUnprocessableEntity, "currency_mismatch"}},
	{money.ErrUnknownCurrency, errorInfo{http.StatusUnprocessableEntity, "unknown_currency"}},
	{subscription.ErrPlanInactive, errorInfo{http.StatusUnprocessableEntity, "plan_inactive"}},
	{subscription.ErrSamePlan, errorInfo{http.StatusUnprocessableEntity, "same_plan"}},
	{payment.ErrInvalidCharge, errorInfo{http.StatusUnprocessableEntity, "invalid_charge"}},

	{catalog.ErrPlanNotFound, errorInfo{http.StatusNotFound, "plan_not_found"}},
	{subscription.ErrSubscriptionNotFound, errorInfo{http.StatusNotFound, "subscription_not_found"}},
	{webhook.ErrEventNotFound, errorInfo{http.StatusNotFound, "event_not_found"}},

	{catalog.ErrDuplicatePlanCode, errorInfo{http.StatusConflict, "duplicate_plan_code"}},
	{catalog.ErrPlanInUse, errorInfo{http.StatusConflict, "plan_in_use"}},
	{subscription.ErrInvalidStateTransition, errorInfo{http.StatusConflict, "invalid_state_transition"}},
	{subscription.ErrSubscriptionLocked, errorInfo{http.StatusConflict, "locked"}},
	{subscription.ErrConcurrentUpdate, errorInfo{http.StatusConflict, "concurrent_update"}},
	{subscription.ErrDuplicateSubscription, errorInfo{http.StatusConflict, "duplicate_subscription"}},
	{subscription.ErrIdempotencyConflict, errorInfo{http.StatusConflict, "idempotency_conflict"}},
	{webhook.ErrInvalidStatus, errorInfo{http.StatusConflict, "invalid_event_status"}},
	{webhook.ErrStaleEvent, errorInfo{http.StatusConflict, "concurrent_update"}},

	{subscription.ErrPaymentDeclined, errorInfo{http.StatusPaymentRequired, "payment_declined"}},
	{subscription.ErrPaymentFailed, errorInfo{http.StatusBadGateway, "payment_failed"}},
	{webhook.ErrEnqueueFailed, errorInfo{http.StatusServiceUnavailable, "enqueue_failed"}},
	{subscription.ErrNotStored, errorInfo{http.StatusServiceUnavailable, "not_stored"}},
}

func classifyError(err error) errorInfo {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.info
		}
	}
	return errorInfo{http.StatusInternalServerError, "internal_error"}
}

func logLevel(status int) slog.Level {
	if status < http.StatusInternalServerError {
		return slog.LevelWarn
	}
	return slog.LevelError
}
