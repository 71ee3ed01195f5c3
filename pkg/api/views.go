package api

import (
	"time"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/money"
	"github.com/dmitrymomot/billing/pkg/proration"
	"github.com/dmitrymomot/billing/pkg/subscription"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

type planView struct {
	catalog.Plan
	AmountFormatted string `json:"amount_formatted"`
	Interval        string `json:"interval"`
}

func newPlanView(p catalog.Plan) planView {
	return planView{Plan: p, AmountFormatted: money.Format(p.Amount, p.Currency), Interval: p.Interval()}
}

type subscriptionView struct {
	subscription.Response
	Amount                 int64  `json:"amount,omitempty"`
	Currency               string `json:"currency,omitempty"`
	AmountFormatted        string `json:"amount_formatted,omitempty"`
	CreditBalanceFormatted string `json:"credit_balance_formatted,omitempty"`
}

// newSubscriptionView adds the plan price. A zero plan leaves the price out.
func newSubscriptionView(s subscription.Subscription, plan catalog.Plan) subscriptionView {
	v := subscriptionView{Response: s.Response()}
	if plan.Code == "" {
		return v
	}
	v.Amount = plan.Amount
	v.Currency = plan.Currency
	v.AmountFormatted = money.Format(plan.Amount, plan.Currency)
	v.CreditBalanceFormatted = money.Format(s.CreditBalance, plan.Currency)
	return v
}

type prorationView struct {
	CreditAmount          int64     `json:"creditAmount"`
	ChargeAmount          int64     `json:"chargeAmount"`
	NetAmount             int64     `json:"netAmount"`
	Currency              string    `json:"currency"`
	EffectiveDate         time.Time `json:"effectiveDate"`
	CreditAmountFormatted string    `json:"creditAmountFormatted"`
	ChargeAmountFormatted string    `json:"chargeAmountFormatted"`
	NetAmountFormatted    string    `json:"netAmountFormatted"`
}

func newProrationView(r proration.Result) prorationView {
	return prorationView{
		CreditAmount:          r.CreditAmount,
		ChargeAmount:          r.ChargeAmount,
		NetAmount:             r.NetAmount,
		Currency:              r.Currency,
		EffectiveDate:         r.EffectiveDate,
		CreditAmountFormatted: money.Format(r.CreditAmount, r.Currency),
		ChargeAmountFormatted: money.Format(r.ChargeAmount, r.Currency),
		NetAmountFormatted:    money.Format(r.NetAmount, r.Currency),
	}
}

// changeView is the answer to a plan change: the updated subscription and
// the adjustment that was applied.
type changeView struct {
	Subscription subscriptionView `json:"subscription"`
	Proration    prorationView    `json:"proration"`
}

// eventView leaves the raw payload out of listings.
type eventView struct {
	webhook.Event
	Payload any `json:"payload,omitempty"`
}

func newEventView(e webhook.Event, withPayload bool) eventView {
	v := eventView{Event: e}
	if withPayload {
		v.Payload = e.Payload
	}
	return v
}

// webhookAck is the flat acknowledgement returned to the processor.
type webhookAck struct {
	Status        string `json:"status"`
	EventID       string `json:"eventId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Message       string `json:"message,omitempty"`
}
