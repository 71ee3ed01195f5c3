package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Billable reports whether the sweep considers subscriptions in this state.
func (s Status) Billable() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue:
		return true
	}
	return false
}

// Event drives a lifecycle transition.
type Event string

const (
	EventChargeSucceeded  Event = "charge_succeeded"
	EventChargeFailed     Event = "charge_failed"
	EventRetriesExhausted Event = "retries_exhausted"
	EventCancel           Event = "cancel"
	EventPeriodEnded      Event = "period_ended"
	EventPause            Event = "pause"
	EventResume           Event = "resume"
)

// ProrationBehavior controls how plan changes are settled.
type ProrationBehavior string

const (
	// ProrateImmediately charges or credits the prorated difference at the time of change.
	ProrateImmediately ProrationBehavior = "create_prorations"
	// ProrateNone swaps the plan without any adjustment.
	ProrateNone ProrationBehavior = "none"
)

func (b ProrationBehavior) Valid() bool {
	return b == ProrateImmediately || b == ProrateNone
}

// Subscription is owned by Lifecycle. Fields are exported for storage and
// responses; mutate them only through Lifecycle methods.
type Subscription struct {
	ID                 uuid.UUID         `json:"id"`
	CustomerID         string            `json:"customer_id"`
	PlanCode           string            `json:"plan_code"`
	PaymentMethodID    string            `json:"payment_method_id"`
	Status             Status            `json:"status"`
	CurrentPeriodStart time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `json:"current_period_end"`
	NextBillingDate    time.Time         `json:"next_billing_date"`
	TrialEndsAt        *time.Time        `json:"trial_ends_at,omitempty"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	PausedAt           *time.Time        `json:"paused_at,omitempty"`
	PastDueSince       *time.Time        `json:"past_due_since,omitempty"`
	EndedAt            *time.Time        `json:"ended_at,omitempty"`
	BillingAnchorDay   int               `json:"billing_anchor_day"` // day of month periods end on
	BillingCycle       int               `json:"billing_cycle"`      // sequence number of the next cycle to charge
	RetryCount         int               `json:"retry_count"`   // failed attempts within the current cycle
	CreditBalance      int64             `json:"credit_balance"`
	ProrationBehavior  ProrationBehavior `json:"proration_behavior"`
	PlanChanges        int               `json:"plan_changes"`
	Version            int               `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// DueAt reports whether the sweep should act on the subscription at now.
func (s Subscription) DueAt(now time.Time) bool {
	return s.Status.Billable() && !s.NextBillingDate.After(now)
}

// CreateRequest is a validated request to start a subscription.
type CreateRequest struct {
	CustomerID      string `json:"customer_id"`
	PlanCode        string `json:"plan_code"`
	PaymentMethodID string `json:"payment_method_id"`
	// StartTrial disables the plan trial when explicitly false.
	StartTrial *bool `json:"start_trial,omitempty"`
	// IdempotencyKey makes retries of the same request return the same
	// subscription and reuse the first charge.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	// Prorated selects the subscription's default proration behavior.
	Prorated bool `json:"prorated"`
}

// UpdateRequest changes the plan of a subscription.
type UpdateRequest struct {
	NewPlanCode       string            `json:"new_plan_code"`
	ProrationBehavior ProrationBehavior `json:"proration_behavior,omitempty"`
}

// Response is the external view of a subscription.
type Response struct {
	SubscriptionID     uuid.UUID  `json:"subscription_id"`
	CustomerID         string     `json:"customer_id"`
	Status             Status     `json:"status"`
	PlanCode           string     `json:"plan_code"`
	NextBillingDate    time.Time  `json:"next_billing_date"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CreditBalance      int64      `json:"credit_balance"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
}

func (s Subscription) Response() Response {
	return Response{
		SubscriptionID:     s.ID,
		CustomerID:         s.CustomerID,
		Status:             s.Status,
		PlanCode:           s.PlanCode,
		NextBillingDate:    s.NextBillingDate,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialEndsAt:        s.TrialEndsAt,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CreditBalance:      s.CreditBalance,
		EndedAt:            s.EndedAt,
	}
}
