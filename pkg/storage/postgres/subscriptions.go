package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

const subscriptionColumns = `id, customer_id, plan_code, payment_method_id, status,
	current_period_start, current_period_end, next_billing_date, trial_ends_at,
	cancel_at_period_end, paused_at, past_due_since, ended_at, billing_cycle,
	retry_count, credit_balance, proration_behavior, plan_changes, version,
	created_at, updated_at, billing_anchor_day`

// SubscriptionStore implements subscription.Store with optimistic locking on
// the version column.
type SubscriptionStore struct {
	db DB
}

func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

var _ subscription.Store = (*SubscriptionStore)(nil)

func scanSubscription(row pgx.Row) (subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(&s.ID, &s.CustomerID, &s.PlanCode, &s.PaymentMethodID, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.NextBillingDate, &s.TrialEndsAt,
		&s.CancelAtPeriodEnd, &s.PausedAt, &s.PastDueSince, &s.EndedAt, &s.BillingCycle,
		&s.RetryCount, &s.CreditBalance, &s.ProrationBehavior, &s.PlanChanges, &s.Version,
		&s.CreatedAt, &s.UpdatedAt, &s.BillingAnchorDay)
	return s, err
}

func collectSubscriptions(rows pgx.Rows, err error) ([]subscription.Subscription, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (subscription.Subscription, error) {
		return scanSubscription(row)
	})
}

func (st *SubscriptionStore) Create(ctx context.Context, s *subscription.Subscription) error {
	_, err := st.db.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1, $19, $20, $21)`,
		s.ID, s.CustomerID, s.PlanCode, s.PaymentMethodID, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextBillingDate, s.TrialEndsAt,
		s.CancelAtPeriodEnd, s.PausedAt, s.PastDueSince, s.EndedAt, s.BillingCycle,
		s.RetryCount, s.CreditBalance, s.ProrationBehavior, s.PlanChanges,
		s.CreatedAt, s.UpdatedAt, s.BillingAnchorDay)
	if pg.IsDuplicateKeyError(err) {
		return subscription.ErrDuplicateSubscription
	}
	if err != nil {
		return err
	}
	s.Version = 1
	return nil
}

func (st *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (subscription.Subscription, error) {
	s, err := scanSubscription(st.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return subscription.Subscription{}, subscription.ErrSubscriptionNotFound
	}
	return s, err
}

func (st *SubscriptionStore) Save(ctx context.Context, s *subscription.Subscription) error {
	tag, err := st.db.Exec(ctx, `UPDATE subscriptions SET
			plan_code = $3, payment_method_id = $4, status = $5,
			current_period_start = $6, current_period_end = $7, next_billing_date = $8,
			trial_ends_at = $9, cancel_at_period_end = $10, paused_at = $11,
			past_due_since = $12, ended_at = $13, billing_cycle = $14, retry_count = $15,
			credit_balance = $16, proration_behavior = $17, plan_changes = $18,
			updated_at = $19, billing_anchor_day = $20, version = version + 1
		WHERE id = $1 AND version = $2`,
		s.ID, s.Version, s.PlanCode, s.PaymentMethodID, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextBillingDate,
		s.TrialEndsAt, s.CancelAtPeriodEnd, s.PausedAt,
		s.PastDueSince, s.EndedAt, s.BillingCycle, s.RetryCount,
		s.CreditBalance, s.ProrationBehavior, s.PlanChanges, s.UpdatedAt, s.BillingAnchorDay)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := st.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return subscription.ErrSubscriptionNotFound
		}
		return subscription.ErrConcurrentUpdate
	}
	s.Version++
	return nil
}

func (st *SubscriptionStore) FindDue(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return collectSubscriptions(st.db.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status IN ('trialing', 'active', 'past_due') AND next_billing_date <= $1
		ORDER BY next_billing_date
		LIMIT $2`, now, limitOrAll(limit)))
}

func (st *SubscriptionStore) ListByCustomer(ctx context.Context, customerID string) ([]subscription.Subscription, error) {
	return collectSubscriptions(st.db.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE customer_id = $1 ORDER BY created_at`, customerID))
}

func (st *SubscriptionStore) PlanInUse(ctx context.Context, code string) (bool, error) {
	var inUse bool
	err := st.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM subscriptions WHERE plan_code = $1)`, code).Scan(&inUse)
	return inUse, err
}
