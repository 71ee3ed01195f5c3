package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/pg"
)

const attemptColumns = `id, subscription_id, kind, cycle, amount, currency, idempotency_key,
	outcome, transaction_id, decline_reason, error, attempted_at, completed_at`

// AttemptStore implements payment.AttemptStore. A partial unique index keeps
// one pending attempt per idempotency key.
type AttemptStore struct {
	db DB
}

func NewAttemptStore(db DB) *AttemptStore {
	return &AttemptStore{db: db}
}

var _ payment.AttemptStore = (*AttemptStore)(nil)

func scanAttempt(row pgx.Row) (payment.Attempt, error) {
	var a payment.Attempt
	err := row.Scan(&a.ID, &a.SubscriptionID, &a.Kind, &a.Cycle, &a.Amount, &a.Currency, &a.IdempotencyKey,
		&a.Outcome, &a.TransactionID, &a.DeclineReason, &a.Error, &a.AttemptedAt, &a.CompletedAt)
	return a, err
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, a payment.Attempt) error {
	_, err := s.db.Exec(ctx, `INSERT INTO billing_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.SubscriptionID, a.Kind, a.Cycle, a.Amount, a.Currency, a.IdempotencyKey,
		a.Outcome, a.TransactionID, a.DeclineReason, a.Error, a.AttemptedAt, a.CompletedAt)
	if pg.IsDuplicateKeyError(err) {
		return payment.ErrDuplicateAttemptKey
	}
	return err
}

func (s *AttemptStore) FinalizeAttempt(ctx context.Context, id uuid.UUID, res payment.Result) (payment.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRow(ctx, `UPDATE billing_attempts
		SET outcome = $2, transaction_id = $3, decline_reason = $4, error = $5, completed_at = $6
		WHERE id = $1 AND outcome = 'pending'
		RETURNING `+attemptColumns,
		id, res.Outcome, res.TransactionID, res.DeclineReason, res.Error, res.CompletedAt))
	if err == nil {
		return a, nil
	}
	if !pg.IsNotFoundError(err) {
		return payment.Attempt{}, err
	}

	a, err = scanAttempt(s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM billing_attempts WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return payment.Attempt{}, payment.ErrAttemptNotFound
	}
	if err != nil {
		return payment.Attempt{}, err
	}
	return a, payment.ErrAttemptFinalized
}

func (s *AttemptStore) LatestByKey(ctx context.Context, key string) (payment.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM billing_attempts
		WHERE idempotency_key = $1 ORDER BY seq DESC LIMIT 1`, key))
	if pg.IsNotFoundError(err) {
		return payment.Attempt{}, payment.ErrAttemptNotFound
	}
	return a, err
}

func (s *AttemptStore) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]payment.Attempt, error) {
	rows, err := s.db.Query(ctx, `SELECT `+attemptColumns+` FROM billing_attempts
		WHERE subscription_id = $1 ORDER BY seq`, subscriptionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.Attempt, error) {
		return scanAttempt(row)
	})
}
