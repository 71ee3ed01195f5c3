package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

const webhookColumns = `id, notification_id, type, payload, status, retry_count, max_retries,
	last_error, correlation_id, received_at, updated_at, processed_at`

// WebhookStore implements webhook.Store. The unique notification_id column
// is the dedup key.
type WebhookStore struct {
	db DB
}

func NewWebhookStore(db DB) *WebhookStore {
	return &WebhookStore{db: db}
}

var _ webhook.Store = (*WebhookStore)(nil)

func scanEvent(row pgx.Row) (webhook.Event, error) {
	var e webhook.Event
	var payload []byte
	err := row.Scan(&e.ID, &e.NotificationID, &e.Type, &payload, &e.Status, &e.RetryCount, &e.MaxRetries,
		&e.LastError, &e.CorrelationID, &e.ReceivedAt, &e.UpdatedAt, &e.ProcessedAt)
	e.Payload = payload
	return e, err
}

func (s *WebhookStore) Insert(ctx context.Context, e webhook.Event) (webhook.Event, error) {
	stored, err := scanEvent(s.db.QueryRow(ctx, `INSERT INTO webhook_events (`+webhookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (notification_id) DO NOTHING
		RETURNING `+webhookColumns,
		e.ID, e.NotificationID, e.Type, []byte(e.Payload), e.Status, e.RetryCount, e.MaxRetries,
		e.LastError, e.CorrelationID, e.ReceivedAt, e.UpdatedAt, e.ProcessedAt))
	if err == nil {
		return stored, nil
	}
	if !pg.IsNotFoundError(err) {
		return webhook.Event{}, err
	}

	existing, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_events
		WHERE notification_id = $1`, e.NotificationID))
	if err != nil {
		return webhook.Event{}, err
	}
	return existing, webhook.ErrDuplicateEvent
}

func (s *WebhookStore) Get(ctx context.Context, id uuid.UUID) (webhook.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_events WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return webhook.Event{}, webhook.ErrEventNotFound
	}
	return e, err
}

func (s *WebhookStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM webhook_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrEventNotFound
	}
	return nil
}

func (s *WebhookStore) Claim(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (webhook.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx, `UPDATE webhook_events SET status = 'processing', updated_at = $2
		WHERE id = $1 AND (status IN ('queued', 'failed') OR (status = 'processing' AND updated_at < $3))
		RETURNING `+webhookColumns, id, now, staleBefore))
	if err == nil {
		return e, nil
	}
	if !pg.IsNotFoundError(err) {
		return webhook.Event{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return webhook.Event{}, err
	}
	return current, webhook.ErrNotClaimable
}

func (s *WebhookStore) Update(ctx context.Context, e webhook.Event, from webhook.Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE webhook_events SET
			status = $3, retry_count = $4, max_retries = $5, last_error = $6,
			updated_at = $7, processed_at = $8
		WHERE id = $1 AND status = $2`,
		e.ID, from, e.Status, e.RetryCount, e.MaxRetries, e.LastError, e.UpdatedAt, e.ProcessedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, e.ID); err != nil {
		return err
	}
	return webhook.ErrStaleEvent
}

func (s *WebhookStore) ListByStatus(ctx context.Context, status webhook.Status, limit int) ([]webhook.Event, error) {
	rows, err := s.db.Query(ctx, `SELECT `+webhookColumns+` FROM webhook_events
		WHERE status = $1 ORDER BY received_at LIMIT $2`, status, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (webhook.Event, error) {
		return scanEvent(row)
	})
}
