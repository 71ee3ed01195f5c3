package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/correlation"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/queue"
)

// Enqueuer puts ProcessEvent tasks on the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Pipeline is the inbound half: verify, validate, dedup and enqueue.
type Pipeline struct {
	store    Store
	verifier Verifier
	enqueuer Enqueuer
	settings
}

func NewPipeline(store Store, verifier Verifier, enqueuer Enqueuer, opts ...Option) *Pipeline {
	if store == nil || verifier == nil || enqueuer == nil {
		panic("webhook: NewPipeline requires a store, a verifier and an enqueuer")
	}
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With(logger.Component("webhook.pipeline"))
	return &Pipeline{store: store, verifier: verifier, enqueuer: enqueuer, settings: s}
}

// Receive ingests one notification. Errors are ErrInvalidSignature,
// ErrInvalidPayload, ErrDuplicateEvent (the receipt then names the original
// event) or ErrEnqueueFailed, in which case nothing is left stored and the
// sender may retry.
func (p *Pipeline) Receive(ctx context.Context, header http.Header, payload []byte) (Receipt, error) {
	ctx, corrID := correlation.Ensure(ctx)
	receipt := Receipt{Status: StatusVerifying, CorrelationID: corrID}

	if err := p.verifier.Verify(ctx, header, payload); err != nil {
		p.logger.WarnContext(ctx, "webhook rejected", logger.Error(err))
		p.observe("", StatusRejected)
		receipt.Status = StatusRejected
		if !errors.Is(err, ErrInvalidSignature) {
			err = errors.Join(ErrInvalidSignature, err)
		}
		return receipt, err
	}

	env, err := ParseEnvelope(payload)
	if err != nil {
		p.logger.WarnContext(ctx, "webhook payload invalid", logger.Error(err))
		p.observe("", StatusRejected)
		receipt.Status = StatusRejected
		return receipt, err
	}
	receipt.NotificationID = env.ID

	now := p.now().UTC()
	ev := Event{
		ID:             uuid.New(),
		NotificationID: env.ID,
		Type:           env.Type,
		Payload:        append([]byte(nil), payload...),
		Status:         StatusQueued,
		MaxRetries:     p.maxRetries,
		CorrelationID:  corrID,
		ReceivedAt:     now,
		UpdatedAt:      now,
	}
	log := p.logger.With(logger.NotificationID(env.ID), logger.EventType(env.Type))

	stored, err := p.store.Insert(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			log.InfoContext(ctx, "duplicate webhook", logger.EventID(stored.ID))
			p.observe(env.Type, StatusDuplicate)
			receipt.EventID = stored.ID
			receipt.Status = StatusDuplicate
			return receipt, ErrDuplicateEvent
		}
		return receipt, errors.Join(errors.New("webhook: failed to store event"), err)
	}

	if _, err := p.enqueuer.Enqueue(ctx, ProcessEvent{EventID: ev.ID}, p.enqueueOptions()...); err != nil {
		if derr := p.store.Delete(context.WithoutCancel(ctx), ev.ID); derr != nil {
			log.ErrorContext(ctx, "failed to remove unqueued event", logger.Error(derr))
		}
		log.ErrorContext(ctx, "failed to enqueue webhook", logger.Error(err))
		return receipt, errors.Join(ErrEnqueueFailed, err)
	}

	log.InfoContext(ctx, "webhook queued", logger.EventID(ev.ID))
	p.observe(env.Type, StatusQueued)
	receipt.EventID = ev.ID
	receipt.Status = StatusQueued
	return receipt, nil
}

// Replay puts a failed_terminal event back in the queue with a fresh retry
// budget.
func (p *Pipeline) Replay(ctx context.Context, id uuid.UUID) (Event, error) {
	ev, err := p.store.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	from := ev.Status
	if err := ev.transition(TransitionReplay, p.now().UTC()); err != nil {
		return ev, err
	}
	ev.RetryCount = 0
	ev.LastError = ""
	ev.ProcessedAt = nil
	if err := p.store.Update(ctx, ev, from); err != nil {
		return Event{}, err
	}

	if _, err := p.enqueuer.Enqueue(ctx, ProcessEvent{EventID: ev.ID}, p.enqueueOptions()...); err != nil {
		restore, _ := p.store.Get(ctx, id)
		restore.Status = from
		if uerr := p.store.Update(context.WithoutCancel(ctx), restore, StatusQueued); uerr != nil {
			p.logger.ErrorContext(ctx, "failed to restore event after replay", logger.EventID(id), logger.Error(uerr))
		}
		return Event{}, errors.Join(ErrEnqueueFailed, err)
	}

	p.logger.InfoContext(ctx, "webhook replayed", logger.EventID(id), logger.NotificationID(ev.NotificationID))
	p.observe(ev.Type, StatusQueued)
	return ev, nil
}

// Get returns a stored event.
func (p *Pipeline) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	return p.store.Get(ctx, id)
}

// ListByStatus lists stored events for review, oldest first.
func (p *Pipeline) ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error) {
	if !status.Persisted() {
		return nil, ErrInvalidStatus
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return p.store.ListByStatus(ctx, status, limit)
}

func (s settings) enqueueOptions(extra ...queue.EnqueueOption) []queue.EnqueueOption {
	opts := []queue.EnqueueOption{queue.WithPriority(queue.PriorityHigh), queue.WithMaxRetries(3)}
	if s.queue != "" {
		opts = append(opts, queue.WithQueue(s.queue))
	}
	return append(opts, extra...)
}
