package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/billing/pkg/correlation"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/notify"
	"github.com/dmitrymomot/billing/pkg/queue"
)

// Processor is the outbound half: it runs queued events through the
// Dispatcher and records the outcome.
type Processor struct {
	store      Store
	dispatcher *Dispatcher
	enqueuer   Enqueuer
	settings
}

func NewProcessor(store Store, dispatcher *Dispatcher, enqueuer Enqueuer, opts ...Option) *Processor {
	if store == nil || dispatcher == nil || enqueuer == nil {
		panic("webhook: NewProcessor requires a store, a dispatcher and an enqueuer")
	}
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With(logger.Component("webhook.processor"))
	return &Processor{store: store, dispatcher: dispatcher, enqueuer: enqueuer, settings: s}
}

// Handler returns the queue handler for ProcessEvent tasks.
func (p *Processor) Handler() queue.Handler {
	return queue.NewTaskHandler(p.Process)
}

// Process handles one ProcessEvent task. Events that are missing or already
// settled are skipped. An event another worker holds is checked again once
// its claim goes stale. A returned error means the outcome could not be
// recorded and the task should be retried.
func (p *Processor) Process(ctx context.Context, task ProcessEvent) error {
	now := p.now().UTC()
	ev, err := p.store.Claim(ctx, task.EventID, now, now.Add(-p.staleAfter))
	switch {
	case errors.Is(err, ErrNotClaimable) && ev.Status == StatusProcessing:
		return p.recheck(ctx, ev, now)
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrNotClaimable):
		p.logger.DebugContext(ctx, "webhook event skipped", logger.EventID(task.EventID), logger.Error(err))
		return nil
	case err != nil:
		return errors.Join(errors.New("webhook: failed to claim event"), err)
	}

	if ev.CorrelationID != "" {
		ctx = correlation.WithContext(ctx, ev.CorrelationID)
	}
	log := p.logger.With(
		logger.EventID(ev.ID),
		logger.NotificationID(ev.NotificationID),
		logger.EventType(ev.Type),
		logger.CorrelationID(ev.CorrelationID))

	if herr := p.dispatch(ctx, ev); herr != nil {
		return p.fail(ctx, ev, herr, log)
	}

	from := ev.Status
	done := p.now().UTC()
	if err := ev.transition(TransitionDeliver, done); err != nil {
		return err
	}
	ev.ProcessedAt = &done
	ev.LastError = ""
	if err := p.store.Update(ctx, ev, from); err != nil {
		return p.updateFailed(ctx, err, log)
	}
	log.InfoContext(ctx, "webhook delivered", logger.RetryCount(ev.RetryCount))
	p.observe(ev.Type, StatusDelivered)
	return nil
}

// recheck schedules another look at an event held by another worker. If that
// worker died, the event is stale by then and gets reclaimed.
func (p *Processor) recheck(ctx context.Context, ev Event, now time.Time) error {
	delay := ev.UpdatedAt.Add(p.staleAfter).Sub(now) + time.Second
	if delay < time.Second {
		delay = time.Second
	}
	if _, err := p.enqueuer.Enqueue(ctx, ProcessEvent{EventID: ev.ID}, p.enqueueOptions(queue.WithDelay(delay))...); err != nil {
		return errors.Join(ErrEnqueueFailed, err)
	}
	p.logger.InfoContext(ctx, "webhook event held by another worker, recheck scheduled",
		logger.EventID(ev.ID), slog.Duration("delay", delay))
	return nil
}

func (p *Processor) dispatch(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webhook: handler panic: %v", r)
		}
	}()
	env, err := ParseEnvelope(ev.Payload)
	if err != nil {
		return err
	}
	return p.dispatcher.Dispatch(ctx, env)
}

func (p *Processor) fail(ctx context.Context, ev Event, cause error, log *slog.Logger) error {
	from := ev.Status
	ev.RetryCount++
	ev.LastError = cause.Error()
	maxRetries := ev.MaxRetries
	if maxRetries <= 0 {
		maxRetries = p.maxRetries
	}

	giveUp := IsTerminal(cause) || ev.RetryCount >= maxRetries
	t := TransitionFail
	if giveUp {
		t = TransitionGiveUp
	}
	if err := ev.transition(t, p.now().UTC()); err != nil {
		return err
	}
	if err := p.store.Update(ctx, ev, from); err != nil {
		return p.updateFailed(ctx, err, log)
	}

	if giveUp {
		log.ErrorContext(ctx, "webhook failed terminally", logger.RetryCount(ev.RetryCount), logger.Error(cause))
		p.observe(ev.Type, StatusFailedTerminal)
		p.alert(ctx, ev, log)
		return nil
	}

	delay := p.backoff.NextInterval(ev.RetryCount)
	if _, err := p.enqueuer.Enqueue(ctx, ProcessEvent{EventID: ev.ID}, p.enqueueOptions(queue.WithDelay(delay))...); err != nil {
		return errors.Join(ErrEnqueueFailed, err)
	}
	log.WarnContext(ctx, "webhook failed, retry scheduled",
		logger.RetryCount(ev.RetryCount), slog.Duration("delay", delay), logger.Error(cause))
	p.observe(ev.Type, StatusFailed)
	return nil
}

func (p *Processor) updateFailed(ctx context.Context, err error, log *slog.Logger) error {
	if errors.Is(err, ErrStaleEvent) {
		log.WarnContext(ctx, "webhook event changed while processing", logger.Error(err))
		return nil
	}
	return errors.Join(errors.New("webhook: failed to update event"), err)
}

func (p *Processor) alert(ctx context.Context, ev Event, log *slog.Logger) {
	if p.alerter == nil {
		return
	}
	err := p.alerter.Alert(context.WithoutCancel(ctx), notify.Alert{
		Subject: "Webhook event failed",
		Body:    ev.LastError,
		Fields: map[string]string{
			"event_id":        ev.ID.String(),
			"notification_id": ev.NotificationID,
			"type":            ev.Type,
			"retry_count":     strconv.Itoa(ev.RetryCount),
			"correlation_id":  ev.CorrelationID,
		},
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to send alert", logger.Error(err))
	}
}
