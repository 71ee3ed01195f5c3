package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/correlation"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

// Acknowledgement statuses of the processor endpoint.
const (
	ackSuccess         = "success"
	ackDuplicate       = "duplicate"
	ackSignatureError  = "signature_error"
	ackValidationError = "validation_error"
	ackProcessingError = "processing_error"
)

// receiveWebhook verifies, stores and queues one processor notification.
// Nothing is queued unless the answer is 200.
func (rt *router) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID := correlation.FromContext(ctx)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.logger.WarnContext(ctx, "webhook payload too large", logger.Error(err))
			writeJSON(w, http.StatusRequestEntityTooLarge, webhookAck{Status: ackValidationError, CorrelationID: corrID, Message: "payload too large"})
			return
		}
		rt.logger.WarnContext(ctx, "failed to read webhook payload", logger.Error(err))
		writeJSON(w, http.StatusBadRequest, webhookAck{Status: ackValidationError, CorrelationID: corrID, Message: "unreadable payload"})
		return
	}

	receipt, err := rt.webhooks.Receive(ctx, r.Header, payload)
	if receipt.CorrelationID != "" {
		corrID = receipt.CorrelationID
	}
	ack := webhookAck{CorrelationID: corrID}
	if receipt.EventID != uuid.Nil {
		ack.EventID = receipt.EventID.String()
	}

	switch {
	case err == nil:
		ack.Status = ackSuccess
		writeJSON(w, http.StatusOK, ack)
	case errors.Is(err, webhook.ErrDuplicateEvent):
		ack.Status = ackDuplicate
		ack.Message = "event already received"
		writeJSON(w, http.StatusConflict, ack)
	case errors.Is(err, webhook.ErrInvalidSignature):
		ack.Status = ackSignatureError
		ack.Message = "signature verification failed"
		writeJSON(w, http.StatusUnauthorized, ack)
	case errors.Is(err, webhook.ErrInvalidPayload):
		ack.Status = ackValidationError
		ack.Message = "invalid payload"
		writeJSON(w, http.StatusBadRequest, ack)
	default:
		rt.logger.ErrorContext(ctx, "webhook ingestion failed", logger.Error(err))
		ack.Status = ackProcessingError
		ack.Message = "event could not be accepted, retry later"
		writeJSON(w, http.StatusInternalServerError, ack)
	}
}

// listEvents lists stored events by status for manual review. Status
// defaults to failed_terminal.
func (rt *router) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := webhook.StatusFailedTerminal
	if v := q.Get("status"); v != "" {
		status = webhook.Status(v)
	}
	if !status.Persisted() {
		rt.writeError(w, r, ErrInvalidQuery)
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			rt.writeError(w, r, ErrInvalidQuery)
			return
		}
		limit = n
	}

	events, err := rt.webhooks.ListByStatus(r.Context(), status, limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, newEventView(e, false))
	}
	writeData(w, http.StatusOK, views)
}

func (rt *router) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	ev, err := rt.webhooks.Get(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newEventView(ev, true))
}

func (rt *router) replayEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	ev, err := rt.webhooks.Replay(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, newEventView(ev, false))
}
