package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/statemachine"
)

// Status of a webhook event. Only queued through failed_terminal are
// persisted; the others are outcomes of Receive.
type Status string

const (
	StatusReceived       Status = "received"
	StatusVerifying      Status = "verifying"
	StatusRejected       Status = "rejected"
	StatusDuplicate      Status = "duplicate"
	StatusQueued         Status = "queued"
	StatusProcessing     Status = "processing"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusFailedTerminal Status = "failed_terminal"
)

// Persisted reports whether s is stored on an Event.
func (s Status) Persisted() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDelivered, StatusFailed, StatusFailedTerminal:
		return true
	case StatusReceived, StatusVerifying, StatusRejected, StatusDuplicate:
		return false
	}
	return false
}

// Transition names an event status change.
type Transition string

const (
	TransitionClaim   Transition = "claim"
	TransitionDeliver Transition = "deliver"
	TransitionFail    Transition = "fail"
	TransitionGiveUp  Transition = "give_up"
	TransitionReplay  Transition = "replay"
)

var statusMachine = statemachine.MustNew(
	statemachine.WithTransition(StatusProcessing, TransitionClaim, []Status{StatusQueued, StatusFailed, StatusProcessing}),
	statemachine.WithTransition(StatusDelivered, TransitionDeliver, []Status{StatusProcessing}),
	statemachine.WithTransition(StatusFailed, TransitionFail, []Status{StatusProcessing}),
	statemachine.WithTransition(StatusFailedTerminal, TransitionGiveUp, []Status{StatusProcessing}),
	statemachine.WithTransition(StatusQueued, TransitionReplay, []Status{StatusFailedTerminal}),
	statemachine.WithTerminal[Status, Transition](StatusDelivered),
)

// NextStatus returns the status t leads to from s, or ErrInvalidStatus.
func NextStatus(s Status, t Transition) (Status, error) {
	next, err := statusMachine.Next(s, t, nil)
	if err != nil {
		return s, fmt.Errorf("%w: %s on %s: %w", ErrInvalidStatus, t, s, err)
	}
	return next, nil
}

// Event is a stored processor notification.
type Event struct {
	ID             uuid.UUID       `json:"id"`
	NotificationID string          `json:"notification_id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	LastError      string          `json:"last_error,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// transition applies t to the event and stamps UpdatedAt.
func (e *Event) transition(t Transition, now time.Time) error {
	next, err := NextStatus(e.Status, t)
	if err != nil {
		return err
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}

// Envelope is the JSON shape every notification shares. Paddle style
// event_id and event_type names are accepted too.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// ParseEnvelope decodes and validates payload.
func ParseEnvelope(payload []byte) (Envelope, error) {
	var raw struct {
		ID         string          `json:"id"`
		EventID    string          `json:"event_id"`
		Type       string          `json:"type"`
		EventType  string          `json:"event_type"`
		OccurredAt *time.Time      `json:"occurred_at"`
		Data       json.RawMessage `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	env := Envelope{ID: raw.ID, Type: raw.Type, Data: raw.Data}
	if env.ID == "" {
		env.ID = raw.EventID
	}
	if env.Type == "" {
		env.Type = raw.EventType
	}
	if raw.OccurredAt != nil {
		env.OccurredAt = *raw.OccurredAt
	}

	switch {
	case env.ID == "":
		return Envelope{}, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	case len(env.ID) > 255:
		return Envelope{}, fmt.Errorf("%w: id too long", ErrInvalidPayload)
	case env.Type == "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	return env, nil
}

// Receipt is what Receive reports back to the sender.
type Receipt struct {
	EventID        uuid.UUID `json:"event_id"`
	NotificationID string    `json:"notification_id"`
	Status         Status    `json:"status"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// ProcessEvent is the queue payload that asks a worker to process an event.
type ProcessEvent struct {
	EventID uuid.UUID `json:"event_id"`
}
