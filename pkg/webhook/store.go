package webhook

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists webhook events.
type Store interface {
	// Insert stores a new event. If the notification id is already known it
	// returns the existing event together with ErrDuplicateEvent.
	Insert(ctx context.Context, e Event) (Event, error)
	Get(ctx context.Context, id uuid.UUID) (Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Claim moves a queued or failed event, or a processing one not updated
	// since staleBefore, to processing. Anything else is ErrNotClaimable.
	Claim(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (Event, error)
	// Update writes e if the stored status still equals from, otherwise
	// ErrStaleEvent.
	Update(ctx context.Context, e Event, from Status) error
	// ListByStatus returns events with status, oldest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu             sync.RWMutex
	events         map[uuid.UUID]Event
	byNotification map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:         make(map[uuid.UUID]Event),
		byNotification: make(map[string]uuid.UUID),
	}
}

func (m *MemoryStore) Insert(_ context.Context, e Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byNotification[e.NotificationID]; ok {
		return m.events[id], ErrDuplicateEvent
	}
	m.events[e.ID] = e
	m.byNotification[e.NotificationID] = e.ID
	return e, nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return e, nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	delete(m.events, id)
	delete(m.byNotification, e.NotificationID)
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, id uuid.UUID, now, staleBefore time.Time) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	if !claimable(e, staleBefore) {
		return e, ErrNotClaimable
	}
	if err := e.transition(TransitionClaim, now); err != nil {
		return e, err
	}
	m.events[id] = e
	return e, nil
}

func claimable(e Event, staleBefore time.Time) bool {
	switch e.Status {
	case StatusQueued, StatusFailed:
		return true
	case StatusProcessing:
		return e.UpdatedAt.Before(staleBefore)
	}
	return false
}

func (m *MemoryStore) Update(_ context.Context, e Event, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	if cur.Status != from {
		return ErrStaleEvent
	}
	m.events[e.ID] = e
	return nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Event) int { return a.ReceivedAt.Compare(b.ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
