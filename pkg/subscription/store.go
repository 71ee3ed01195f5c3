package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions.
type Store interface {
	// Create inserts a new subscription with Version 1.
	Create(ctx context.Context, s *Subscription) error
	// Get returns ErrSubscriptionNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (Subscription, error)
	// Save writes s if the stored Version still equals s.Version and then
	// increments it. A stale version yields ErrConcurrentUpdate.
	Save(ctx context.Context, s *Subscription) error
	// FindDue lists billable subscriptions whose next billing date is not
	// after now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Subscription, error)
	// PlanInUse reports whether any subscription, terminal or not, references code.
	PlanInUse(ctx context.Context, code string) (bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func (m *MemoryStore) Create(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subs[s.ID]; exists {
		return ErrDuplicateSubscription
	}
	s.Version = 1
	m.subs[s.ID] = *s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.subs[s.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if current.Version != s.Version {
		return ErrConcurrentUpdate
	}
	s.Version++
	m.subs[s.ID] = *s
	return nil
}

func (m *MemoryStore) FindDue(_ context.Context, now time.Time, limit int) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Subscription
	for _, s := range m.subs {
		if s.DueAt(now) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return a.NextBillingDate.Compare(b.NextBillingDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListByCustomer(_ context.Context, customerID string) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Subscription
	for _, s := range m.subs {
		if s.CustomerID == customerID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) PlanInUse(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.subs {
		if s.PlanCode == code {
			return true, nil
		}
	}
	return false, nil
}
