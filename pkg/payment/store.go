package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AttemptStore persists billing attempts.
type AttemptStore interface {
	// CreateAttempt inserts a pending attempt.
	CreateAttempt(ctx context.Context, a Attempt) error
	// FinalizeAttempt moves a pending attempt to a final outcome exactly once.
	// It returns ErrAttemptFinalized if the attempt is already final.
	FinalizeAttempt(ctx context.Context, id uuid.UUID, res Result) (Attempt, error)
	// LatestByKey returns the most recent attempt carrying key.
	LatestByKey(ctx context.Context, key string) (Attempt, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]Attempt, error)
}

// MemoryStore is an in-process AttemptStore.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts []Attempt
	index    map[uuid.UUID]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[uuid.UUID]int)}
}

func (s *MemoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.attempts {
		if existing.IdempotencyKey == a.IdempotencyKey && existing.Outcome == OutcomePending {
			return ErrDuplicateAttemptKey
		}
	}
	s.index[a.ID] = len(s.attempts)
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *MemoryStore) FinalizeAttempt(_ context.Context, id uuid.UUID, res Result) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	a := s.attempts[i]
	if a.Outcome.Final() {
		return a, ErrAttemptFinalized
	}
	a.Outcome = res.Outcome
	a.TransactionID = res.TransactionID
	a.DeclineReason = res.DeclineReason
	a.Error = res.Error
	completed := res.CompletedAt
	a.CompletedAt = &completed
	s.attempts[i] = a
	return a, nil
}

func (s *MemoryStore) LatestByKey(_ context.Context, key string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.attempts) - 1; i >= 0; i-- {
		if s.attempts[i].IdempotencyKey == key {
			return s.attempts[i], nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (s *MemoryStore) ListBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if a.SubscriptionID == subscriptionID {
			out = append(out, a)
		}
	}
	return out, nil
}
