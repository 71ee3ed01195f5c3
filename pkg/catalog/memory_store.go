package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps plans in process memory. Intended for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]Plan)}
}

func (s *MemoryStore) CreatePlan(_ context.Context, plan Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[plan.Code]; exists {
		return ErrDuplicatePlanCode
	}
	s.plans[plan.Code] = plan
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, code string) (Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[code]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListPlans(_ context.Context, activeOnly bool) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *MemoryStore) SetPlanActive(_ context.Context, code string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[code]
	if !ok {
		return ErrPlanNotFound
	}
	p.Active = active
	p.UpdatedAt = at
	s.plans[code] = p
	return nil
}

func (s *MemoryStore) DeletePlan(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[code]; !ok {
		return ErrPlanNotFound
	}
	delete(s.plans, code)
	return nil
}
