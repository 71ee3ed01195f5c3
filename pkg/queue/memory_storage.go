package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements every queue repository in memory. It is safe
// for concurrent use.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dead  []DeadTask
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		now:   time.Now,
	}
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("queue: task cannot be nil")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.tasks[task.ID]; ok {
		return ErrDuplicateTask
	}
	cp := *task
	ms.tasks[task.ID] = &cp
	return nil
}

// ClaimTask picks the highest priority due task, oldest schedule first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !ms.claimable(t, now) || !slices.Contains(queues, t.Queue) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.ScheduledAt.Before(best.ScheduledAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lockFor)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

func (ms *MemoryStorage) claimable(t *Task, now time.Time) bool {
	switch t.Status {
	case TaskStatusPending:
		return !t.ScheduledAt.After(now)
	case TaskStatusProcessing:
		// the worker that held it is gone
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	}
	return false
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	t.RetryCount++
	t.Error = &errMsg
	t.Status = TaskStatusPending
	t.ScheduledAt = retryAt
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, id uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	ms.dead = append(ms.dead, DeadTask{
		ID:         uuid.New(),
		TaskID:     t.ID,
		Queue:      t.Queue,
		TaskType:   t.TaskType,
		TaskName:   t.TaskName,
		Payload:    t.Payload,
		Priority:   t.Priority,
		Error:      errMsg,
		RetryCount: t.RetryCount,
		FailedAt:   ms.now(),
	})
	delete(ms.tasks, id)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, id uuid.UUID, d time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	until := ms.now().Add(d)
	t.LockedUntil = &until
	return nil
}

func (ms *MemoryStorage) GetPendingTaskByName(_ context.Context, name string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, t := range ms.tasks {
		if t.TaskName == name && (t.Status == TaskStatusPending || t.Status == TaskStatusProcessing) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTaskNotFound
}

// GetTask returns a copy of a queued task.
func (ms *MemoryStorage) GetTask(_ context.Context, id uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// Pending returns copies of pending tasks ordered by ScheduledAt.
func (ms *MemoryStorage) Pending() []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []Task
	for _, t := range ms.tasks {
		if t.Status == TaskStatusPending {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b Task) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	return out
}

// DeadTasks returns copies of the dead letter queue in failure order.
func (ms *MemoryStorage) DeadTasks() []DeadTask {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dead)
}

func (ms *MemoryStorage) processing(id uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	return t, nil
}
