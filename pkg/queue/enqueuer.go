package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer adds one-time tasks to the queue.
type Enqueuer struct {
	repo            EnqueuerRepository
	defaultQueue    string
	defaultPriority Priority
	now             func() time.Time
}

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.defaultQueue = queue
		}
	}
}

func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(e *Enqueuer) {
		if p.Valid() {
			e.defaultPriority = p
		}
	}
}

// WithEnqueuerClock sets the clock used to compute ScheduledAt.
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo:            repo,
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxRetries  int8
	delay       time.Duration
	scheduledAt *time.Time
	taskName    string
}

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

// WithMaxRetries sets how many times a failing task is retried, 0..10.
func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 0 && n <= 10 {
			o.maxRetries = n
		}
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.scheduledAt = &t }
}

// WithTaskName overrides the name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}

// Enqueue stores payload as a pending task and returns its id.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	o := &enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, errors.Join(ErrPayloadMarshal, err)
	}

	name := o.taskName
	if name == "" {
		name = typeName(payload)
	}

	now := e.now()
	at := now.Add(o.delay)
	if o.scheduledAt != nil {
		at = *o.scheduledAt
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		TaskType:    TaskTypeOneTime,
		TaskName:    name,
		Payload:     raw,
		Status:      TaskStatusPending,
		Priority:    o.priority,
		MaxRetries:  o.maxRetries,
		ScheduledAt: at,
		CreatedAt:   now,
	}
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("queue: create task %q in %q: %w", name, o.queue, err)
	}
	return task.ID, nil
}
