package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// SchedulerRepository is the storage a Scheduler needs.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
	// GetPendingTaskByName returns a pending or processing task with the
	// given name, or ErrTaskNotFound.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler creates periodic tasks. A new task is created only when none
// with the same name is pending, so several schedulers may share storage.
type Scheduler struct {
	repo     SchedulerRepository
	mu       sync.RWMutex
	tasks    map[string]*periodicTask
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type periodicTask struct {
	name       string
	schedule   Schedule
	queue      string
	priority   Priority
	maxRetries int8
	last       *time.Time
}

type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often schedules are evaluated.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

type SchedulerTaskOption func(*periodicTask)

func WithTaskQueue(queue string) SchedulerTaskOption {
	return func(t *periodicTask) {
		if queue != "" {
			t.queue = queue
		}
	}
}

func WithTaskPriority(p Priority) SchedulerTaskOption {
	return func(t *periodicTask) {
		if p.Valid() {
			t.priority = p
		}
	}
}

func WithTaskMaxRetries(n int8) SchedulerTaskOption {
	return func(t *periodicTask) {
		if n >= 0 && n <= 10 {
			t.maxRetries = n
		}
	}
}

func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	s := &Scheduler{
		repo:     repo,
		tasks:    make(map[string]*periodicTask),
		interval: 30 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("queue.scheduler"))
	return s, nil
}

// AddTask registers a periodic task. Register a handler for the same name
// with NewPeriodicTaskHandler.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if name == "" || schedule == nil {
		return ErrInvalidSchedule
	}
	t := &periodicTask{
		name:     name,
		schedule: schedule,
		queue:    DefaultQueueName,
		priority: PriorityDefault,
	}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = t
	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))
	return nil
}

// Start evaluates schedules immediately and then every check interval until
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Run returns Start as an errgroup function.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error { return s.Start(ctx) }
}

// Tick creates every task that is due now.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.RLock()
	tasks := make([]*periodicTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.RUnlock()

	now := s.now()
	for _, t := range tasks {
		if err := s.scheduleIfDue(ctx, t, now); err != nil {
			s.logger.Error("failed to schedule periodic task",
				slog.String("task_name", t.name), logger.Error(err))
		}
	}
}

func (s *Scheduler) scheduleIfDue(ctx context.Context, t *periodicTask, now time.Time) error {
	s.mu.RLock()
	last := t.last
	s.mu.RUnlock()

	// The first run is due immediately. Missed runs collapse into one.
	if last != nil && t.schedule.Next(*last).After(now) {
		return nil
	}
	at := now

	if existing, err := s.repo.GetPendingTaskByName(ctx, t.name); err == nil && existing != nil {
		s.setLast(t, existing.ScheduledAt)
		return nil
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       t.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    t.name,
		Status:      TaskStatusPending,
		Priority:    t.priority,
		MaxRetries:  t.maxRetries,
		ScheduledAt: at,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("queue: create periodic task: %w", err)
	}
	s.setLast(t, at)
	s.logger.Debug("created periodic task",
		slog.String("task_name", t.name), slog.Time("scheduled_at", at))
	return nil
}

func (s *Scheduler) setLast(t *periodicTask, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.last = &at
}
