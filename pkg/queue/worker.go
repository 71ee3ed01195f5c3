package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/backoff"
	"github.com/dmitrymomot/billing/pkg/logger"
)

// WorkerRepository is the storage a Worker needs.
type WorkerRepository interface {
	// ClaimTask locks the best due task in queues for lockFor and returns it,
	// or ErrNoTaskToClaim. Tasks whose lock expired are claimable again.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records errMsg, increments RetryCount and reschedules the
	// task for retryAt.
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryAt time.Time) error
	// MoveToDLQ removes the task from the queue and records it as dead.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errMsg string) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, d time.Duration) error
}

// TaskObserver is told about every finished task run.
type TaskObserver func(taskName string, err error, d time.Duration)

// Worker claims due tasks and runs their handlers, at most
// MaxConcurrentTasks at a time.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	id       uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	backoff      backoff.Strategy
	observer     TaskObserver
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

type WorkerOption func(*Worker)

func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pullInterval = d
		}
	}
}

// WithLockTimeout bounds both the claim lock and the handler run time.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithRetryBackoff sets the delay before a failed task is retried.
func WithRetryBackoff(s backoff.Strategy) WorkerOption {
	return func(w *Worker) {
		if s != nil {
			w.backoff = s
		}
	}
}

func WithTaskObserver(fn TaskObserver) WorkerOption {
	return func(w *Worker) {
		if fn != nil {
			w.observer = fn
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWorkerConfig applies the poll, lock and concurrency settings of cfg.
func WithWorkerConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		WithPullInterval(cfg.PollInterval)(w)
		WithLockTimeout(cfg.LockTimeout)(w)
		WithMaxConcurrentTasks(cfg.MaxConcurrentTasks)(w)
	}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	w := &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		id:           uuid.New(),
		sem:          make(chan struct{}, 1),
		pullInterval: time.Second,
		lockTimeout:  5 * time.Minute,
		backoff:      backoff.Linear{Interval: 30 * time.Second, MaxInterval: 10 * time.Minute},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("queue.worker"), slog.String("worker_id", w.id.String()))
	return w, nil
}

func (w *Worker) RegisterHandler(h Handler) error {
	if h == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[h.Name()] = h
	return nil
}

func (w *Worker) RegisterHandlers(hs ...Handler) error {
	for _, h := range hs {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the polling loop in the background until Stop or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.loop()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for running tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.logger.Info("worker stopping, waiting for running tasks")
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Run returns a function for errgroup that starts the worker and stops it
// when ctx is done.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) loop() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			for w.dispatch() {
			}
		}
	}
}

// dispatch claims one task into a free slot and reports whether it did.
func (w *Worker) dispatch() bool {
	select {
	case w.sem <- struct{}{}:
	default:
		return false
	}

	w.stopMu.Lock()
	if w.stopping.Load() {
		w.stopMu.Unlock()
		<-w.sem
		return false
	}
	w.wg.Add(1)
	w.stopMu.Unlock()

	task, err := w.claim(w.ctx)
	if err != nil || task == nil {
		w.wg.Done()
		<-w.sem
		if err != nil {
			w.logger.Error("failed to claim task", logger.Error(err))
		}
		return false
	}

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.process(w.ctx, task)
	}()
	return true
}

// ProcessNext claims and runs one due task synchronously. It reports false
// when nothing was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.claim(ctx)
	if err != nil || task == nil {
		return false, err
	}
	return true, w.process(ctx, task)
}

func (w *Worker) claim(ctx context.Context) (*Task, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim task: %w", err)
	}
	return task, nil
}

func (w *Worker) process(ctx context.Context, task *Task) error {
	start := time.Now()
	log := w.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue))

	// Bookkeeping must survive worker shutdown.
	storeCtx := context.WithoutCancel(ctx)

	w.mu.RLock()
	h, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		log.Error("no handler registered for task")
		if err := w.repo.MoveToDLQ(storeCtx, task.ID, ErrHandlerNotFound.Error()); err != nil {
			return fmt.Errorf("queue: move task %s to dead letter queue: %w", task.ID, err)
		}
		return ErrHandlerNotFound
	}

	runErr := w.run(ctx, h, task)
	d := time.Since(start)
	if w.observer != nil {
		w.observer(task.TaskName, runErr, d)
	}

	if runErr == nil {
		if err := w.repo.CompleteTask(storeCtx, task.ID); err != nil {
			return fmt.Errorf("queue: complete task %s: %w", task.ID, err)
		}
		log.Debug("task completed", slog.Duration("duration", d))
		return nil
	}

	if task.RetryCount >= task.MaxRetries {
		log.Error("task failed, moving to dead letter queue",
			logger.RetryCount(int(task.RetryCount)), logger.Error(runErr))
		if err := w.repo.MoveToDLQ(storeCtx, task.ID, runErr.Error()); err != nil {
			return fmt.Errorf("queue: move task %s to dead letter queue: %w", task.ID, err)
		}
		return runErr
	}

	retryAt := time.Now().Add(w.backoff.NextInterval(int(task.RetryCount) + 1))
	log.Warn("task failed, will retry",
		logger.RetryCount(int(task.RetryCount)),
		slog.Time("retry_at", retryAt),
		logger.Error(runErr))
	if err := w.repo.FailTask(storeCtx, task.ID, runErr.Error(), retryAt); err != nil {
		return fmt.Errorf("queue: fail task %s: %w", task.ID, err)
	}
	return runErr
}

func (w *Worker) run(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: handler panicked: %v", r)
		}
	}()

	// Handlers get the lock timeout, not the worker lifetime, so a shutdown
	// lets running tasks finish.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.lockTimeout)
	defer cancel()
	return h.Handle(runCtx, task.Payload)
}

// ExtendLock pushes the lock of a long-running task forward by d.
func (w *Worker) ExtendLock(ctx context.Context, taskID uuid.UUID, d time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, d)
}
