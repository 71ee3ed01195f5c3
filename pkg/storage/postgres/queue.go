package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/queue"
)

const taskColumns = `id, queue, task_type, task_name, payload, status, priority, retry_count,
	max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// QueueStorage implements the queue repositories. Workers claim with
// FOR UPDATE SKIP LOCKED, so any number of them can share the table.
type QueueStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewQueueStorage(pool *pgxpool.Pool) *QueueStorage {
	return &QueueStorage{pool: pool, now: time.Now}
}

var (
	_ queue.EnqueuerRepository  = (*QueueStorage)(nil)
	_ queue.WorkerRepository    = (*QueueStorage)(nil)
	_ queue.SchedulerRepository = (*QueueStorage)(nil)
)

func scanTask(row pgx.Row) (*queue.Task, error) {
	var t queue.Task
	err := row.Scan(&t.ID, &t.Queue, &t.TaskType, &t.TaskName, &t.Payload, &t.Status, &t.Priority, &t.RetryCount,
		&t.MaxRetries, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *QueueStorage) CreateTask(ctx context.Context, t *queue.Task) error {
	if t == nil {
		return errors.New("queue: task cannot be nil")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO queue_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Queue, t.TaskType, t.TaskName, t.Payload, t.Status, t.Priority, t.RetryCount,
		t.MaxRetries, t.ScheduledAt, t.LockedUntil, t.LockedBy, t.ProcessedAt, t.Error, t.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return queue.ErrDuplicateTask
	}
	return err
}

func (s *QueueStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*queue.Task, error) {
	now := s.now()
	t, err := scanTask(s.pool.QueryRow(ctx, `UPDATE queue_tasks
		SET status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
			  AND ((status = 'pending' AND scheduled_at <= $4)
			    OR (status = 'processing' AND locked_until < $4))
			ORDER BY priority DESC, scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED)
		RETURNING `+taskColumns,
		queues, workerID, now.Add(lockFor), now))
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNoTaskToClaim
	}
	return t, err
}

// processingOnly maps a no-op update of a processing task to the right error.
func (s *QueueStorage) processingOnly(ctx context.Context, id uuid.UUID, affected int64) error {
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return queue.ErrTaskNotFound
	}
	return queue.ErrTaskNotProcessing
}

func (s *QueueStorage) CompleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE queue_tasks
		SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id, s.now())
	if err != nil {
		return err
	}
	return s.processingOnly(ctx, id, tag.RowsAffected())
}

func (s *QueueStorage) FailTask(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE queue_tasks
		SET status = 'pending', retry_count = retry_count + 1, error = $2, scheduled_at = $3,
		    locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id, errMsg, retryAt)
	if err != nil {
		return err
	}
	return s.processingOnly(ctx, id, tag.RowsAffected())
}

func (s *QueueStorage) MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTask(tx.QueryRow(ctx, `DELETE FROM queue_tasks WHERE id = $1 RETURNING `+taskColumns, id))
		if pg.IsNotFoundError(err) {
			return queue.ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO queue_dead_tasks
			(id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), t.ID, t.Queue, t.TaskType, t.TaskName, t.Payload, t.Priority, errMsg, t.RetryCount, s.now())
		return err
	})
}

func (s *QueueStorage) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	tag, err := s.pool.Exec(ctx, `UPDATE queue_tasks SET locked_until = $2
		WHERE id = $1 AND status = 'processing'`, id, s.now().Add(d))
	if err != nil {
		return err
	}
	return s.processingOnly(ctx, id, tag.RowsAffected())
}

func (s *QueueStorage) GetPendingTaskByName(ctx context.Context, name string) (*queue.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM queue_tasks
		WHERE task_name = $1 AND status IN ('pending', 'processing')
		ORDER BY scheduled_at LIMIT 1`, name))
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrTaskNotFound
	}
	return t, err
}
