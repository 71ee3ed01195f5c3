package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/queue"
)

func pendingTask(name string, p queue.Priority, at time.Time) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queue.DefaultQueueName,
		TaskName:    name,
		Status:      queue.TaskStatusPending,
		Priority:    p,
		ScheduledAt: at,
		CreatedAt:   at,
	}
}

func TestMemoryStorage_ClaimOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	past := time.Now().Add(-time.Hour)

	require.NoError(t, ms.CreateTask(ctx, pendingTask("low-old", queue.PriorityLow, past)))
	require.NoError(t, ms.CreateTask(ctx, pendingTask("high-new", queue.PriorityHigh, past.Add(time.Minute))))
	require.NoError(t, ms.CreateTask(ctx, pendingTask("high-old", queue.PriorityHigh, past)))
	require.NoError(t, ms.CreateTask(ctx, pendingTask("future", queue.PriorityMax, time.Now().Add(time.Hour))))

	var order []string
	for {
		task, err := ms.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		if err != nil {
			assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
			break
		}
		order = append(order, task.TaskName)
	}
	assert.Equal(t, []string{"high-old", "high-new", "low-old"}, order)
}

func TestMemoryStorage_ExpiredLockIsReclaimed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	task := pendingTask("t", queue.PriorityDefault, time.Now().Add(-time.Second))
	require.NoError(t, ms.CreateTask(ctx, task))

	_, err := ms.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	again, err := ms.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)
}

func TestMemoryStorage_StateErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	task := pendingTask("t", queue.PriorityDefault, time.Now())
	require.NoError(t, ms.CreateTask(ctx, task))
	assert.ErrorIs(t, ms.CreateTask(ctx, task), queue.ErrDuplicateTask)

	assert.ErrorIs(t, ms.CompleteTask(ctx, task.ID), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, ms.CompleteTask(ctx, uuid.New()), queue.ErrTaskNotFound)
	assert.ErrorIs(t, ms.ExtendLock(ctx, task.ID, time.Minute), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, ms.MoveToDLQ(ctx, uuid.New(), "x"), queue.ErrTaskNotFound)

	got, err := ms.GetPendingTaskByName(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	_, err = ms.GetPendingTaskByName(ctx, "other")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}
