package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/queue"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_Tick(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := queue.NewMemoryStorage()
	s, err := queue.NewScheduler(store, queue.WithSchedulerClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.AddTask("billing.sweep", queue.EveryInterval(15*time.Minute), queue.WithTaskPriority(queue.PriorityHigh)))
	assert.ErrorIs(t, s.AddTask("billing.sweep", queue.EveryInterval(time.Minute)), queue.ErrTaskAlreadyRegistered)

	s.Tick(context.Background())
	pending := store.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, queue.TaskTypePeriodic, pending[0].TaskType)
	assert.Equal(t, queue.PriorityHigh, pending[0].Priority)

	// not due yet, and a pending one exists anyway
	clock.Advance(5 * time.Minute)
	s.Tick(context.Background())
	assert.Len(t, store.Pending(), 1)

	// due, but the previous run is still pending
	clock.Advance(15 * time.Minute)
	s.Tick(context.Background())
	assert.Len(t, store.Pending(), 1)
}

func TestScheduler_TwoSchedulersShareStorage(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStorage()
	for range 2 {
		s, err := queue.NewScheduler(store)
		require.NoError(t, err)
		require.NoError(t, s.AddTask("billing.sweep", queue.EveryInterval(time.Minute)))
		s.Tick(context.Background())
	}
	assert.Len(t, store.Pending(), 1)
}

func TestScheduler_StartWithoutTasks(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Start(context.Background()), queue.ErrSchedulerNotConfigured)
	assert.ErrorIs(t, s.AddTask("", queue.EveryInterval(time.Minute)), queue.ErrInvalidSchedule)

	_, err = queue.NewScheduler(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
}

func TestSchedules(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		schedule queue.Schedule
		want     time.Time
	}{
		{"interval", queue.EveryInterval(15 * time.Minute), from.Add(15 * time.Minute)},
		{"hourly later this hour", queue.HourlyAt(45), time.Date(2025, 1, 1, 9, 45, 0, 0, time.UTC)},
		{"hourly next hour", queue.HourlyAt(10), time.Date(2025, 1, 1, 10, 10, 0, 0, time.UTC)},
		{"daily today", queue.DailyAt(18, 0), time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)},
		{"daily tomorrow", queue.DailyAt(2, 0), time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.schedule.Next(from))
			assert.NotEmpty(t, tt.schedule.String())
		})
	}
}
