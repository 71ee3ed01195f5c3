package locker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/locker"
)

func TestMemory_TryLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := locker.NewMemory()
	key := locker.SubscriptionKey("abc")

	unlock, err := m.TryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, m.Held(key))

	_, err = m.TryLock(ctx, key)
	assert.ErrorIs(t, err, locker.ErrLocked)

	other, err := m.TryLock(ctx, locker.SubscriptionKey("other"))
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))
	assert.False(t, m.Held(key))

	again, err := m.TryLock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemory_MutualExclusion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := locker.NewMemory()

	var inside, maxInside, acquired atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.TryLock(ctx, "k")
			if err != nil {
				return
			}
			acquired.Add(1)
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_ = unlock(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.GreaterOrEqual(t, acquired.Load(), int32(1))
}

func TestAcquire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("waits for release", func(t *testing.T) {
		t.Parallel()

		m := locker.NewMemory()
		unlock, err := m.TryLock(ctx, "k")
		require.NoError(t, err)

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = unlock(ctx)
		}()

		got, err := locker.Acquire(ctx, m, "k", time.Second)
		require.NoError(t, err)
		require.NoError(t, got(ctx))
	})

	t.Run("gives up after wait", func(t *testing.T) {
		t.Parallel()

		m := locker.NewMemory()
		_, err := m.TryLock(ctx, "k")
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, m, "k", 30*time.Millisecond)
		assert.ErrorIs(t, err, locker.ErrLocked)
	})

	t.Run("zero wait is a single try", func(t *testing.T) {
		t.Parallel()

		m := locker.NewMemory()
		_, err := m.TryLock(ctx, "k")
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, m, "k", 0)
		assert.ErrorIs(t, err, locker.ErrLocked)
	})
}

func TestConstructorsRequireClients(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { locker.NewRedis(nil) })
	assert.Panics(t, func() { locker.NewPostgres(nil) })
}
