// Package locker provides exclusive, non-reentrant keyed locks used to keep
// at most one billing operation in flight per subscription.
//
// Three backends share the Locker interface: Memory for a single process,
// Redis for a fleet sharing a Redis instance, and Postgres session-level
// advisory locks when the database is the only shared dependency.
package locker

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned when the key is held by someone else.
var ErrLocked = errors.New("locker: key is locked")

// Unlock releases a held key. It is safe to call once.
type Unlock func(ctx context.Context) error

// Locker acquires keyed locks without waiting.
type Locker interface {
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// SubscriptionKey is the lock key guarding one subscription.
func SubscriptionKey(id string) string {
	return "subscription:" + id
}

// Acquire polls TryLock until it succeeds, ctx is done or wait elapses.
// A zero wait makes a single attempt.
func Acquire(ctx context.Context, l Locker, key string, wait time.Duration) (Unlock, error) {
	unlock, err := l.TryLock(ctx, key)
	if err == nil || !errors.Is(err, ErrLocked) || wait <= 0 {
		return unlock, err
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(min(wait/10+time.Millisecond, 100*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrLocked
		case <-tick.C:
			unlock, err = l.TryLock(ctx, key)
			if err == nil || !errors.Is(err, ErrLocked) {
				return unlock, err
			}
		}
	}
}
