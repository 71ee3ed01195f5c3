package locker

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Locker with session-level advisory locks. Each held
// lock pins one pooled connection until it is released, because advisory
// locks belong to the session that took them.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("locker: postgres pool is required")
	}
	return &Postgres{pool: pool}
}

func (p *Postgres) TryLock(ctx context.Context, key string) (Unlock, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Join(errors.New("locker: failed to acquire connection"), err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, errors.Join(errors.New("locker: advisory lock query failed"), err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLocked
	}

	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			// A connection that still holds the lock must not go back to the pool.
			_ = conn.Conn().Close(context.WithoutCancel(ctx))
			return errors.Join(errors.New("locker: advisory unlock failed"), err)
		}
		return nil
	}, nil
}
