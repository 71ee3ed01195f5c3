package locker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX and a per-holder token.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

type RedisOption func(*Redis)

// WithTTL sets how long a lock survives a crashed holder. It must exceed the
// longest billing operation, including the gateway timeout.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func WithPrefix(p string) RedisOption {
	return func(r *Redis) { r.prefix = p }
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	if client == nil {
		panic("locker: redis client is required")
	}
	r := &Redis{client: client, ttl: 2 * time.Minute, prefix: "billing:lock:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, error) {
	k := r.prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, errors.Join(errors.New("locker: redis set failed"), err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return errors.Join(errors.New("locker: redis release failed"), err)
		}
		return nil
	}, nil
}
