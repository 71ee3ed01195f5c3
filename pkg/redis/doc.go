// Package redis connects the service to Redis, which backs the distributed
// subscription lock (see locker.Redis) when LOCK_DRIVER=redis.
//
// Config is read from REDIS_* environment variables. Connect retries until
// the server answers a ping; Healthcheck returns a readiness probe.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	locks := locker.NewRedis(client)
package redis
