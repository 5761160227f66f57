// Package redis connects to the optional Redis server that backs the shared
// rate limiter.
//
//	client, err := redis.Connect(ctx, redis.Config{URL: "redis://localhost:6379/0"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	store := ratelimiter.NewRedisStore(client)
//
// Connect retries with a fixed interval until the server answers PING or the
// connect timeout elapses.
package redis
