// Package redis provides the shared Redis connection and the Redis-backed
// rate limit store.
//
// The store keeps one hash per route:identifier key with the fields count,
// reset_at and blocked_until (Unix milliseconds). Each request is applied by
// a single Lua script so concurrent instances never interleave a
// read-modify-write. Keys carry a TTL covering both the window and any
// block, so expired state disappears without a sweeper.
//
//	client, err := redis.New(&cfg.Redis, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := redis.NewRateLimitStore(client, cfg.RateLimit.KeyPrefix)
//	limiter := security.NewRateLimiter(store, log)
package redis
