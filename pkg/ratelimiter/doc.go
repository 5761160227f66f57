// Package ratelimiter implements token bucket rate limiting with pluggable
// storage and an HTTP middleware keyed per tenant and client.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. A request consumes one token; when the bucket is empty the
// request is denied without consuming anything.
//
// MemoryStore keeps buckets in process. RedisStore keeps them in Redis with a
// Lua script so that several instances share one limit.
//
//	store := ratelimiter.NewMemoryStore()
//	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       100,
//		RefillRate:     100,
//		RefillInterval: time.Minute,
//	})
//	r.Use(ratelimiter.Middleware(bucket, ratelimiter.Composite(ratelimiter.TenantKey, ratelimiter.IPKey)))
//
// Denied requests get 429 with X-RateLimit-* and Retry-After headers and the
// standard JSON error body.
package ratelimiter
