// Package redisstore implements the coordination.ConcurrencyStore,
// coordination.DebounceStore, and coordination.RateLimitStore contracts
// against Redis, using Lua scripts for record-granularity atomicity, the
// same technique this codebase's token-bucket rate limiter
// (internal/ratelimit/redis_backend.go) and Redis cache
// (internal/cache/redis.go) use, generalized to debounce and concurrency
// records.
package redisstore

import (
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed implementation of all three coordination
// contracts, namespaced under a configurable key prefix.
type Store struct {
	client *redis.Client
	prefix string
}

// Config configures a Store.
type Config struct {
	// Prefix namespaces all keys this store writes. Default "callmq:coord:".
	Prefix string
}

// New creates a Redis-backed coordination store using an existing client.
func New(client *redis.Client, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "callmq:coord:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) concurrencyKey(typeKey string) string { return s.prefix + "lock:" + typeKey }
func (s *Store) debounceKey(typeKey string) string    { return s.prefix + "debounce:" + typeKey }
func (s *Store) rateLimitKey(typeKey string) string   { return s.prefix + "rate:" + typeKey }
