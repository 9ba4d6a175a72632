package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oriys/callmq/internal/errs"
)

// trySetLockScript evicts expired members of a sorted-set lock (scored by
// expiresAt), then admits a new member iff fewer than limit remain. Running
// the evict-count-admit sequence inside one script makes the whole
// operation atomic, so concurrent callers are serialized by Redis itself
// rather than needing a client-side tie-break.
//
// KEYS[1] = lock zset key
// ARGV[1] = limit
// ARGV[2] = instanceKey
// ARGV[3] = now (unix nanoseconds)
// ARGV[4] = expiresAt (unix nanoseconds)
// Returns 1 if the lock was granted, 0 otherwise.
var trySetLockScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[3])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[1]) then
    redis.call('ZADD', KEYS[1], ARGV[4], ARGV[2])
    redis.call('PEXPIRE', KEYS[1], math.ceil((ARGV[4] - ARGV[3]) / 1e6) + 1000)
    return 1
end
return 0
`)

// TrySetLock implements coordination.ConcurrencyStore.
func (s *Store) TrySetLock(ctx context.Context, typeKey string, limit int) (bool, string, error) {
	instanceKey := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(defaultConcurrencyLeaseTTL)

	res, err := trySetLockScript.Run(ctx, s.client, []string{s.concurrencyKey(typeKey)},
		limit, instanceKey, now.UnixNano(), expiresAt.UnixNano(),
	).Int()
	if err != nil {
		return false, "", errs.CoordinationStore("concurrency trySetLock", err)
	}
	if res == 1 {
		return true, instanceKey, nil
	}
	return false, "", nil
}

// ReleaseLock implements coordination.ConcurrencyStore. Best-effort: a
// failure here is tolerated by the dispatcher, since TTL is the ultimate
// cleanup, but it is still surfaced as an error for the caller to log.
func (s *Store) ReleaseLock(ctx context.Context, typeKey, instanceKey string) error {
	if err := s.client.ZRem(ctx, s.concurrencyKey(typeKey), instanceKey).Err(); err != nil {
		return errs.CoordinationStore(fmt.Sprintf("concurrency releaseLock %s/%s", typeKey, instanceKey), err)
	}
	return nil
}

const defaultConcurrencyLeaseTTL = 5 * time.Minute
