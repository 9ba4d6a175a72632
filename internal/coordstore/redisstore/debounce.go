package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/callmq/internal/errs"
)

// SetReference implements coordination.DebounceStore: a plain SET with TTL
// upserts the single logical record per typeKey, expiring no sooner than
// 2*interval.
func (s *Store) SetReference(ctx context.Context, typeKey, instanceKey string, interval time.Duration) error {
	ttl := 2 * interval
	if err := s.client.Set(ctx, s.debounceKey(typeKey), instanceKey, ttl).Err(); err != nil {
		return errs.CoordinationStore(fmt.Sprintf("debounce setReference %s", typeKey), err)
	}
	return nil
}

// tryRemoveOwnReferenceScript implements the three-way debounce outcome:
// absent record re-installs a reference and lets the caller
// proceed; matching record is deleted and the caller proceeds; a
// different instanceKey means the caller has been superseded.
//
// KEYS[1] = debounce key
// ARGV[1] = instanceKey
// ARGV[2] = ttl seconds to use when re-installing an absent reference
// Returns 1 if the caller should proceed, 0 if it has been superseded.
var tryRemoveOwnReferenceScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
    redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
    return 1
end
if cur == ARGV[1] then
    redis.call('DEL', KEYS[1])
    return 1
end
return 0
`)

// TryRemoveOwnReference implements coordination.DebounceStore.
func (s *Store) TryRemoveOwnReference(ctx context.Context, typeKey, instanceKey string, interval time.Duration) (bool, error) {
	ttlSeconds := int64((2 * interval).Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	res, err := tryRemoveOwnReferenceScript.Run(ctx, s.client, []string{s.debounceKey(typeKey)},
		instanceKey, ttlSeconds,
	).Int()
	if err != nil {
		return false, errs.CoordinationStore(fmt.Sprintf("debounce tryRemoveOwnReference %s", typeKey), err)
	}
	return res == 1, nil
}
