package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oriys/callmq/internal/errs"
)

// getNextAvailableRunTimeScript evicts records whose window has expired
// (scored by setAt, cutoff = now - period), then either admits a new record
// (count < perPeriod) or reports the oldest surviving setAt so the caller
// can compute a wait. Like trySetLockScript, running this as one script
// means concurrent callers are reconciled by Redis's serialized execution
// rather than a client-side tie-break.
//
// KEYS[1] = rate-limit zset key
// ARGV[1] = perPeriod
// ARGV[2] = now (unix nanoseconds)
// ARGV[3] = cutoff (unix nanoseconds) = now - period
// ARGV[4] = instanceKey (only used if admitted)
// ARGV[5] = period seconds, for the key TTL
// Returns {1, 0} if admitted (no wait), or {0, oldestSetAtNanos} if the
// caller must wait.
var getNextAvailableRunTimeScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[3])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[1]) then
    redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
    redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]) + 10)
    return {1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, oldest[2]}
`)

// GetNextAvailableRunTime implements coordination.RateLimitStore.
func (s *Store) GetNextAvailableRunTime(ctx context.Context, typeKey string, perPeriod int, period time.Duration) (time.Duration, bool, error) {
	now := time.Now()
	cutoff := now.Add(-period)
	instanceKey := uuid.New().String()

	res, err := getNextAvailableRunTimeScript.Run(ctx, s.client, []string{s.rateLimitKey(typeKey)},
		perPeriod, now.UnixNano(), cutoff.UnixNano(), instanceKey, int64(period.Seconds()),
	).Slice()
	if err != nil {
		return 0, false, errs.CoordinationStore(fmt.Sprintf("rateLimit getNextAvailableRunTime %s", typeKey), err)
	}
	if len(res) != 2 {
		return 0, false, errs.CoordinationStore(fmt.Sprintf("rateLimit getNextAvailableRunTime %s: unexpected result shape", typeKey), nil)
	}

	admitted, _ := res[0].(int64)
	if admitted == 1 {
		return 0, false, nil
	}

	// Redis reports sorted-set scores as float strings (e.g. "1.7e+18"), so
	// the score is parsed as a float before converting back to nanoseconds.
	oldestNanosStr, _ := res[1].(string)
	var oldestScore float64
	if _, scanErr := fmt.Sscanf(oldestNanosStr, "%g", &oldestScore); scanErr != nil {
		return time.Second, true, nil
	}
	oldest := time.Unix(0, int64(oldestScore))
	delay := period - now.Sub(oldest)
	if delay < time.Second {
		delay = time.Second
	}
	return delay, true, nil
}
