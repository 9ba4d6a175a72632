// Package coordination declares the three external store contracts the
// dispatcher consults to implement debounce, concurrency-cap, and
// rate-limit semantics. The core only specifies these contracts; concrete
// implementations live under internal/coordstore.
package coordination

import (
	"context"
	"time"
)

// Key builds the composite namespace key every coordination record is
// stored under: fullTypeTag + "+" + userTypeKey. This guarantees that two
// distinct callable types sharing a user-chosen key don't interfere.
func Key(fullTypeTag, userTypeKey string) string {
	return fullTypeTag + "+" + userTypeKey
}

// ConcurrencyStore implements the concurrency-lock record contract.
type ConcurrencyStore interface {
	// TrySetLock atomically verifies fewer than limit unexpired records
	// share typeKey, then inserts a new record with a fresh instanceKey and
	// bounded expiration. Under a race that produces more than limit
	// records, implementations MUST break ties deterministically (by
	// (setAt, instanceKey) ordering) and self-delete records beyond the
	// limit, returning (false, "") for those.
	TrySetLock(ctx context.Context, typeKey string, limit int) (gotLock bool, instanceKey string, err error)

	// ReleaseLock is a best-effort deletion; implementations may tolerate
	// failure since TTL expiration is the ultimate cleanup.
	ReleaseLock(ctx context.Context, typeKey, instanceKey string) error
}

// DebounceStore implements the debounce record contract.
type DebounceStore interface {
	// SetReference upserts the one logical record for typeKey, carrying
	// instanceKey, expiring no sooner than 2*interval.
	SetReference(ctx context.Context, typeKey, instanceKey string, interval time.Duration) error

	// TryRemoveOwnReference deletes the record iff its current instanceKey
	// equals the caller's. Returns true if removed, or if no record was
	// present — in the absent case it MUST re-install a reference to
	// prevent a backlog of queued messages from all executing. Returns
	// false if a different instanceKey is present: this message has been
	// superseded and MUST be discarded.
	TryRemoveOwnReference(ctx context.Context, typeKey, instanceKey string, interval time.Duration) (bool, error)
}

// RateLimitStore implements the rate-limit record contract.
type RateLimitStore interface {
	// GetNextAvailableRunTime returns (0, false) iff the count of unexpired
	// records for typeKey is < perPeriod, in which case it MUST also
	// insert a new record with expiration = period. Otherwise it returns
	// the delay until the oldest record expires, lower bounded to 1
	// second, and true. Races that temporarily exceed the
	// limit MUST be reconciled by deterministic tie-break: the loser
	// self-deletes and returns a delay; winners keep their record.
	GetNextAvailableRunTime(ctx context.Context, typeKey string, perPeriod int, period time.Duration) (delay time.Duration, mustWait bool, err error)
}
