// Package memstore implements the coordination.ConcurrencyStore,
// coordination.DebounceStore, and coordination.RateLimitStore contracts
// in-process, for local/offline execution and tests. The passthrough variant
// (NewPassthrough) accepts every lock, treats every debounce removal as
// successful, and never rate-limits; the regular variant (New) enforces real
// semantics against an in-memory map guarded by a mutex, grounded on
// LocalTokenBucketBackend (internal/ratelimit/fallback_backend.go).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store implements all three coordination contracts against process-local
// maps. It is safe for concurrent use within one process but, unlike a
// Redis-backed store, provides no cross-process coordination.
type Store struct {
	passthrough bool

	mu          sync.Mutex
	concurrency map[string][]concurrencyRecord // typeKey -> records
	debounce    map[string]debounceRecord      // typeKey -> record
	rateLimit   map[string][]rateLimitRecord   // typeKey -> records

	now func() time.Time
}

type concurrencyRecord struct {
	instanceKey string
	setAt       time.Time
	expiresAt   time.Time
}

type debounceRecord struct {
	instanceKey string
	expiresAt   time.Time
}

type rateLimitRecord struct {
	instanceKey string
	setAt       time.Time
	expiresAt   time.Time
}

// New creates a Store enforcing real debounce/concurrency/rate-limit
// semantics in-memory.
func New() *Store {
	return &Store{
		concurrency: make(map[string][]concurrencyRecord),
		debounce:    make(map[string]debounceRecord),
		rateLimit:   make(map[string][]rateLimitRecord),
		now:         time.Now,
	}
}

// NewPassthrough creates a Store that never gates: every TrySetLock
// succeeds, every TryRemoveOwnReference succeeds, and
// GetNextAvailableRunTime never asks the caller to wait. This is the
// offline/local-execution variant used when no coordination backend is
// configured.
func NewPassthrough() *Store {
	s := New()
	s.passthrough = true
	return s
}

func (s *Store) evictExpired(typeKey string) {
	cutoff := s.now()

	if recs, ok := s.concurrency[typeKey]; ok {
		kept := recs[:0]
		for _, r := range recs {
			if r.expiresAt.After(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.concurrency, typeKey)
		} else {
			s.concurrency[typeKey] = kept
		}
	}

	if rec, ok := s.debounce[typeKey]; ok && !rec.expiresAt.After(cutoff) {
		delete(s.debounce, typeKey)
	}

	if recs, ok := s.rateLimit[typeKey]; ok {
		kept := recs[:0]
		for _, r := range recs {
			if r.expiresAt.After(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.rateLimit, typeKey)
		} else {
			s.rateLimit[typeKey] = kept
		}
	}
}

// TrySetLock implements coordination.ConcurrencyStore.
func (s *Store) TrySetLock(_ context.Context, typeKey string, limit int) (bool, string, error) {
	if s.passthrough {
		return true, uuid.New().String(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired(typeKey)

	recs := s.concurrency[typeKey]
	if len(recs) >= limit {
		return false, "", nil
	}

	now := s.now()
	rec := concurrencyRecord{
		instanceKey: uuid.New().String(),
		setAt:       now,
		expiresAt:   now.Add(defaultConcurrencyLeaseTTL),
	}
	recs = append(recs, rec)

	// Deterministic tie-break: sort by (setAt, instanceKey) and drop the
	// tail beyond limit. A single-goroutine mutex section never actually
	// races, but this keeps the store's reconciliation rule identical to
	// what a linearizable distributed implementation must do.
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].setAt.Equal(recs[j].setAt) {
			return recs[i].instanceKey < recs[j].instanceKey
		}
		return recs[i].setAt.Before(recs[j].setAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	s.concurrency[typeKey] = recs

	for _, r := range recs {
		if r.instanceKey == rec.instanceKey {
			return true, rec.instanceKey, nil
		}
	}
	return false, "", nil
}

// ReleaseLock implements coordination.ConcurrencyStore.
func (s *Store) ReleaseLock(_ context.Context, typeKey, instanceKey string) error {
	if s.passthrough {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.concurrency[typeKey]
	kept := recs[:0]
	for _, r := range recs {
		if r.instanceKey != instanceKey {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.concurrency, typeKey)
	} else {
		s.concurrency[typeKey] = kept
	}
	return nil
}

// SetReference implements coordination.DebounceStore.
func (s *Store) SetReference(_ context.Context, typeKey, instanceKey string, interval time.Duration) error {
	if s.passthrough {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debounce[typeKey] = debounceRecord{
		instanceKey: instanceKey,
		expiresAt:   s.now().Add(2 * interval),
	}
	return nil
}

// TryRemoveOwnReference implements coordination.DebounceStore.
func (s *Store) TryRemoveOwnReference(_ context.Context, typeKey, instanceKey string, interval time.Duration) (bool, error) {
	if s.passthrough {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired(typeKey)

	rec, ok := s.debounce[typeKey]
	if !ok {
		// No record present: re-install a reference so a backlog of queued
		// messages doesn't all execute, and let this message proceed.
		s.debounce[typeKey] = debounceRecord{
			instanceKey: instanceKey,
			expiresAt:   s.now().Add(2 * interval),
		}
		return true, nil
	}
	if rec.instanceKey != instanceKey {
		return false, nil
	}
	delete(s.debounce, typeKey)
	return true, nil
}

// GetNextAvailableRunTime implements coordination.RateLimitStore.
func (s *Store) GetNextAvailableRunTime(_ context.Context, typeKey string, perPeriod int, period time.Duration) (time.Duration, bool, error) {
	if s.passthrough {
		return 0, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired(typeKey)

	recs := s.rateLimit[typeKey]
	if len(recs) < perPeriod {
		now := s.now()
		recs = append(recs, rateLimitRecord{
			instanceKey: uuid.New().String(),
			setAt:       now,
			expiresAt:   now.Add(period),
		})
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].setAt.Equal(recs[j].setAt) {
				return recs[i].instanceKey < recs[j].instanceKey
			}
			return recs[i].setAt.Before(recs[j].setAt)
		})
		s.rateLimit[typeKey] = recs
		return 0, false, nil
	}

	oldest := recs[0]
	for _, r := range recs[1:] {
		if r.setAt.Before(oldest.setAt) {
			oldest = r
		}
	}
	delay := period - s.now().Sub(oldest.setAt)
	if delay < time.Second {
		delay = time.Second
	}
	return delay, true, nil
}

const defaultConcurrencyLeaseTTL = 5 * time.Minute
