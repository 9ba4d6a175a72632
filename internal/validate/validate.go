// Package validate runs pure parameter checks on mixin-declared capabilities
// before the dispatcher makes any external store call. Every check here is
// deterministic and side-effect free; a failure is always a ValidationError,
// never retried.
package validate

import (
	"fmt"

	"github.com/oriys/callmq/internal/capability"
	"github.com/oriys/callmq/internal/errs"
)

// Debounced checks DebounceTypeKey and DebounceInterval. instanceKey is
// validated too, but only once the publisher has had a chance to assign one
// — callers on the publish path should pass the pre-assignment placeholder
// and skip that half of the check until after SetDebouncedInstanceKey runs.
func Debounced(c capability.Debounced, requireInstanceKey bool) error {
	if c.DebounceInterval() <= 0 {
		return errs.Validation(fmt.Sprintf("debounced: interval must be > 0, got %d", c.DebounceInterval()))
	}
	if c.DebounceTypeKey() == "" {
		return errs.Validation("debounced: typeKey must be non-empty")
	}
	if requireInstanceKey && c.DebouncedInstanceKey() == "" {
		return errs.Validation("debounced: instanceKey must be non-empty after publish")
	}
	return nil
}

// RateLimited checks RateLimitPerPeriod and RateLimitPeriod.
func RateLimited(c capability.RateLimited) error {
	if c.RateLimitPerPeriod() < 1 {
		return errs.Validation(fmt.Sprintf("rate_limited: perPeriod must be >= 1, got %d", c.RateLimitPerPeriod()))
	}
	if c.RateLimitPeriod() <= 0 {
		return errs.Validation(fmt.Sprintf("rate_limited: period must be > 0, got %d", c.RateLimitPeriod()))
	}
	return nil
}

// ConcurrencyCapped checks ConcurrencyLimit and ConcurrencyTypeKey.
func ConcurrencyCapped(c capability.ConcurrencyCapped) error {
	if c.ConcurrencyLimit() < 1 {
		return errs.Validation(fmt.Sprintf("concurrency_capped: limit must be >= 1, got %d", c.ConcurrencyLimit()))
	}
	if c.ConcurrencyTypeKey() == "" {
		return errs.Validation("concurrency_capped: typeKey must be non-empty")
	}
	return nil
}

// Repeated checks MaxCalls, Interval, and that CurrentCall (when the
// callable arrives with one already set, i.e. a republished repetition) is
// within [0, maxCalls).
func Repeated(c capability.Repeated) error {
	if c.RepeatedMaxCalls() < 1 {
		return errs.Validation(fmt.Sprintf("repeated: maxCalls must be >= 1, got %d", c.RepeatedMaxCalls()))
	}
	if c.RepeatedInterval() <= 0 {
		return errs.Validation(fmt.Sprintf("repeated: interval must be > 0, got %d", c.RepeatedInterval()))
	}
	cur := c.RepeatedCurrentCall()
	if cur < 0 || cur >= c.RepeatedMaxCalls() {
		return errs.Validation(fmt.Sprintf("repeated: currentCall %d out of range [0, %d)", cur, c.RepeatedMaxCalls()))
	}
	return nil
}
