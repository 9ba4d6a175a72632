// Package runtime holds the process-wide singleton state: a single
// registry, a single queue-provider reference, and an optional
// debounce-store reference used by the publisher, set once via Init and
// read through a guarded accessor that fails with a classified error if
// unset. Grounded on the atomic.Pointer singleton pattern used by
// internal/logging/slog.go's opLogger.
//
// This is a convenience for hosts that want one process-wide wiring, not a
// requirement: dispatcher.Dispatcher and publisher.Publisher can equally be
// constructed directly and threaded explicitly.
package runtime

import (
	"sync/atomic"

	"github.com/oriys/callmq/internal/coordination"
	"github.com/oriys/callmq/internal/errs"
	"github.com/oriys/callmq/internal/queueprovider"
	"github.com/oriys/callmq/internal/wire"
)

// State bundles the process-wide handles Init installs.
type State struct {
	Registry      *wire.Registry
	Queue         queueprovider.Provider
	DebounceStore coordination.DebounceStore
}

var current atomic.Pointer[State]

// Init installs the process-wide state. Calling it again replaces the
// previous state; hosts typically call it exactly once at start-up, before
// any publish or consume.
func Init(s State) {
	current.Store(&s)
}

// Registry returns the process-wide registry, or a classified
// MissingCapability error if Init has not run.
func Registry() (*wire.Registry, error) {
	s := current.Load()
	if s == nil || s.Registry == nil {
		return nil, errs.MissingCapability("runtime: registry accessed before Init")
	}
	return s.Registry, nil
}

// Queue returns the process-wide queue provider, or a classified error if
// Init has not run.
func Queue() (queueprovider.Provider, error) {
	s := current.Load()
	if s == nil || s.Queue == nil {
		return nil, errs.MissingCapability("runtime: queue provider accessed before Init")
	}
	return s.Queue, nil
}

// DebounceStore returns the process-wide publisher-side debounce store, or
// a classified error if Init has not run or no debounce store was
// configured.
func DebounceStore() (coordination.DebounceStore, error) {
	s := current.Load()
	if s == nil || s.DebounceStore == nil {
		return nil, errs.MissingCapability("runtime: debounce store accessed before Init")
	}
	return s.DebounceStore, nil
}

// Reset clears the process-wide state. Intended for tests.
func Reset() {
	current.Store(nil)
}
