// Package capability defines the optional dispatch interfaces a callable may
// implement on top of the base Invocable contract. The dispatcher detects
// each capability by type-asserting the decoded callable against the
// corresponding interface; there is no inheritance hierarchy, only
// composition by interface (see DESIGN.md for the rationale).
package capability

import "context"

// Completion is returned by the user-visible hooks a callable implements.
// A nil error means the hook ran to completion.
type Completion = error

// Invocable is the base contract every dispatchable callable satisfies.
// Logged is a refinement of Invocable, not a disjoint capability: a callable
// is always Invocable, and Logged callables additionally accept an injected
// logger before Invoke runs.
type Invocable interface {
	// Invoke performs the callable's user-visible work.
	Invoke(ctx context.Context) Completion

	// OnError runs when the dispatcher catches an error from any stage of
	// the pipeline after the callable was constructed. A no-op default is
	// acceptable; callables that don't need error handling can embed
	// NoopErrorHandler.
	OnError(ctx context.Context, cause error) Completion
}

// NoopErrorHandler can be embedded by callables with no error-handling
// logic of their own.
type NoopErrorHandler struct{}

// OnError implements Invocable.OnError as a no-op.
func (NoopErrorHandler) OnError(context.Context, error) error { return nil }

// Logger is the minimal logging facility the dispatcher injects into Logged
// callables. Concrete hosts typically hand in a *slog.Logger wrapped to
// satisfy this interface.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Logged marks a callable that wants a logger injected by the dispatcher
// before Invoke runs. The logger slot MUST be excluded from wire encoding.
type Logged interface {
	Invocable
	SetLogger(l Logger)
}

// ServiceLocator resolves named dependencies for DependencyBound callables.
// Concrete hosts back this with a DI container, service registry, etc.
type ServiceLocator interface {
	Resolve(name string) (any, error)
}

// DependencyBound marks a callable that resolves some of its fields through
// a service locator handed to it by the dispatcher before Invoke runs.
// Fields populated this way MUST be excluded from wire encoding.
type DependencyBound interface {
	Invocable
	BindDependencies(locator ServiceLocator) error
}

// Debounced marks a callable whose invocations for a given TypeKey collapse:
// only the most recently published instance within Interval actually runs.
type Debounced interface {
	Invocable

	// DebounceTypeKey groups callables that should debounce against one
	// another. Must be non-empty.
	DebounceTypeKey() string

	// DebounceInterval is the window within which only the latest publish
	// survives. Must be > 0.
	DebounceInterval() (interval int64)

	// InstanceKey is the publisher-assigned, single-use identifier for this
	// particular publish. DebouncedInstanceKey returns the key currently set
	// on the callable (empty before the publisher assigns one).
	DebouncedInstanceKey() string

	// SetDebouncedInstanceKey is called by the publisher to assign a fresh,
	// single-use instance key immediately before enqueueing.
	SetDebouncedInstanceKey(key string)
}

// RateLimited marks a callable whose invocations for a given TypeKey are
// capped to PerPeriod within any rolling Period window.
type RateLimited interface {
	Invocable

	RateLimitTypeKey() string
	RateLimitPerPeriod() int
	RateLimitPeriod() (periodSeconds int64)
}

// ConcurrencyCapped marks a callable whose in-flight bodies for a given
// TypeKey never exceed Limit at once.
type ConcurrencyCapped interface {
	Invocable

	ConcurrencyTypeKey() string
	ConcurrencyLimit() int
}

// Repeated marks a callable that republishes itself, with a mutated call
// counter, until it has run MaxCalls times or ShouldContinue reports false.
type Repeated interface {
	Invocable

	RepeatedMaxCalls() int
	RepeatedInterval() (intervalSeconds int64)

	// RepeatedCurrentCall returns the number of times Invoke has already run
	// for this logical repetition (0 before the first call).
	RepeatedCurrentCall() int
	// SetRepeatedCurrentCall is called by the dispatcher to bump the counter
	// before republishing the mutated callable.
	SetRepeatedCurrentCall(n int)

	// RepeatedShouldContinue is consulted after each Invoke to decide
	// whether to schedule the next repetition.
	RepeatedShouldContinue() bool

	// RepeatedCompleted runs exactly once, either because MaxCalls was
	// reached (reachedMax=true) or ShouldContinue returned false
	// (reachedMax=false).
	RepeatedCompleted(ctx context.Context, reachedMax bool) Completion
}
