package dispatcher

import (
	"context"

	"github.com/oriys/callmq/internal/capability"
)

// Hooks are the user-supplied extension points the pipeline calls just
// before the callable runs, just after it runs (before repeated-publication
// handling), and during finalize. Any hook left nil is skipped.
type Hooks struct {
	// PreCall runs immediately before Invoke.
	PreCall func(ctx context.Context, c capability.Invocable, queueName string) error
	// PostCall runs immediately after a successful Invoke, before the
	// Repeated branch. It does not run if Invoke returned an error.
	PostCall func(ctx context.Context, c capability.Invocable, queueName string) error
	// FinalizeCall runs unconditionally once a callable exists, even if an
	// earlier stage aborted or errored. pipelineErr is the error the
	// pipeline is about to return (nil on a clean or gated completion).
	FinalizeCall func(ctx context.Context, c capability.Invocable, queueName string, pipelineErr error)
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithHooks installs user-supplied PreCall/PostCall/FinalizeCall hooks.
func WithHooks(h Hooks) Option {
	return func(d *Dispatcher) { d.hooks = h }
}

// WithMetrics installs a metrics sink. Without it, the dispatcher runs with
// metrics disabled.
func WithMetrics(m DispatchMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// DispatchMetrics is the subset of metrics.Dispatch the dispatcher needs,
// declared locally so this package doesn't force every caller to depend on
// Prometheus.
type DispatchMetrics interface {
	ObserveInvocation(typeTag, outcome string)
	ObserveDebounceDiscarded()
	ObserveConcurrencyDeferred()
	ObserveRateLimitDeferred()
	ObserveRepeatedRepublished()
	ObserveRepeatedCompleted(reachedMax bool)
	ObserveInvokeDuration(seconds float64)
}
