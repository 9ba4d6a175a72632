// Package dispatcher implements the consumer dispatch pipeline: the ordered
// protocol that decodes a wire frame, negotiates debounce / concurrency /
// rate-limit gates against external coordination stores, injects logging
// and dependency facilities, invokes the callable, runs the repeated-
// publication post-step, and releases held resources under a guaranteed
// finalize stage. This is the core of the library.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/callmq/internal/capability"
	"github.com/oriys/callmq/internal/coordination"
	"github.com/oriys/callmq/internal/errs"
	"github.com/oriys/callmq/internal/logging"
	"github.com/oriys/callmq/internal/queueprovider"
	"github.com/oriys/callmq/internal/validate"
	"github.com/oriys/callmq/internal/wire"
)

// republishDelay is the fixed small delay used when the concurrency gate
// fails to acquire a lock.
const republishDelay = 1 * time.Second

// Dispatcher runs the consumer pipeline against one registry and one set of
// coordination-store / queue-provider collaborators.
type Dispatcher struct {
	registry    *wire.Registry
	concurrency coordination.ConcurrencyStore
	debounce    coordination.DebounceStore
	rateLimit   coordination.RateLimitStore
	queue       queueprovider.Provider

	hooks   Hooks
	metrics DispatchMetrics
}

// New builds a Dispatcher. concurrency, debounce, and rateLimit may be the
// same passthrough/in-memory/Redis store value, since each contract is
// independent; queue is used only for the gate-triggered and Repeated
// republishes.
func New(registry *wire.Registry, concurrency coordination.ConcurrencyStore, debounce coordination.DebounceStore, rateLimit coordination.RateLimitStore, queue queueprovider.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		concurrency: concurrency,
		debounce:    debounce,
		rateLimit:   rateLimit,
		queue:       queue,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// heldLock tracks a concurrency lock acquired during one Dispatch call, so
// the finalize stage can release it regardless of how the pipeline exits.
type heldLock struct {
	typeKey     string
	instanceKey string
}

// Dispatch runs the full pipeline against one wire-framed work item. A nil
// return means the item completed, was silently debounced away, or was
// deferred (concurrency/rate-limit republish) — all non-error outcomes.
// A non-nil return is always an errs.Classified (usually an
// *errs.CallableError wrapping the stage's cause), for the retry/DLQ shell
// to classify.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, queueName string, meta queueprovider.Metadata) error {
	log := logging.Stage("dispatch")

	// Stage 1: decode. No callable exists yet on failure, so there is no
	// onError to run and no finalize to execute.
	decoded, err := wire.Decode(d.registry, raw)
	if err != nil {
		log.Warn("malformed frame", "queue", queueName, "error", err)
		return err
	}

	invocable, ok := decoded.(capability.Invocable)
	if !ok {
		err := errs.MalformedFrame(fmt.Sprintf("type tag %q does not implement Invocable", decoded.TypeTag()), nil)
		log.Error("decoded callable is not invocable", "type_tag", decoded.TypeTag())
		return err
	}

	var held *heldLock
	pipelineErr := d.runPipeline(ctx, decoded, invocable, queueName, meta, &held)

	// Stage 12: finalize, always, now that the callable exists.
	if held != nil {
		if relErr := d.concurrency.ReleaseLock(ctx, held.typeKey, held.instanceKey); relErr != nil {
			log.Warn("release concurrency lock failed", "type_key", held.typeKey, "instance_key", held.instanceKey, "error", relErr)
		}
	}
	if d.hooks.FinalizeCall != nil {
		d.hooks.FinalizeCall(ctx, invocable, queueName, pipelineErr)
	}

	return pipelineErr
}

// runPipeline executes stages 2–11. It returns nil for every non-error
// outcome (normal completion, debounce discard, gated republish).
func (d *Dispatcher) runPipeline(ctx context.Context, decoded wire.Callable, c capability.Invocable, queueName string, meta queueprovider.Metadata, held **heldLock) error {
	log := logging.Stage("dispatch")
	typeTag := decoded.TypeTag()

	// Stage 2 (partial): Repeated is validated unconditionally up front;
	// Debounced/ConcurrencyCapped/RateLimited are
	// validated when their branch below is entered.
	if rep, ok := c.(capability.Repeated); ok {
		if err := validate.Repeated(rep); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
	}

	// Stage 3: debounce gate.
	if db, ok := c.(capability.Debounced); ok {
		if err := validate.Debounced(db, true); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
		key := coordination.Key(typeTag, db.DebounceTypeKey())
		instanceKey := db.DebouncedInstanceKey()
		interval := time.Duration(db.DebounceInterval()) * time.Second

		proceed, err := d.debounce.TryRemoveOwnReference(ctx, key, instanceKey, interval)
		if err != nil {
			return d.onPipelineError(ctx, c, errs.CoordinationStore("debounce gate", err))
		}
		if !proceed {
			log.Info("debounce discarded (superseded)", "type_tag", typeTag, "type_key", db.DebounceTypeKey(), "instance_key", instanceKey)
			if d.metrics != nil {
				d.metrics.ObserveDebounceDiscarded()
			}
			return nil
		}
	}

	// Stage 4: concurrency gate.
	if cc, ok := c.(capability.ConcurrencyCapped); ok {
		if err := validate.ConcurrencyCapped(cc); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
		key := coordination.Key(typeTag, cc.ConcurrencyTypeKey())

		gotLock, instanceKey, err := d.concurrency.TrySetLock(ctx, key, cc.ConcurrencyLimit())
		if err != nil {
			return d.onPipelineError(ctx, c, errs.CoordinationStore("concurrency gate", err))
		}
		if !gotLock {
			log.Info("concurrency cap reached, republishing", "type_tag", typeTag, "type_key", cc.ConcurrencyTypeKey())
			if d.metrics != nil {
				d.metrics.ObserveConcurrencyDeferred()
			}
			return d.republish(ctx, decoded, queueName, meta, republishDelay)
		}
		*held = &heldLock{typeKey: key, instanceKey: instanceKey}
	}

	// Stage 5: rate-limit gate.
	if rl, ok := c.(capability.RateLimited); ok {
		if err := validate.RateLimited(rl); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
		key := coordination.Key(typeTag, rl.RateLimitTypeKey())
		period := time.Duration(rl.RateLimitPeriod()) * time.Second

		delay, mustWait, err := d.rateLimit.GetNextAvailableRunTime(ctx, key, rl.RateLimitPerPeriod(), period)
		if err != nil {
			return d.onPipelineError(ctx, c, errs.CoordinationStore("rate limit gate", err))
		}
		if mustWait {
			log.Info("rate limit exceeded, republishing", "type_tag", typeTag, "type_key", rl.RateLimitTypeKey(), "delay", delay)
			if d.metrics != nil {
				d.metrics.ObserveRateLimitDeferred()
			}
			return d.republish(ctx, decoded, queueName, meta, delay)
		}
	}

	// Stage 6: logging init. Logged is a refinement of Invocable.
	if lg, ok := c.(capability.Logged); ok {
		logger, ok := LoggerFromContext(ctx)
		if !ok {
			return d.onPipelineError(ctx, c, errs.MissingCapability(fmt.Sprintf("%q declares Logged but no logger is present in context", typeTag)))
		}
		lg.SetLogger(logger)
	}

	// Stage 7: dependency init.
	if db, ok := c.(capability.DependencyBound); ok {
		locator, ok := ServiceLocatorFromContext(ctx)
		if !ok {
			return d.onPipelineError(ctx, c, errs.MissingCapability(fmt.Sprintf("%q declares DependencyBound but no service locator is present in context", typeTag)))
		}
		if err := db.BindDependencies(locator); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
	}

	// Stage 8: pre-call hook.
	if d.hooks.PreCall != nil {
		if err := d.hooks.PreCall(ctx, c, queueName); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
	}

	// Stage 9: invoke.
	start := time.Now()
	invokeErr := c.Invoke(ctx)
	if d.metrics != nil {
		d.metrics.ObserveInvokeDuration(time.Since(start).Seconds())
	}
	if invokeErr != nil {
		if d.metrics != nil {
			d.metrics.ObserveInvocation(typeTag, "error")
		}
		return d.onPipelineError(ctx, c, invokeErr)
	}
	if d.metrics != nil {
		d.metrics.ObserveInvocation(typeTag, "success")
	}

	// Stage 10: post-call hook + Repeated branch.
	if d.hooks.PostCall != nil {
		if err := d.hooks.PostCall(ctx, c, queueName); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
	}

	if rep, ok := c.(capability.Repeated); ok {
		if err := d.runRepeatedBranch(ctx, decoded, rep, queueName, meta); err != nil {
			return d.onPipelineError(ctx, c, err)
		}
	}

	return nil
}

func (d *Dispatcher) runRepeatedBranch(ctx context.Context, decoded wire.Callable, rep capability.Repeated, queueName string, meta queueprovider.Metadata) error {
	if rep.RepeatedShouldContinue() {
		next := rep.RepeatedCurrentCall() + 1
		rep.SetRepeatedCurrentCall(next)

		if next >= rep.RepeatedMaxCalls() {
			if d.metrics != nil {
				d.metrics.ObserveRepeatedCompleted(true)
			}
			return rep.RepeatedCompleted(ctx, true)
		}

		if d.metrics != nil {
			d.metrics.ObserveRepeatedRepublished()
		}
		interval := time.Duration(rep.RepeatedInterval()) * time.Second
		return d.republish(ctx, decoded, queueName, meta, interval)
	}

	if d.metrics != nil {
		d.metrics.ObserveRepeatedCompleted(false)
	}
	return rep.RepeatedCompleted(ctx, false)
}

// republish re-encodes decoded and enqueues it back onto queueName with
// delay, preserving metadata. Used by the concurrency gate, rate-limit
// gate, and the Repeated branch.
func (d *Dispatcher) republish(ctx context.Context, decoded wire.Callable, queueName string, meta queueprovider.Metadata, delay time.Duration) error {
	raw, err := wire.Encode(decoded)
	if err != nil {
		return err
	}
	if err := d.queue.EnqueueDelayed(ctx, queueName, raw, delay, meta); err != nil {
		return errs.Transport("republish", err)
	}
	return nil
}

// onPipelineError implements stage 11: run onError inside its own
// try-equivalent, log and swallow any error it raises, then wrap the
// original error in a CallableError carrying the callable reference.
func (d *Dispatcher) onPipelineError(ctx context.Context, c capability.Invocable, cause error) error {
	log := logging.Stage("dispatch")

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("onError panicked", "panic", r)
			}
		}()
		if onErrErr := c.OnError(ctx, cause); onErrErr != nil {
			log.Warn("onError returned an error, swallowing", "error", onErrErr)
		}
	}()

	// Every error from the stages between decode and finalize is wrapped in
	// a CallableError carrying the callable reference. CallableError.Kind()
	// and .NoRetry() delegate to cause when cause is itself Classified, so
	// a ValidationError or CoordinationStoreError raised by a gate keeps
	// its true classification for the retry shell.
	return errs.User(c, cause, false)
}
