// Package publisher serializes callables and hands them to a
// queueprovider.Provider, assigning a fresh debounce instance key before a
// Debounced callable is enqueued.
package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/callmq/internal/capability"
	"github.com/oriys/callmq/internal/coordination"
	"github.com/oriys/callmq/internal/errs"
	"github.com/oriys/callmq/internal/queueprovider"
	"github.com/oriys/callmq/internal/wire"
)

// Publisher publishes callables onto a queue, handling the Debounced
// special case (fresh single-use instance key + debounce-store reference +
// delayed enqueue at the debounce interval).
type Publisher struct {
	queue    queueprovider.Provider
	debounce coordination.DebounceStore
}

// New creates a Publisher. debounce is only consulted for callables
// implementing capability.Debounced.
func New(queue queueprovider.Provider, debounce coordination.DebounceStore) *Publisher {
	return &Publisher{queue: queue, debounce: debounce}
}

// Options configures a single Publish call.
type Options struct {
	Delay     time.Duration
	QueueName string
	Metadata  queueprovider.Metadata
}

// Publish encodes c and enqueues it. For Debounced callables it assigns a
// fresh instance key unconditionally — instance keys are single-use, so
// any caller-provided key is overwritten — records the debounce reference,
// and enqueues with delay forced to the declared interval regardless of
// opts.Delay.
func (p *Publisher) Publish(ctx context.Context, c wire.Callable, opts Options) error {
	if db, ok := c.(capability.Debounced); ok {
		return p.publishDebounced(ctx, c, db, opts)
	}

	raw, err := wire.Encode(c)
	if err != nil {
		return err
	}
	if opts.Delay > 0 {
		if err := p.queue.EnqueueDelayed(ctx, opts.QueueName, raw, opts.Delay, opts.Metadata); err != nil {
			return errs.Transport("publish delayed", err)
		}
		return nil
	}
	if err := p.queue.Enqueue(ctx, opts.QueueName, raw, opts.Metadata); err != nil {
		return errs.Transport("publish", err)
	}
	return nil
}

func (p *Publisher) publishDebounced(ctx context.Context, c wire.Callable, db capability.Debounced, opts Options) error {
	instanceKey := uuid.New().String()
	db.SetDebouncedInstanceKey(instanceKey)

	interval := time.Duration(db.DebounceInterval()) * time.Second
	key := coordination.Key(c.TypeTag(), db.DebounceTypeKey())

	if err := p.debounce.SetReference(ctx, key, instanceKey, interval); err != nil {
		return errs.CoordinationStore("publish debounced: set reference", err)
	}

	raw, err := wire.Encode(c)
	if err != nil {
		return err
	}
	if err := p.queue.EnqueueDelayed(ctx, opts.QueueName, raw, interval, opts.Metadata); err != nil {
		return errs.Transport("publish debounced", err)
	}
	return nil
}

// PublishBatch publishes many callables to one queue. Debounced items are
// emitted one-at-a-time via Publish (so the debounce pointer is set per
// item); the rest are batched through the provider's bulk path.
func (p *Publisher) PublishBatch(ctx context.Context, callables []wire.Callable, queueName string) error {
	var bulk [][]byte

	flush := func() error {
		if len(bulk) == 0 {
			return nil
		}
		if err := p.queue.EnqueueBulk(ctx, queueName, bulk, nil); err != nil {
			return errs.Transport("publish batch", err)
		}
		bulk = bulk[:0]
		return nil
	}

	for _, c := range callables {
		if _, ok := c.(capability.Debounced); ok {
			if err := flush(); err != nil {
				return err
			}
			if err := p.Publish(ctx, c, Options{QueueName: queueName}); err != nil {
				return err
			}
			continue
		}

		raw, err := wire.Encode(c)
		if err != nil {
			return err
		}
		bulk = append(bulk, raw)
	}
	return flush()
}
