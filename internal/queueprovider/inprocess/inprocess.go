// Package inprocess implements queueprovider.Provider with in-memory Go
// channels, suitable for local execution, examples, and tests. It is the
// offline counterpart to sqsqueue.Provider, grounded on the
// internal/queue.ChannelNotifier push-notification pattern generalized
// into a full queue (payload + delay + bulk + DLQ, not just a wakeup
// signal).
package inprocess

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/callmq/internal/queueprovider"
)

// Item is a single enqueued message delivered to consumers.
type Item struct {
	Payload  []byte
	Metadata queueprovider.Metadata
}

// Provider is an in-process, channel-backed queue. Each distinct queueName
// gets its own buffered channel of ChannelCapacity items, created lazily on
// first use.
type Provider struct {
	mu        sync.Mutex
	queues    map[string]chan Item
	dlqs      map[string]chan Item
	chanCap   int
	hasDLQFor map[string]bool
}

// Config configures a Provider.
type Config struct {
	// ChannelCapacity bounds each queue's internal channel. Default 1024.
	ChannelCapacity int
	// DeadLetterQueues lists the queue names that have a DLQ configured.
	// Any queueName not listed here causes DeadLetter to return
	// queueprovider.ErrNoDeadLetterQueue, so the caller can log and drop
	// instead of blocking on a DLQ that doesn't exist.
	DeadLetterQueues []string
}

// New creates an in-process Provider.
func New(cfg Config) *Provider {
	cap := cfg.ChannelCapacity
	if cap <= 0 {
		cap = 1024
	}
	hasDLQ := make(map[string]bool, len(cfg.DeadLetterQueues))
	for _, q := range cfg.DeadLetterQueues {
		hasDLQ[q] = true
	}
	return &Provider{
		queues:    make(map[string]chan Item),
		dlqs:      make(map[string]chan Item),
		chanCap:   cap,
		hasDLQFor: hasDLQ,
	}
}

func (p *Provider) queueFor(name string) chan Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.queues[name]
	if !ok {
		ch = make(chan Item, p.chanCap)
		p.queues[name] = ch
	}
	return ch
}

func (p *Provider) dlqFor(name string) chan Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.dlqs[name]
	if !ok {
		ch = make(chan Item, p.chanCap)
		p.dlqs[name] = ch
	}
	return ch
}

// Consume returns the delivery channel for queueName, for a host runtime to
// range over.
func (p *Provider) Consume(queueName string) <-chan Item {
	return p.queueFor(queueName)
}

// ConsumeDLQ returns the dead-letter delivery channel for queueName.
func (p *Provider) ConsumeDLQ(queueName string) <-chan Item {
	return p.dlqFor(queueName)
}

// Enqueue implements queueprovider.Provider.
func (p *Provider) Enqueue(ctx context.Context, queueName string, payload []byte, meta queueprovider.Metadata) error {
	item := Item{Payload: payload, Metadata: meta.Clone()}
	select {
	case p.queueFor(queueName) <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueDelayed implements queueprovider.Provider. The in-process provider
// honors delay with a simple timer goroutine; it has no external durability,
// so a process restart loses pending delayed items — acceptable for local
// execution and tests, not for production (use sqsqueue.Provider there).
func (p *Provider) EnqueueDelayed(ctx context.Context, queueName string, payload []byte, delay time.Duration, meta queueprovider.Metadata) error {
	if delay > queueprovider.MaxDelay {
		return queueprovider.ErrDelayTooLong
	}
	if delay <= 0 {
		return p.Enqueue(ctx, queueName, payload, meta)
	}

	item := Item{Payload: payload, Metadata: meta.Clone()}
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			p.queueFor(queueName) <- item
		case <-ctx.Done():
		}
	}()
	return nil
}

// EnqueueBulk implements queueprovider.Provider.
func (p *Provider) EnqueueBulk(ctx context.Context, queueName string, payloads [][]byte, meta queueprovider.Metadata) error {
	ch := p.queueFor(queueName)
	for _, payload := range payloads {
		item := Item{Payload: payload, Metadata: meta.Clone()}
		select {
		case ch <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// DeadLetter implements queueprovider.Provider.
func (p *Provider) DeadLetter(ctx context.Context, queueName string, payload []byte, meta queueprovider.Metadata) error {
	if !p.hasDLQFor[queueName] {
		return queueprovider.ErrNoDeadLetterQueue
	}
	item := Item{Payload: payload, Metadata: meta.Clone()}
	select {
	case p.dlqFor(queueName) <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
