// Package queueprovider declares the external queue transport contract
// that the publisher and consumer dispatcher depend on. The concrete
// transport — an in-process channel queue or a cloud queue like SQS — is
// an external collaborator; this package specifies only the interface,
// grounded on internal/mq.MessageQueue.
package queueprovider

import (
	"context"
	"time"
)

// MaxDelay is the maximum delay implementations may accept for
// EnqueueDelayed. Implementations that cannot honor a longer delay MUST
// return a classified error rather than silently clamping it.
const MaxDelay = 900 * time.Second

// Reserved metadata keys.
const (
	// MetaRetryCount carries the stringified retry attempt count the
	// retry/DLQ shell has made so far. Absent means zero.
	MetaRetryCount = "callable-retry-count"
	// MetaNoRetry, when present and "true", tells the retry/DLQ shell to
	// skip straight to the dead-letter queue regardless of the interval
	// ladder.
	MetaNoRetry = "callable-no-retry"
)

// Metadata is a string-to-string carrier attached to an enqueued item.
type Metadata map[string]string

// Clone returns a shallow copy safe to mutate without affecting the caller's
// map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Provider abstracts the queue transport. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Enqueue publishes payload to queueName immediately.
	Enqueue(ctx context.Context, queueName string, payload []byte, meta Metadata) error

	// EnqueueDelayed publishes payload to queueName, made visible to
	// consumers only after delay elapses. Delay is rounded up to the
	// nearest second. Implementations that cap the maximum delay MUST
	// return a classified error when delay exceeds MaxDelay rather than
	// truncating it.
	EnqueueDelayed(ctx context.Context, queueName string, payload []byte, delay time.Duration, meta Metadata) error

	// EnqueueBulk publishes many payloads to queueName as efficiently as
	// the transport allows (e.g. a single batch API call). Metadata, if
	// any, is shared across all items in the batch.
	EnqueueBulk(ctx context.Context, queueName string, payloads [][]byte, meta Metadata) error

	// DeadLetter routes payload to the dead-letter sink associated with
	// queueName. Implementations that have no configured DLQ for a given
	// queue should return ErrNoDeadLetterQueue so the retry shell can log
	// and drop instead of treating it as a transport failure.
	DeadLetter(ctx context.Context, queueName string, payload []byte, meta Metadata) error
}
