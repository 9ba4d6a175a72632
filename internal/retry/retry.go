// Package retry wraps a dispatcher invocation at the host boundary,
// catching its terminal errors and deciding retry vs dead-letter.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/oriys/callmq/internal/errs"
	"github.com/oriys/callmq/internal/logging"
	"github.com/oriys/callmq/internal/queueprovider"
)

// Intervals is the fixed retry ladder, in seconds.
var Intervals = []int{15, 60, 120, 240}

// Dispatch is the subset of dispatcher.Dispatcher the shell needs.
type Dispatch interface {
	Dispatch(ctx context.Context, raw []byte, queueName string, meta queueprovider.Metadata) error
}

// Metrics is the subset of metrics.Dispatch the shell needs.
type Metrics interface {
	ObserveRetryScheduled()
	ObserveDeadLettered(reason string)
}

// Shell wraps a Dispatch with the retry/DLQ policy.
type Shell struct {
	dispatch  Dispatch
	queue     queueprovider.Provider
	metrics   Metrics
	intervals []int
}

// Option configures a Shell at construction time.
type Option func(*Shell)

// WithIntervals overrides the fixed Intervals ladder with a
// host-configured one, in seconds (see config.Config.Retry.IntervalsSeconds).
// Passing an empty slice is a no-op; the Shell keeps the package-level
// default.
func WithIntervals(intervalsSeconds []int) Option {
	return func(s *Shell) {
		if len(intervalsSeconds) > 0 {
			s.intervals = intervalsSeconds
		}
	}
}

// New builds a Shell.
func New(dispatch Dispatch, queue queueprovider.Provider, metrics Metrics, opts ...Option) *Shell {
	s := &Shell{dispatch: dispatch, queue: queue, metrics: metrics, intervals: Intervals}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs dispatch.Dispatch and, on a terminal error, retries per the
// interval ladder or routes to the dead-letter queue. A KindTransport error
// — whether from the shell's own DLQ routing or from a gate/Repeated
// republish failing inside Dispatch itself — propagates to the caller
// untouched rather than entering the retry ladder, since the queue
// transport itself is down and scheduling a retry through it would fail
// the same way.
func (s *Shell) Handle(ctx context.Context, raw []byte, queueName string, meta queueprovider.Metadata) error {
	log := logging.Stage("retry")

	err := s.dispatch.Dispatch(ctx, raw, queueName, meta)
	if err == nil {
		return nil
	}

	if classified, ok := errs.AsClassified(err); ok {
		if classified.Kind() == errs.KindMalformedFrame || classified.NoRetry() {
			return s.deadLetter(ctx, raw, queueName, meta, string(classified.Kind()), log)
		}
		if classified.Kind() == errs.KindTransport {
			log.Error("transport failure, propagating to host", "queue", queueName, "error", err)
			return err
		}
	}
	if meta[queueprovider.MetaNoRetry] == "true" {
		return s.deadLetter(ctx, raw, queueName, meta, "no_retry_requested", log)
	}

	count := retryCountFromMeta(meta)
	if count >= len(s.intervals) {
		return s.deadLetter(ctx, raw, queueName, meta, "retries_exhausted", log)
	}

	delay := time.Duration(s.intervals[count]) * time.Second
	nextMeta := meta.Clone()
	if nextMeta == nil {
		nextMeta = queueprovider.Metadata{}
	}
	nextMeta[queueprovider.MetaRetryCount] = strconv.Itoa(count + 1)

	log.Warn("scheduling retry", "queue", queueName, "attempt", count+1, "delay", delay, "error", err)
	if s.metrics != nil {
		s.metrics.ObserveRetryScheduled()
	}
	if enqErr := s.queue.EnqueueDelayed(ctx, queueName, raw, delay, nextMeta); enqErr != nil {
		return errs.Transport("retry republish", enqErr)
	}
	return nil
}

func (s *Shell) deadLetter(ctx context.Context, raw []byte, queueName string, meta queueprovider.Metadata, reason string, log *slog.Logger) error {
	if s.metrics != nil {
		s.metrics.ObserveDeadLettered(reason)
	}

	err := s.queue.DeadLetter(ctx, queueName, raw, meta)
	if err == nil {
		log.Warn("dead-lettered", "queue", queueName, "reason", reason)
		return nil
	}
	if err == queueprovider.ErrNoDeadLetterQueue {
		log.Warn("no dead-letter queue configured, dropping", "queue", queueName, "reason", reason)
		return nil
	}
	return errs.Transport(fmt.Sprintf("dead letter %s", queueName), err)
}

func retryCountFromMeta(meta queueprovider.Metadata) int {
	if meta == nil {
		return 0
	}
	raw, ok := meta[queueprovider.MetaRetryCount]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
