// Package metrics exposes Prometheus counters and histograms for the
// dispatch pipeline, following this codebase's prometheus.io client_golang
// usage pattern (a prometheus.Registry built with MustRegister, one per
// Dispatch bundle, served via promhttp.HandlerFor).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch holds the dispatcher's Prometheus collectors.
type Dispatch struct {
	registry *prometheus.Registry

	invocationsTotal    *prometheus.CounterVec
	debounceDiscarded   prometheus.Counter
	concurrencyDeferred prometheus.Counter
	rateLimitDeferred   prometheus.Counter
	repeatedRepublished prometheus.Counter
	repeatedCompleted   *prometheus.CounterVec
	retriesScheduled    prometheus.Counter
	deadLettered        *prometheus.CounterVec
	invokeDuration      prometheus.Histogram
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// NewDispatch creates a Dispatch metrics bundle registered under namespace
// (default "callmq" when empty), along with the default Go/process
// collectors.
func NewDispatch(namespace string) *Dispatch {
	if namespace == "" {
		namespace = "callmq"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	d := &Dispatch{
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of callable invocations, labeled by type tag and outcome.",
		}, []string{"type_tag", "outcome"}),
		debounceDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debounce_discarded_total",
			Help:      "Total number of work items silently discarded by the debounce gate.",
		}),
		concurrencyDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_deferred_total",
			Help:      "Total number of work items republished because the concurrency cap was reached.",
		}),
		rateLimitDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_deferred_total",
			Help:      "Total number of work items republished because the rate limit was exceeded.",
		}),
		repeatedRepublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repeated_republished_total",
			Help:      "Total number of Repeated callables republished for their next repetition.",
		}),
		repeatedCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repeated_completed_total",
			Help:      "Total number of Repeated completions, labeled by whether maxCalls was reached.",
		}, []string{"reached_max"}),
		retriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Total number of failed invocations rescheduled per the retry ladder.",
		}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Total number of work items routed to a dead-letter queue, labeled by reason.",
		}, []string{"reason"}),
		invokeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoke_duration_seconds",
			Help:      "Wall-clock duration of callable.Invoke calls.",
			Buckets:   defaultBuckets,
		}),
	}

	registry.MustRegister(
		d.invocationsTotal,
		d.debounceDiscarded,
		d.concurrencyDeferred,
		d.rateLimitDeferred,
		d.repeatedRepublished,
		d.repeatedCompleted,
		d.retriesScheduled,
		d.deadLettered,
		d.invokeDuration,
	)
	return d
}

// Handler returns an http.Handler serving this bundle's metrics in the
// Prometheus exposition format.
func (d *Dispatch) Handler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}

func (d *Dispatch) ObserveInvocation(typeTag, outcome string) {
	d.invocationsTotal.WithLabelValues(typeTag, outcome).Inc()
}

func (d *Dispatch) ObserveDebounceDiscarded()   { d.debounceDiscarded.Inc() }
func (d *Dispatch) ObserveConcurrencyDeferred() { d.concurrencyDeferred.Inc() }
func (d *Dispatch) ObserveRateLimitDeferred()   { d.rateLimitDeferred.Inc() }
func (d *Dispatch) ObserveRepeatedRepublished() { d.repeatedRepublished.Inc() }

func (d *Dispatch) ObserveRepeatedCompleted(reachedMax bool) {
	label := "false"
	if reachedMax {
		label = "true"
	}
	d.repeatedCompleted.WithLabelValues(label).Inc()
}

func (d *Dispatch) ObserveRetryScheduled() { d.retriesScheduled.Inc() }

func (d *Dispatch) ObserveDeadLettered(reason string) {
	d.deadLettered.WithLabelValues(reason).Inc()
}

func (d *Dispatch) ObserveInvokeDuration(seconds float64) {
	d.invokeDuration.Observe(seconds)
}
