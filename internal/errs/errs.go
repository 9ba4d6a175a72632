// Package errs classifies the error kinds the dispatch pipeline and the
// retry/DLQ shell reason about. Each kind wraps an underlying cause and
// exposes a Kind() string so the retry shell can branch without depending
// on concrete error types from other packages.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the classified error categories from the dispatch
// pipeline's error taxonomy.
type Kind string

const (
	KindMalformedFrame      Kind = "malformed_frame"
	KindMissingCapability   Kind = "missing_capability"
	KindValidation          Kind = "validation"
	KindCoordinationStore   Kind = "coordination_store"
	KindUser                Kind = "user"
	KindTransport           Kind = "transport"
)

// Classified is implemented by every error kind defined in this package.
type Classified interface {
	error
	Kind() Kind
	// NoRetry reports whether the retry shell must skip straight to the
	// dead-letter queue regardless of the retry-count ladder.
	NoRetry() bool
}

type baseErr struct {
	kind    Kind
	noRetry bool
	msg     string
	cause   error
}

func (e *baseErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *baseErr) Unwrap() error { return e.cause }
func (e *baseErr) Kind() Kind    { return e.kind }
func (e *baseErr) NoRetry() bool { return e.noRetry }

// MalformedFrame wraps decode failures: split mismatch, unknown type tag,
// or structural hydration mismatch. Always no-retry; the callable does not
// exist yet so it goes straight to the DLQ.
func MalformedFrame(msg string, cause error) Classified {
	return &baseErr{kind: KindMalformedFrame, noRetry: true, msg: msg, cause: cause}
}

// MissingCapability wraps a mixin present on the callable whose required
// consumer-context facility (logger, service locator) is absent. Treated as
// a programming error; no-retry.
func MissingCapability(msg string) Classified {
	return &baseErr{kind: KindMissingCapability, noRetry: true, msg: msg}
}

// Validation wraps a failed mixin-parameter check. No-retry.
func Validation(msg string) Classified {
	return &baseErr{kind: KindValidation, noRetry: true, msg: msg}
}

// CoordinationStore wraps a transient failure from a ConcurrencyStore,
// DebounceStore, or RateLimitStore call. Retryable per the interval ladder.
func CoordinationStore(msg string, cause error) Classified {
	return &baseErr{kind: KindCoordinationStore, noRetry: false, msg: msg, cause: cause}
}

// Transport wraps a queue-provider failure during republish or DLQ routing.
// Propagated to the host; not reclassified by the retry shell.
func Transport(msg string, cause error) Classified {
	return &baseErr{kind: KindTransport, noRetry: false, msg: msg, cause: cause}
}

// CallableError is the wrapper the dispatcher's error path applies to every
// error surfacing from the stages between decode and finalize (validation,
// gates, injection, hooks, the body, the Repeated branch), carrying the
// callable reference so logging and the host's onError reporting can
// identify which work item failed. Its Kind()/NoRetry() delegate to the
// wrapped cause when the cause is itself Classified (e.g. a ValidationError
// or CoordinationStoreError raised by a gate), so the retry shell still
// sees the true classification; otherwise it reports KindUser.
type CallableError struct {
	Callable any
	Cause    error
	noRetry  bool
}

// User wraps a callable-body (or other stage 3–10) error. Pass
// noRetry=true when the error should skip straight to the DLQ and the
// cause isn't already a Classified error that says so on its own.
func User(callable any, cause error, noRetry bool) *CallableError {
	return &CallableError{Callable: callable, Cause: cause, noRetry: noRetry}
}

func (e *CallableError) Error() string {
	return fmt.Sprintf("callable error: %v", e.Cause)
}

func (e *CallableError) Unwrap() error { return e.Cause }

func (e *CallableError) Kind() Kind {
	if c, ok := e.causeClassified(); ok {
		return c.Kind()
	}
	return KindUser
}

func (e *CallableError) NoRetry() bool {
	if c, ok := e.causeClassified(); ok {
		return c.NoRetry()
	}
	return e.noRetry
}

func (e *CallableError) causeClassified() (Classified, bool) {
	var c Classified
	if errors.As(e.Cause, &c) {
		return c, true
	}
	return nil, false
}

// AsClassified extracts a Classified error from err, if any node in its
// Unwrap chain implements the interface.
func AsClassified(err error) (Classified, bool) {
	var c Classified
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}
