package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oriys/callmq/examples/callables"
	"github.com/oriys/callmq/internal/capability"
	"github.com/oriys/callmq/internal/coordstore/memstore"
	"github.com/oriys/callmq/internal/errs"
	"github.com/oriys/callmq/internal/queueprovider"
	"github.com/oriys/callmq/internal/wire"
)

type fakeQueue struct {
	mu       sync.Mutex
	delayed  []fakeDelayedItem
	dead     []fakeDeadItem
	noDLQFor map[string]bool
}

type fakeDelayedItem struct {
	queueName string
	payload   []byte
	delay     time.Duration
	meta      queueprovider.Metadata
}

type fakeDeadItem struct {
	queueName string
	payload   []byte
}

func (q *fakeQueue) Enqueue(ctx context.Context, queueName string, payload []byte, meta queueprovider.Metadata) error {
	return q.EnqueueDelayed(ctx, queueName, payload, 0, meta)
}

func (q *fakeQueue) EnqueueDelayed(ctx context.Context, queueName string, payload []byte, delay time.Duration, meta queueprovider.Metadata) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, fakeDelayedItem{queueName: queueName, payload: payload, delay: delay, meta: meta})
	return nil
}

func (q *fakeQueue) EnqueueBulk(ctx context.Context, queueName string, payloads [][]byte, meta queueprovider.Metadata) error {
	for _, p := range payloads {
		if err := q.Enqueue(ctx, queueName, p, meta); err != nil {
			return err
		}
	}
	return nil
}

func (q *fakeQueue) DeadLetter(ctx context.Context, queueName string, payload []byte, meta queueprovider.Metadata) error {
	if q.noDLQFor[queueName] {
		return queueprovider.ErrNoDeadLetterQueue
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, fakeDeadItem{queueName: queueName, payload: payload})
	return nil
}

func newHarness(opts ...Option) (*Dispatcher, *fakeQueue) {
	reg := wire.NewRegistry()
	reg.Register((&callables.Ping{}).TypeTag(), func() wire.Callable { return &callables.Ping{} })
	reg.Register((&callables.DbCb{}).TypeTag(), func() wire.Callable { return &callables.DbCb{} })
	reg.Register((&callables.RlCb{}).TypeTag(), func() wire.Callable { return &callables.RlCb{} })
	reg.Register((&callables.CcCb{}).TypeTag(), func() wire.Callable { return &callables.CcCb{} })
	reg.Register((&callables.RepCb{}).TypeTag(), func() wire.Callable { return &callables.RepCb{} })
	reg.Register((&callables.LgCb{}).TypeTag(), func() wire.Callable { return &callables.LgCb{} })
	reg.Register((&callables.DepCb{}).TypeTag(), func() wire.Callable { return &callables.DepCb{} })

	store := memstore.New()
	queue := &fakeQueue{noDLQFor: map[string]bool{}}
	d := New(reg, store, store, store, queue, opts...)
	return d, queue
}

func TestDispatchPlainCallableInvokes(t *testing.T) {
	d, queue := newHarness()

	raw, err := wire.Encode(&callables.Ping{Note: "hi"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := d.Dispatch(context.Background(), raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(queue.delayed) != 0 {
		t.Errorf("expected no republish for a plain callable, got %d", len(queue.delayed))
	}
}

func TestDispatchMalformedFrameReturnsError(t *testing.T) {
	d, _ := newHarness()
	err := d.Dispatch(context.Background(), []byte("not a valid frame"), "default", nil)
	if err == nil {
		t.Fatal("expected an error for a malformed frame")
	}
}

func TestDispatchUnregisteredTypeReturnsError(t *testing.T) {
	d, _ := newHarness()
	err := d.Dispatch(context.Background(), []byte("Nope::{}"), "default", nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered type tag")
	}
}

func TestDispatchDebounceDiscardsSupersededInstance(t *testing.T) {
	d, _ := newHarness()
	ctx := context.Background()

	// Simulate what internal/publisher does before enqueueing a Debounced
	// callable: install the winning instance's reference first.
	if err := d.debounce.SetReference(ctx, "DbCb+job", "instance-2", 60*time.Second); err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	superseded := &callables.DbCb{ID: 1, TypeKey: "job", Interval: 60, InstanceKey: "instance-1"}
	raw1, _ := wire.Encode(superseded)
	if err := d.Dispatch(ctx, raw1, "default", nil); err != nil {
		t.Fatalf("Dispatch (superseded instance): %v", err)
	}

	winner := &callables.DbCb{ID: 2, TypeKey: "job", Interval: 60, InstanceKey: "instance-2"}
	raw2, _ := wire.Encode(winner)
	if err := d.Dispatch(ctx, raw2, "default", nil); err != nil {
		t.Fatalf("Dispatch (winning instance): %v", err)
	}
}

func TestDispatchConcurrencyCapRepublishesOnDenial(t *testing.T) {
	d, queue := newHarness()
	ctx := context.Background()

	if _, _, err := d.concurrency.TrySetLock(ctx, "CcCb+job", 1); err != nil {
		t.Fatalf("seed TrySetLock: %v", err)
	}

	cc := &callables.CcCb{TypeKey: "job", Limit: 1, SleepMillis: 0}
	raw, _ := wire.Encode(cc)

	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.delayed) != 1 {
		t.Fatalf("expected exactly one republish, got %d", len(queue.delayed))
	}
	if queue.delayed[0].delay != republishDelay {
		t.Errorf("republish delay = %v, want %v", queue.delayed[0].delay, republishDelay)
	}
}

func TestDispatchRateLimitRepublishesOnDenial(t *testing.T) {
	d, queue := newHarness()
	ctx := context.Background()

	if _, _, err := d.rateLimit.GetNextAvailableRunTime(ctx, "RlCb+job", 1, 60*time.Second); err != nil {
		t.Fatalf("seed GetNextAvailableRunTime: %v", err)
	}

	rl := &callables.RlCb{TypeKey: "job", PerPeriod: 1, Period: 60}
	raw, _ := wire.Encode(rl)

	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.delayed) != 1 {
		t.Fatalf("expected exactly one republish, got %d", len(queue.delayed))
	}
}

func TestDispatchConcurrencyLockReleasedOnFinalize(t *testing.T) {
	d, _ := newHarness()
	ctx := context.Background()

	cc := &callables.CcCb{TypeKey: "job", Limit: 1, SleepMillis: 0}
	raw, _ := wire.Encode(cc)

	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got, _, err := d.concurrency.TrySetLock(ctx, "CcCb+job", 1)
	if err != nil {
		t.Fatalf("TrySetLock after finalize: %v", err)
	}
	if !got {
		t.Fatal("expected the concurrency lock to be released by finalize")
	}
}

func TestDispatchRepeatedRepublishesUntilMaxCalls(t *testing.T) {
	d, queue := newHarness()
	ctx := context.Background()

	rep := &callables.RepCb{MaxCalls: 2, Interval: 5, ShouldContinue: true, CurrentCall: 0}
	raw, _ := wire.Encode(rep)

	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.delayed) != 1 {
		t.Fatalf("expected exactly one republish after the first call, got %d", len(queue.delayed))
	}

	reg := wire.NewRegistry()
	reg.Register((&callables.RepCb{}).TypeTag(), func() wire.Callable { return &callables.RepCb{} })
	decoded, err := wire.Decode(reg, queue.delayed[0].payload)
	if err != nil {
		t.Fatalf("Decode republished payload: %v", err)
	}
	got := decoded.(*callables.RepCb)
	if got.CurrentCall != 1 {
		t.Errorf("republished CurrentCall = %d, want 1", got.CurrentCall)
	}
}

func TestDispatchRepeatedCompletesAtMaxCalls(t *testing.T) {
	d, queue := newHarness()
	ctx := context.Background()

	callables.RepReset()

	rep := &callables.RepCb{MaxCalls: 1, Interval: 5, ShouldContinue: true, CurrentCall: 0}
	raw, _ := wire.Encode(rep)

	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	queue.mu.Lock()
	delayedCount := len(queue.delayed)
	queue.mu.Unlock()
	if delayedCount != 0 {
		t.Fatalf("expected no republish once maxCalls is reached, got %d", delayedCount)
	}

	_, completedTrue, completedFalse := callables.RepCounts()
	if completedTrue != 1 {
		t.Errorf("completedTrue = %d, want 1", completedTrue)
	}
	if completedFalse != 0 {
		t.Errorf("completedFalse = %d, want 0", completedFalse)
	}
}

func TestDispatchRepeatedStopsWhenShouldContinueFalse(t *testing.T) {
	d, queue := newHarness()
	ctx := context.Background()

	callables.RepReset()

	rep := &callables.RepCb{MaxCalls: 5, Interval: 5, ShouldContinue: false, CurrentCall: 0}
	raw, _ := wire.Encode(rep)

	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	queue.mu.Lock()
	delayedCount := len(queue.delayed)
	queue.mu.Unlock()
	if delayedCount != 0 {
		t.Fatalf("expected no republish when ShouldContinue is false, got %d", delayedCount)
	}

	_, completedTrue, completedFalse := callables.RepCounts()
	if completedFalse != 1 {
		t.Errorf("completedFalse = %d, want 1", completedFalse)
	}
	if completedTrue != 0 {
		t.Errorf("completedTrue = %d, want 0", completedTrue)
	}
}

func TestDispatchFinalizeHookAlwaysRuns(t *testing.T) {
	var finalizeCalls int
	var lastErr error
	d, _ := newHarness(WithHooks(Hooks{
		FinalizeCall: func(ctx context.Context, c capability.Invocable, queueName string, pipelineErr error) {
			finalizeCalls++
			lastErr = pipelineErr
		},
	}))

	raw, _ := wire.Encode(&callables.Ping{Note: "x"})
	if err := d.Dispatch(context.Background(), raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if finalizeCalls != 1 {
		t.Fatalf("expected FinalizeCall to run exactly once, got %d", finalizeCalls)
	}
	if lastErr != nil {
		t.Errorf("expected a nil pipelineErr on success, got %v", lastErr)
	}
}

type failingCallable struct {
	capability.NoopErrorHandler
}

func (f *failingCallable) TypeTag() string { return "Failing" }

func (f *failingCallable) Invoke(ctx context.Context) error {
	return errBoom
}

type boomError struct{}

func (e *boomError) Error() string { return "boom" }

var errBoom = &boomError{}

func TestDispatchFinalizeRunsEvenOnInvokeError(t *testing.T) {
	reg := wire.NewRegistry()
	reg.Register("Failing", func() wire.Callable { return &failingCallable{} })
	store := memstore.New()
	queue := &fakeQueue{noDLQFor: map[string]bool{}}

	var finalizeCalls int
	var sawErr error
	d := New(reg, store, store, store, queue, WithHooks(Hooks{
		FinalizeCall: func(ctx context.Context, c capability.Invocable, queueName string, pipelineErr error) {
			finalizeCalls++
			sawErr = pipelineErr
		},
	}))

	raw, _ := wire.Encode(&failingCallable{})
	err := d.Dispatch(context.Background(), raw, "default", nil)
	if err == nil {
		t.Fatal("expected Dispatch to return the invoke error")
	}
	if finalizeCalls != 1 {
		t.Fatalf("expected FinalizeCall to run exactly once, got %d", finalizeCalls)
	}
	if sawErr == nil {
		t.Error("expected FinalizeCall to observe the non-nil pipeline error")
	}
}

type fakeLogger struct {
	infos []string
}

func (l *fakeLogger) Info(msg string, args ...any)  { l.infos = append(l.infos, msg) }
func (l *fakeLogger) Warn(msg string, args ...any)  {}
func (l *fakeLogger) Error(msg string, args ...any) {}

type fakeServiceLocator struct {
	values map[string]any
}

func (s *fakeServiceLocator) Resolve(name string) (any, error) {
	v, ok := s.values[name]
	if !ok {
		return nil, errs.MissingCapability("no such dependency: " + name)
	}
	return v, nil
}

func TestDispatchLoggedInjectsLoggerBeforeInvoke(t *testing.T) {
	d, _ := newHarness()
	logger := &fakeLogger{}
	ctx := WithLogger(context.Background(), logger)

	raw, _ := wire.Encode(&callables.LgCb{Note: "hi"})
	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(logger.infos) != 1 {
		t.Fatalf("expected Invoke to log through the injected logger, got %d calls", len(logger.infos))
	}
}

func TestDispatchLoggedWithoutContextLoggerReturnsMissingCapability(t *testing.T) {
	d, _ := newHarness()

	raw, _ := wire.Encode(&callables.LgCb{Note: "hi"})
	err := d.Dispatch(context.Background(), raw, "default", nil)
	if err == nil {
		t.Fatal("expected an error when no logger is present in context")
	}
	classified, ok := errs.AsClassified(err)
	if !ok || classified.Kind() != errs.KindMissingCapability {
		t.Errorf("expected a KindMissingCapability error, got %v", err)
	}
}

func TestDispatchDependencyBoundResolvesBeforeInvoke(t *testing.T) {
	d, _ := newHarness()
	locator := &fakeServiceLocator{values: map[string]any{"greeter": "hello"}}
	ctx := WithServiceLocator(context.Background(), locator)

	raw, _ := wire.Encode(&callables.DepCb{DependencyName: "greeter"})
	if err := d.Dispatch(ctx, raw, "default", nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatchDependencyBoundWithoutContextLocatorReturnsMissingCapability(t *testing.T) {
	d, _ := newHarness()

	raw, _ := wire.Encode(&callables.DepCb{DependencyName: "greeter"})
	err := d.Dispatch(context.Background(), raw, "default", nil)
	if err == nil {
		t.Fatal("expected an error when no service locator is present in context")
	}
	classified, ok := errs.AsClassified(err)
	if !ok || classified.Kind() != errs.KindMissingCapability {
		t.Errorf("expected a KindMissingCapability error, got %v", err)
	}
}

func TestDispatchDependencyBoundResolveFailurePropagates(t *testing.T) {
	d, _ := newHarness()
	locator := &fakeServiceLocator{values: map[string]any{}}
	ctx := WithServiceLocator(context.Background(), locator)

	raw, _ := wire.Encode(&callables.DepCb{DependencyName: "missing"})
	err := d.Dispatch(ctx, raw, "default", nil)
	if err == nil {
		t.Fatal("expected the locator's resolve failure to propagate")
	}
}
