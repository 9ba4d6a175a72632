package runtime

import (
	"testing"

	"github.com/oriys/callmq/internal/coordstore/memstore"
	"github.com/oriys/callmq/internal/queueprovider/inprocess"
	"github.com/oriys/callmq/internal/wire"
)

func TestAccessorsErrorBeforeInit(t *testing.T) {
	Reset()

	if _, err := Registry(); err == nil {
		t.Error("Registry() before Init: want error, got nil")
	}
	if _, err := Queue(); err == nil {
		t.Error("Queue() before Init: want error, got nil")
	}
	if _, err := DebounceStore(); err == nil {
		t.Error("DebounceStore() before Init: want error, got nil")
	}
}

func TestAccessorsReturnInstalledState(t *testing.T) {
	Reset()
	defer Reset()

	reg := wire.NewRegistry()
	q := inprocess.New(inprocess.Config{})
	store := memstore.New()

	Init(State{Registry: reg, Queue: q, DebounceStore: store})

	gotReg, err := Registry()
	if err != nil || gotReg != reg {
		t.Errorf("Registry() = (%v, %v), want (%v, nil)", gotReg, err, reg)
	}
	gotQueue, err := Queue()
	if err != nil || gotQueue != q {
		t.Errorf("Queue() = (%v, %v), want (%v, nil)", gotQueue, err, q)
	}
	gotStore, err := DebounceStore()
	if err != nil || gotStore != store {
		t.Errorf("DebounceStore() = (%v, %v), want (%v, nil)", gotStore, err, store)
	}
}

func TestDebounceStoreErrorsWhenNotConfigured(t *testing.T) {
	Reset()
	defer Reset()

	Init(State{Registry: wire.NewRegistry(), Queue: inprocess.New(inprocess.Config{})})

	if _, err := DebounceStore(); err == nil {
		t.Error("DebounceStore() with no store configured: want error, got nil")
	}
}

func TestReInitReplacesPreviousState(t *testing.T) {
	Reset()
	defer Reset()

	Init(State{Registry: wire.NewRegistry(), Queue: inprocess.New(inprocess.Config{})})
	second := wire.NewRegistry()
	Init(State{Registry: second, Queue: inprocess.New(inprocess.Config{})})

	got, err := Registry()
	if err != nil || got != second {
		t.Errorf("Registry() after re-Init = (%v, %v), want the second registry", got, err)
	}
}

func TestResetClearsState(t *testing.T) {
	Init(State{Registry: wire.NewRegistry(), Queue: inprocess.New(inprocess.Config{})})
	Reset()

	if _, err := Registry(); err == nil {
		t.Error("Registry() after Reset: want error, got nil")
	}
}
