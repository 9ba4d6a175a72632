package wire

import (
	"fmt"
	"reflect"
	"sync"
)

// Constructor builds a fresh, zero-valued instance of a registered callable.
// Implementations must return a pointer so json.Unmarshal can hydrate it.
type Constructor func() Callable

// Registry maps type tags to constructors. Registration is idempotent:
// registering the same tag with an equivalent constructor twice is a no-op;
// registering the same tag with a different constructor is fatal, since it
// would make decode() non-deterministic.
type Registry struct {
	mu   sync.RWMutex
	ctor map[string]Constructor
	// kind records the concrete type each tag was registered with, so a
	// colliding re-registration with a different type can be detected.
	kind map[string]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctor: make(map[string]Constructor),
		kind: make(map[string]reflect.Type),
	}
}

// Register binds typeTag to ctor. Calling Register again with a tag already
// bound to a constructor producing the same concrete type is a harmless
// no-op (supports idempotent package init across multiple call sites).
// Calling it with a different concrete type panics: two callables
// disagreeing about what a shared tag means is a linking-time bug, not a
// runtime condition to recover from.
func (r *Registry) Register(typeTag string, ctor Constructor) {
	if typeTag == "" {
		panic("wire: cannot register an empty type tag")
	}

	sample := ctor()
	t := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.kind[typeTag]; ok {
		if existing != t {
			panic(fmt.Sprintf("wire: type tag %q already registered to %s, cannot re-register to %s", typeTag, existing, t))
		}
		return
	}
	r.ctor[typeTag] = ctor
	r.kind[typeTag] = t
}

func (r *Registry) lookup(typeTag string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctor[typeTag]
	return ctor, ok
}

// Registered reports whether typeTag currently resolves to a constructor.
func (r *Registry) Registered(typeTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctor[typeTag]
	return ok
}
