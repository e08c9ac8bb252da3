// Package reactive provides the observable primitives the binding engine is built on:
// observables, computations that re-run when the observables they read change,
// binding contexts, and the dispatcher that serializes all reactive work.
//
// Everything except the Dispatcher must be used from a single goroutine. Servers
// route all work through a Dispatcher; tests drive it directly. Any number of
// dispatchers may share a process: their work items never overlap.
package reactive

// Dependency is anything a computation can subscribe to.
type Dependency interface {
	Subscribe(fn func()) *Subscription
}

// Readable is implemented by observable values of any type.
// Read registers a dependency with the running computation, Peek does not.
type Readable interface {
	Dependency
	Read() any
	Peek() any
}

// Subscription is a registered change callback.
type Subscription struct {
	fn       func()
	owner    *subscribers
	disposed bool
}

// Dispose stops further notifications. It is safe to call more than once.
func (s *Subscription) Dispose() {
	if s == nil || s.disposed {
		return
	}
	s.disposed = true
	if s.owner != nil {
		s.owner.remove(s)
	}
}

type subscribers struct {
	list []*Subscription
}

func (s *subscribers) add(fn func()) *Subscription {
	sub := &Subscription{fn: fn, owner: s}
	s.list = append(s.list, sub)
	return sub
}

func (s *subscribers) remove(sub *Subscription) {
	for i, existing := range s.list {
		if existing == sub {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

// notify calls every subscriber registered when notification started.
// Subscribers disposed by an earlier callback in the same pass are skipped.
func (s *subscribers) notify() {
	snapshot := make([]*Subscription, len(s.list))
	copy(snapshot, s.list)
	for _, sub := range snapshot {
		if !sub.disposed {
			sub.fn()
		}
	}
}

func (s *subscribers) count() int {
	return len(s.list)
}

// Observable holds a value and notifies subscribers when it changes.
type Observable[T any] struct {
	value T
	subs  subscribers
}

// NewObservable creates an observable with an initial value.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial}
}

// Get returns the value and registers a dependency with the running computation.
func (o *Observable[T]) Get() T {
	track(o)
	return o.value
}

// Peek returns the value without registering a dependency.
func (o *Observable[T]) Peek() any {
	return o.value
}

// Value returns the typed value without registering a dependency.
func (o *Observable[T]) Value() T {
	return o.value
}

// Read implements Readable.
func (o *Observable[T]) Read() any {
	return o.Get()
}

// Set stores a value. Subscribers are notified unless the old and new values are
// equal primitives; other values always notify.
func (o *Observable[T]) Set(value T) {
	if primitiveEqual(any(o.value), any(value)) {
		return
	}
	o.value = value
	o.subs.notify()
}

// Notify forces a change notification, for values mutated in place.
func (o *Observable[T]) Notify() {
	o.subs.notify()
}

// Subscribe implements Dependency.
func (o *Observable[T]) Subscribe(fn func()) *Subscription {
	return o.subs.add(fn)
}

// SubscriberCount reports how many subscriptions are live.
func (o *Observable[T]) SubscriberCount() int {
	return o.subs.count()
}

func primitiveEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return a == b
	}
	return false
}

// Unwrap returns the value of a Readable, registering a dependency, or v itself.
func Unwrap(v any) any {
	if r, ok := v.(Readable); ok {
		return r.Read()
	}
	return v
}

// Peek returns the value of a Readable without registering a dependency, or v itself.
func Peek(v any) any {
	if r, ok := v.(Readable); ok {
		return r.Peek()
	}
	return v
}

// IsReadable reports whether v is an observable value.
func IsReadable(v any) bool {
	_, ok := v.(Readable)
	return ok
}
