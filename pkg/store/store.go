package store

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Source is the read contract shared by base and derived stores.
// Implementations must be comparable (usually pointers); sources are used as
// dependency keys.
type Source[T any] interface {
	// GetState returns the current value.
	GetState() T

	// Subscribe registers a listener that receives (next, prev) on every change.
	// It returns an idempotent unsubscribe function.
	Subscribe(listener func(next, prev T)) func()
}

// Named is implemented by sources that carry a human-readable name.
type Named interface {
	Name() string
}

var idCounter atomic.Uint64

// NextID returns a process-unique identifier shared by all store kinds.
func NextID() uint64 {
	return idCounter.Add(1)
}

// listener is a registered subscriber. active is cleared on unsubscribe so a
// notification already in flight skips it.
type listener[T any] struct {
	id     uint64
	fn     func(next, prev T)
	active atomic.Bool
}

// Listeners keeps change listeners in subscription order.
// The zero value is ready to use.
type Listeners[T any] struct {
	mu   sync.RWMutex
	subs []*listener[T]
	next uint64
}

// Add registers fn and returns an idempotent remove function.
func (s *Listeners[T]) Add(fn func(next, prev T)) func() {
	s.mu.Lock()
	s.next++
	l := &listener[T]{id: s.next, fn: fn}
	l.active.Store(true)
	s.subs = append(s.subs, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			s.mu.Lock()
			for i, existing := range s.subs {
				if existing.id == l.id {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// Len returns the number of registered listeners.
func (s *Listeners[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Clear removes every listener. Listeners skipped by an in-flight Notify are
// never called.
func (s *Listeners[T]) Clear() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, l := range subs {
		l.active.Store(false)
	}
}

// Notify calls every listener that is still registered when its turn comes.
// Uses copy-before-notify so listeners may subscribe or unsubscribe freely.
func (s *Listeners[T]) Notify(next, prev T) {
	s.mu.RLock()
	subs := make([]*listener[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, l := range subs {
		if l.active.Load() {
			l.fn(next, prev)
		}
	}
}

// Store is a base observable container.
// Reads are safe from any goroutine; writes follow a single-writer discipline
// and notify listeners synchronously on the writing goroutine.
type Store[T any] struct {
	id   uint64
	name string

	// mu protects value.
	mu    sync.RWMutex
	value T

	// equal decides whether a write is a change. nil means Is.
	equal EqualFunc[T]

	subs Listeners[T]
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		id:    NextID(),
		value: initial,
	}
}

// WithEqual configures the equality used to suppress redundant writes.
func (s *Store[T]) WithEqual(fn EqualFunc[T]) *Store[T] {
	s.equal = fn
	return s
}

// Named sets the store's display name.
func (s *Store[T]) Named(name string) *Store[T] {
	s.name = name
	return s
}

// Name returns the display name, falling back to "store#<id>".
func (s *Store[T]) Name() string {
	if s.name == "" {
		return fmt.Sprintf("store#%d", s.id)
	}
	return s.name
}

// ID returns the unique identifier for this store.
func (s *Store[T]) ID() uint64 {
	return s.id
}

// GetState returns the current value.
func (s *Store[T]) GetState() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// SetState replaces the value and notifies listeners if it changed.
// It reports whether a change was recorded.
func (s *Store[T]) SetState(value T) bool {
	return s.Update(func(T) T { return value })
}

// Update replaces the value with fn(current) and notifies listeners if it changed.
// fn runs under the store lock and must not touch the store.
func (s *Store[T]) Update(fn func(T) T) bool {
	s.mu.Lock()
	prev := s.value
	next := fn(prev)
	changed := !s.equals(prev, next)
	if changed {
		s.value = next
	}
	s.mu.Unlock()

	if changed {
		s.subs.Notify(next, prev)
	}
	return changed
}

// Subscribe registers a listener for change notifications.
func (s *Store[T]) Subscribe(fn func(next, prev T)) func() {
	if fn == nil {
		return func() {}
	}
	return s.subs.Add(fn)
}

// ListenerCount returns the number of registered listeners.
func (s *Store[T]) ListenerCount() int {
	return s.subs.Len()
}

func (s *Store[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return Is(a, b)
}

// NameOf returns a display name for any source.
func NameOf(src any) string {
	if n, ok := src.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", src)
}
