package derive

import (
	"reflect"

	derrors "github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/store"
)

// read is one recorded read of a dependency. A nil changed func means the
// whole value was read and any change counts.
type read struct {
	changed func(next any) bool
}

// edge is a dependency on one source. Reads are replaced at commit time so
// the set of committed reads always belongs to a single pass.
type edge struct {
	key   any
	name  string
	reads []read
	unsub func()
}

// dirtiedBy reports whether a notification carrying next affects any read.
func (e *edge) dirtiedBy(next any) bool {
	if len(e.reads) == 0 {
		return true
	}
	for _, r := range e.reads {
		if r.changed == nil || r.changed(next) {
			return true
		}
	}
	return false
}

type subscribeFunc func(onChange func(next any)) func()

func subscriberFor[T any](src store.Source[T]) subscribeFunc {
	return func(onChange func(next any)) func() {
		return src.Subscribe(func(next, _ T) {
			onChange(next)
		})
	}
}

// Accessor records the dependencies of one derivation pass. It is only valid
// while the derivation it was passed to is running.
type Accessor struct {
	owner     string
	track     bool
	subscribe bool
	closed    bool

	prev     map[any]*edge
	index    map[any]*edge
	edges    []*edge
	reads    map[*edge][]read
	fresh    []*edge
	onChange func(*edge, any)
}

func newAccessor(owner string, track, subscribe bool, prev map[any]*edge, onChange func(*edge, any)) *Accessor {
	a := &Accessor{
		owner:     owner,
		track:     track,
		subscribe: subscribe,
		prev:      prev,
		onChange:  onChange,
	}
	if track {
		a.index = make(map[any]*edge, len(prev))
		a.reads = make(map[*edge][]read, len(prev))
	}
	return a
}

func (a *Accessor) check() {
	if a == nil {
		panic(derrors.New("E004").WithDetail("nil accessor"))
	}
	if a.closed {
		panic(derrors.New("E004").WithStore(a.owner))
	}
}

// declare returns the edge for src, reusing the committed edge if the
// previous pass already depended on it and subscribing otherwise.
func (a *Accessor) declare(src any, subscribe subscribeFunc) *edge {
	a.check()
	if !a.track {
		return nil
	}
	if src == nil || !reflect.TypeOf(src).Comparable() {
		panic(derrors.New("E006").WithStore(a.owner).WithValue(reflect.TypeOf(src)))
	}
	if e, ok := a.index[src]; ok {
		return e
	}
	e, ok := a.prev[src]
	if !ok {
		e = &edge{key: src, name: store.NameOf(src)}
		if a.subscribe {
			onChange := a.onChange
			// Subscribe before the caller reads so an inner derived store is
			// active, and therefore cached, by the time it is read.
			e.unsub = subscribe(func(next any) { onChange(e, next) })
			a.fresh = append(a.fresh, e)
		}
	}
	a.index[src] = e
	a.edges = append(a.edges, e)
	return e
}

func (a *Accessor) record(e *edge, r read) {
	if e == nil {
		return
	}
	a.reads[e] = append(a.reads[e], r)
}

// rollback drops the subscriptions this pass opened.
func (a *Accessor) rollback() {
	for _, e := range a.fresh {
		if e.unsub != nil {
			e.unsub()
			e.unsub = nil
		}
	}
	a.fresh = nil
}

func (a *Accessor) close() {
	a.closed = true
}

// Get reads the whole value of src and records a dependency on it.
func Get[T any](a *Accessor, src store.Source[T]) T {
	e := a.declare(src, subscriberFor(src))
	v := src.GetState()
	a.record(e, read{})
	return v
}

// Select reads sel(src) and records a dependency on that projection only.
// Later changes to src re-run the derivation only when the projection differs
// under eq, which defaults to store.Is.
func Select[T, S any](a *Accessor, src store.Source[T], sel func(T) S, eq ...store.EqualFunc[S]) S {
	e := a.declare(src, subscriberFor(src))
	v := sel(src.GetState())
	if e != nil {
		equal := store.Is[S]
		if len(eq) > 0 && eq[0] != nil {
			equal = eq[0]
		}
		a.record(e, read{changed: func(next any) bool {
			n, ok := next.(T)
			if !ok {
				return true
			}
			return !equal(v, sel(n))
		}})
	}
	return v
}

// Peek reads src without recording a dependency.
func Peek[T any](a *Accessor, src store.Source[T]) T {
	a.check()
	return src.GetState()
}
