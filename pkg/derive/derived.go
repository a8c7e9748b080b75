package derive

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	derrors "github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/store"
	"github.com/vango-dev/derive/pkg/tick"
)

// Derived is a read-only store whose value is computed from other stores.
//
// A Derived store implements store.Source and can be read by other
// derivations. It is not safe for concurrent use; see the package
// documentation.
type Derived[T any] struct {
	id      uint64
	name    string
	fn      func(*Accessor) T
	equal   store.EqualFunc[T]
	sched   *Scheduler
	onError func(error)

	debounce time.Duration
	stable   bool
	fast     bool

	value    T
	watchers store.Listeners[T]
	edges    []*edge
	index    map[any]*edge
	frozen   bool
	depth    int

	active    bool
	pending   bool
	computing bool
	destroyed bool
	timer     tick.Timer
	derives   atomic.Uint64
}

var _ store.Source[int] = (*Derived[int])(nil)

// New creates a derived store from fn. The store is inert: fn first runs on
// the first GetState or Subscribe.
//
// fn must be pure. It reads dependencies only through the accessor it is
// given and must not write to any store.
func New[T any](fn func(*Accessor) T, opts ...Option) *Derived[T] {
	if fn == nil {
		panic(derrors.New("E005").WithDetail("derivation function is nil"))
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		panic(o.err.WithStore(o.name))
	}

	d := &Derived[T]{
		id:       store.NextID(),
		name:     o.name,
		fn:       fn,
		equal:    store.Is[T],
		sched:    o.sched,
		onError:  o.onError,
		debounce: o.debounce,
		stable:   o.stable,
		fast:     o.fast,
	}
	if o.equal != nil {
		eq, ok := o.equal.(func(a, b T) bool)
		if !ok {
			var zero T
			panic(derrors.New("E005").
				WithStore(d.Name()).
				WithDetail(fmt.Sprintf("equality takes %T, store holds %T", o.equal, zero)))
		}
		d.equal = eq
	}
	if d.sched == nil {
		d.sched = DefaultScheduler()
	}
	if !d.fast && d.sched.registry != nil {
		d.sched.registry.add(d)
	}
	return d
}

// ID returns the store's process-unique identifier.
func (d *Derived[T]) ID() uint64 { return d.id }

func (d *Derived[T]) storeID() uint64 { return d.id }

func (d *Derived[T]) rank() int { return d.depth }

// Name returns the configured name, or "derived#<id>".
func (d *Derived[T]) Name() string {
	if d.name != "" {
		return d.name
	}
	return fmt.Sprintf("derived#%d", d.id)
}

// GetState returns the current value.
//
// An active store returns its cached value, settling a pending recompute
// first. An inert or idle store runs its derivation without subscribing to
// anything and caches the result.
func (d *Derived[T]) GetState() T {
	if d.computing {
		panic(derrors.New("E003").WithStore(d.Name()))
	}
	if d.active {
		if d.pending {
			d.refresh()
		}
		return d.value
	}
	v := d.evaluate(false)
	d.value = v
	return v
}

// SetState always panics: derived stores are read-only.
func (d *Derived[T]) SetState(T) {
	panic(derrors.New("E001").WithStore(d.Name()))
}

// Subscribe registers a watcher that receives (next, prev) after every
// recompute whose result differs from the previous value. The first watcher
// activates the store; removing the last one deactivates it. Subscribing to a
// destroyed store is a no-op.
func (d *Derived[T]) Subscribe(fn func(next, prev T)) func() {
	if fn == nil || d.destroyed {
		return func() {}
	}
	remove := d.watchers.Add(fn)
	if !d.active {
		d.activate(remove)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			remove()
			if d.active && d.watchers.Len() == 0 {
				d.deactivate()
			}
		})
	}
}

func (d *Derived[T]) activate(remove func()) {
	d.active = true
	ok := false
	defer func() {
		if !ok {
			d.active = false
			remove()
		}
	}()
	d.value = d.evaluate(true)
	ok = true
	d.sched.logger.Debug("derive: store activated", "store", d.Name(), "deps", len(d.edges))
	d.emit(Event{Kind: EventActivated, Watchers: d.watchers.Len()})
}

func (d *Derived[T]) deactivate() {
	d.active = false
	d.cancelPending()
	d.release()
	d.sched.logger.Debug("derive: store idle", "store", d.Name())
	d.emit(Event{Kind: EventDeactivated})
}

// FlushUpdates recomputes now if the store is active and a recompute is
// pending. Otherwise it does nothing.
func (d *Derived[T]) FlushUpdates() {
	if d.destroyed || !d.active || !d.pending || d.computing {
		return
	}
	d.refresh()
}

// Destroy unsubscribes from every dependency, drops every watcher and cancels
// pending work. It is idempotent; the store stays readable as an idle store.
func (d *Derived[T]) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.active = false
	d.cancelPending()
	d.release()
	d.watchers.Clear()
	if !d.fast && d.sched.registry != nil {
		d.sched.registry.remove(d.id)
	}
	d.emit(Event{Kind: EventDestroyed})
}

// DeriveCount returns how many times the derivation has run.
func (d *Derived[T]) DeriveCount() uint64 { return d.derives.Load() }

// Watchers returns the number of subscribed watchers.
func (d *Derived[T]) Watchers() int { return d.watchers.Len() }

// Pending reports whether a recompute is scheduled.
func (d *Derived[T]) Pending() bool { return d.pending }

// Active reports whether the store has watchers.
func (d *Derived[T]) Active() bool { return d.active }

// Destroyed reports whether Destroy was called.
func (d *Derived[T]) Destroyed() bool { return d.destroyed }

// Dependencies returns the names of the committed dependencies, in the order
// the last tracked pass first read them.
func (d *Derived[T]) Dependencies() []string {
	out := make([]string, 0, len(d.edges))
	for _, e := range d.edges {
		out = append(out, e.name)
	}
	return out
}

// Info returns an introspection snapshot of the store.
func (d *Derived[T]) Info() StoreInfo {
	info := StoreInfo{
		ID:           d.id,
		Name:         d.Name(),
		State:        d.state(),
		Watchers:     d.watchers.Len(),
		Derives:      d.derives.Load(),
		Pending:      d.pending,
		Stable:       d.stable,
		Dependencies: d.Dependencies(),
	}
	if d.debounce > 0 {
		info.Debounce = d.debounce.String()
	}
	return info
}

func (d *Derived[T]) state() string {
	switch {
	case d.destroyed:
		return "destroyed"
	case d.active:
		return "active"
	case d.derives.Load() == 0:
		return "inert"
	default:
		return "idle"
	}
}

// markDirty is called when a committed dependency changed in a way a recorded
// read cares about.
func (d *Derived[T]) markDirty() {
	if d.debounce > 0 {
		d.pending = true
		if d.timer != nil {
			d.timer.Stop()
		}
		d.timer = d.sched.host.AfterFunc(d.debounce, d.fire)
		d.emit(Event{Kind: EventScheduled})
		return
	}
	if d.pending {
		return
	}
	d.pending = true
	d.sched.enqueue(d)
	d.emit(Event{Kind: EventScheduled})
}

func (d *Derived[T]) fire() {
	d.timer = nil
	d.sched.run(d)
}

func (d *Derived[T]) edgeChanged(e *edge, next any) {
	if d.destroyed || !d.active || d.computing || e.unsub == nil {
		return
	}
	if !e.dirtiedBy(next) {
		return
	}
	d.markDirty()
}

// settle runs a scheduled recompute.
func (d *Derived[T]) settle() {
	if !d.pending || !d.active || d.destroyed {
		d.pending = false
		return
	}
	d.refresh()
}

func (d *Derived[T]) fail(r any) {
	err := derrors.New("E002").WithStore(d.Name()).WithValue(r)
	d.emit(Event{Kind: EventFailed, Err: err})
	if d.onError != nil {
		d.onError(err)
		return
	}
	d.sched.report(err)
}

// refresh recomputes with tracking and notifies watchers on change. Queued
// upstream stores settle first so the pass reads a consistent graph. Panics
// propagate after the store's bookkeeping is restored.
func (d *Derived[T]) refresh() {
	d.sched.settleBelow(d.depth)
	d.cancelPending()
	prev := d.value
	start := time.Now()
	next := d.evaluate(true)
	d.value = next
	changed := !d.equal(prev, next)
	d.emit(Event{Kind: EventRecomputed, Duration: time.Since(start), Changed: changed})
	if !changed || d.destroyed {
		return
	}
	d.watchers.Notify(next, prev)
	d.emit(Event{Kind: EventNotified, Watchers: d.watchers.Len()})
}

// evaluate runs one derivation pass. A tracked pass commits the dependencies
// it read; a failed tracked pass drops the subscriptions it opened and keeps
// the previous dependencies.
func (d *Derived[T]) evaluate(track bool) T {
	if d.computing {
		panic(derrors.New("E003").WithStore(d.Name()))
	}
	d.computing = true
	subscribe := track && !d.frozen
	acc := newAccessor(d.Name(), track, subscribe, d.index, d.edgeChanged)
	d.derives.Add(1)

	ok := false
	defer func() {
		acc.close()
		d.computing = false
		if !ok && track {
			acc.rollback()
		}
	}()
	next := d.fn(acc)
	ok = true

	if track {
		d.commit(acc)
	}
	return next
}

func (d *Derived[T]) commit(acc *Accessor) {
	for _, e := range acc.edges {
		e.reads = acc.reads[e]
	}
	if d.frozen {
		return
	}
	for _, e := range d.edges {
		if _, kept := acc.index[e.key]; !kept && e.unsub != nil {
			e.unsub()
			e.unsub = nil
		}
	}
	d.edges = acc.edges
	d.index = acc.index
	d.depth = 1
	for _, e := range d.edges {
		if r, ok := e.key.(interface{ rank() int }); ok && r.rank() >= d.depth {
			d.depth = r.rank() + 1
		}
	}
	if d.stable {
		d.frozen = true
	}
}

func (d *Derived[T]) release() {
	for _, e := range d.edges {
		if e.unsub != nil {
			e.unsub()
			e.unsub = nil
		}
	}
	d.edges = nil
	d.index = nil
	d.frozen = false
}

func (d *Derived[T]) cancelPending() {
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.sched.dequeue(d)
}

func (d *Derived[T]) emit(e Event) {
	if d.fast || d.sched.observer == nil {
		return
	}
	e.StoreID = d.id
	e.Store = d.Name()
	e.At = time.Now()
	d.sched.observer.Observe(e)
}
