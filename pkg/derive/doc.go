// Package derive is a fine-grained derived-state engine.
//
// A derived store's value is a pure function of the stores, and slices of
// stores, it read the last time it ran. Dependencies are recorded through the
// Accessor passed into every derivation, recomputation is batched on a host
// loop, and watchers are notified only when the value actually changes.
//
// # Core Types
//
// Derived[T] is a read-only store computed from other stores:
//
//	count := store.New(0)
//	doubled := derive.New(func(a *derive.Accessor) int {
//	    return derive.Get(a, count) * 2
//	}, derive.WithScheduler(sched))
//
//	unsub := doubled.Subscribe(func(next, prev int) {
//	    fmt.Println(prev, "->", next)
//	})
//
// Select records a dependency on a projection only:
//
//	name := derive.New(func(a *derive.Accessor) string {
//	    return derive.Select(a, user, func(u User) string { return u.Name })
//	})
//
// # Scheduling
//
// Changes mark dependents dirty; a Scheduler coalesces them and performs one
// recompute per dirty store per tick of its tick.Host:
//
//	loop := tick.NewLoop()
//	sched := derive.NewScheduler(loop)
//
//	count.SetState(1)
//	count.SetState(2)
//	loop.Drain() // doubled recomputes once, watchers see (4, 0)
//
// WithDebounce replaces the per-tick deferral with a timer restarted by every
// trigger. FlushUpdates settles pending work synchronously.
//
// # Lifecycle
//
// Stores are inert until first read or subscribed. With watchers they are
// active and serve GetState from cache. Without watchers they are idle and
// recompute on every GetState. Destroy cuts all watchers loose permanently.
//
// # Concurrency
//
// The engine is single-threaded. Derived stores, and writes to the base
// stores they depend on, must be used from the goroutine that drains or runs
// the scheduler's host. Use tick.Loop.Call to reach the engine from other
// goroutines.
package derive
