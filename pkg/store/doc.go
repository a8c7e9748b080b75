// Package store provides the base observable container used by the derive
// engine, together with the read contract every dependency source implements.
//
// # Core Types
//
// Store[T] holds a plain value:
//
//	count := store.New(0).Named("count")
//	count.SetState(5)
//	count.Update(func(n int) int { return n + 1 })
//
// Source[T] is the read side shared by base and derived stores:
//
//	unsub := count.Subscribe(func(next, prev int) {
//	    fmt.Println(prev, "->", next)
//	})
//	defer unsub()
//
// # Selector Subscriptions
//
// SubscribeSelect watches a projection of any Source and fires only when the
// projection changes:
//
//	store.SubscribeSelect(user, func(u User) string { return u.Name },
//	    func(next, prev string) { ... },
//	    store.FireImmediately(),
//	)
//
// # Equality
//
// Stores notify only when their equality function reports a change. The
// default, Is, compares comparable values with == and reference types by
// identity. DeepEqual, ShallowEqual and HashEqual are available for
// structural comparison.
package store
