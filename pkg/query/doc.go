// Package query provides an asynchronous data store.
//
// A Query runs a fetcher on its own goroutine and publishes the outcome as a
// State, applied on a tick.Host so that derived stores reading the query only
// ever see changes on the engine goroutine:
//
//	users := query.New(loop, func(ctx context.Context) ([]User, error) {
//	    return api.ListUsers(ctx)
//	}, query.WithStaleTime(time.Minute), query.WithRetry(2, time.Second))
//
//	active := derive.New(func(a *derive.Accessor) int {
//	    return len(derive.Select(a, users, func(s query.State[[]User]) []User {
//	        return s.Data
//	    }))
//	})
//
//	users.Fetch(ctx)
//
// Outdated fetches are cancelled and their results dropped.
package query
