// Package inspect serves a live view of a derive engine over HTTP.
//
// The handler exposes the registry's dependency graph as JSON, a per-store
// detail endpoint, a WebSocket feed of engine events and, optionally, the
// Prometheus metrics endpoint:
//
//	reg := derive.NewRegistry()
//	hub := inspect.NewHub()
//	sched := derive.NewScheduler(loop,
//	    derive.WithRegistry(reg),
//	    derive.WithObserver(hub),
//	)
//
//	h := inspect.Handler(reg, hub,
//	    inspect.WithSnapshotter(loop.Call),
//	    inspect.WithGatherer(prometheus.DefaultGatherer),
//	)
//	http.ListenAndServe(":7070", h)
//
// Registry snapshots read engine state, so the handler takes them through a
// Snapshotter that runs on the engine goroutine.
package inspect
