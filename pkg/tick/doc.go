// Package tick provides the host scheduling primitive the derive engine runs on.
//
// A Host offers two things: "run this once, after the current synchronous work
// finishes" (Defer) and "run this after a delay" (AfterFunc). Loop implements
// Host as a single-threaded task queue that the application either drains
// explicitly once per logical step or runs on a dedicated goroutine.
//
//	loop := tick.NewLoop()
//	count.SetState(1)
//	count.SetState(2)
//	loop.Drain() // derived stores recompute once here
//
// Timers go through a Clock. ManualClock makes debounce windows deterministic
// in tests:
//
//	clock := tick.NewManualClock(time.Unix(0, 0))
//	loop := tick.NewLoop(tick.WithClock(clock))
//	clock.Advance(50 * time.Millisecond)
//	loop.Drain()
package tick
