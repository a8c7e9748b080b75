package tick

import "time"

// Host defers work until the current synchronous call stack has finished.
type Host interface {
	// Defer schedules fn to run once, after all currently queued work.
	Defer(fn func())

	// AfterFunc schedules fn to run on the host after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, false if it already ran or was stopped.
	Stop() bool
}

// HostFunc adapts a Defer-only function into a Host whose timers use the
// system clock and re-enter through the same function.
type HostFunc func(func())

// Defer dispatches fn using the wrapped function.
func (f HostFunc) Defer(fn func()) {
	if f == nil || fn == nil {
		return
	}
	f(fn)
}

// AfterFunc starts a system timer that defers fn through f when it fires.
func (f HostFunc) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{fn: fn}
	t.stopper = SystemClock().AfterFunc(d, func() {
		f.Defer(t.run)
	})
	return t
}
