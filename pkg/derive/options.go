package derive

import (
	"time"

	derrors "github.com/vango-dev/derive/internal/errors"
)

// Option configures a derived store.
type Option func(*options)

type options struct {
	equal    any
	debounce time.Duration
	stable   bool
	fast     bool
	sched    *Scheduler
	name     string
	onError  func(error)
	err      *derrors.DeriveError
}

// WithEqual sets the equality used to suppress notifications. The default is
// store.Is. eq must take the store's value type.
func WithEqual[T any](eq func(a, b T) bool) Option {
	return func(o *options) {
		if eq != nil {
			o.equal = eq
		}
	}
}

// WithDebounce delays recomputation until d has passed without a further
// change. Zero restores per-tick batching.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			o.err = derrors.New("E005").WithDetail("debounce must not be negative")
			return
		}
		o.debounce = d
	}
}

// WithStableSubscriptions keeps the dependency set of the first tracked pass
// for as long as the store stays active. Later passes still read whatever
// they read, but do not subscribe to new sources or drop old ones.
func WithStableSubscriptions() Option {
	return func(o *options) {
		o.stable = true
	}
}

// WithFastPath skips observer events and registry bookkeeping for the store.
// Semantics are otherwise unchanged.
func WithFastPath() Option {
	return func(o *options) {
		o.fast = true
	}
}

// WithScheduler selects the scheduler that batches the store's recomputes.
// The default is DefaultScheduler().
func WithScheduler(s *Scheduler) Option {
	return func(o *options) {
		o.sched = s
	}
}

// WithName names the store in logs, errors and introspection.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// OnError overrides the scheduler's error handler for this store.
func OnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}
