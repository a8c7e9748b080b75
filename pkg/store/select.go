package store

import (
	"fmt"

	derrors "github.com/vango-dev/derive/internal/errors"
)

// WatchOption configures SubscribeSelect.
type WatchOption func(*watchConfig)

type watchConfig struct {
	fireImmediately bool
	equal           any
}

// FireImmediately invokes the listener once at subscribe time with
// (current, current).
func FireImmediately() WatchOption {
	return func(c *watchConfig) {
		c.fireImmediately = true
	}
}

// WatchEqual overrides the equality used to compare selected slices.
func WatchEqual[S any](eq EqualFunc[S]) WatchOption {
	return func(c *watchConfig) {
		c.equal = eq
	}
}

// SubscribeSelect registers a slice watcher on src. The listener is called
// only when selector(next) differs from selector(prev).
func SubscribeSelect[T, S any](src Source[T], selector func(T) S, fn func(next, prev S), opts ...WatchOption) func() {
	if src == nil || selector == nil || fn == nil {
		return func() {}
	}
	var cfg watchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	eq := Is[S]
	if cfg.equal != nil {
		typed, ok := cfg.equal.(EqualFunc[S])
		if !ok {
			panic(derrors.New("E005").WithDetail(fmt.Sprintf("WatchEqual expects EqualFunc[%T], got %T", *new(S), cfg.equal)))
		}
		eq = typed
	}

	unsub := src.Subscribe(func(next, prev T) {
		a, b := selector(next), selector(prev)
		if !eq(a, b) {
			fn(a, b)
		}
	})

	if cfg.fireImmediately {
		current := selector(src.GetState())
		fn(current, current)
	}
	return unsub
}
