package query

import (
	"time"

	"github.com/vango-dev/derive/pkg/tick"
)

// Option configures a Query.
type Option func(*config)

type config struct {
	name       string
	staleTime  time.Duration
	retryCount int
	retryDelay time.Duration
	clock      tick.Clock
	onError    func(error)
}

// WithStaleTime sets how long successful data counts as fresh. Fetch is a
// no-op while data is fresh.
func WithStaleTime(d time.Duration) Option {
	return func(c *config) {
		c.staleTime = d
	}
}

// WithRetry retries a failed fetch count more times, delay apart.
func WithRetry(count int, delay time.Duration) Option {
	return func(c *config) {
		if count < 0 {
			count = 0
		}
		c.retryCount = count
		c.retryDelay = delay
	}
}

// WithName names the query in errors and introspection.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithClock sets the clock used for UpdatedAt, staleness and retry delays.
func WithClock(clock tick.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// OnError registers a callback invoked on the host after a fetch fails for
// good.
func OnError(fn func(error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}
