package tick

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a single-threaded task queue implementing Host.
// Defer and AfterFunc are safe from any goroutine. Tasks run one at a time,
// in FIFO order, on whichever goroutine calls Drain or Run.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	clock   Clock
	logger  *slog.Logger
	onPanic func(any)

	ran atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock used by AfterFunc. Default: SystemClock().
func WithClock(c Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPanicHandler is called with the recovered value of a panicking task.
func WithPanicHandler(fn func(any)) Option {
	return func(l *Loop) {
		l.onPanic = fn
	}
}

// NewLoop creates an empty loop.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		clock:  SystemClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the loop's clock.
func (l *Loop) Clock() Clock {
	return l.clock
}

// Defer enqueues fn to run after all previously queued tasks.
func (l *Loop) Defer(fn func()) {
	if l == nil || fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc runs fn on the loop once d has elapsed on the loop's clock.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{fn: fn}
	t.stopper = l.clock.AfterFunc(d, func() {
		l.Defer(t.run)
	})
	return t
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Ran returns the total number of tasks executed.
func (l *Loop) Ran() uint64 {
	return l.ran.Load()
}

// Drain runs queued tasks until the queue is empty, including tasks queued
// while draining, and returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.runTask(fn)
		n++
	}
}

// Run drains the loop whenever work arrives, until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Call runs fn on the loop and waits for it to finish.
// The loop must be running (Run) or drained by someone else.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	var panicked any
	l.Defer(func() {
		defer close(done)
		defer func() {
			panicked = recover()
		}()
		fn()
	})

	select {
	case <-done:
		if panicked != nil {
			return fmt.Errorf("tick: task panicked: %v", panicked)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("tick: task panicked", slog.Any("panic", r))
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	l.ran.Add(1)
	fn()
}

// loopTimer guards against a callback that fired into the queue but was
// stopped before the loop reached it.
type loopTimer struct {
	fn      func()
	stopper Stopper
	done    atomic.Bool
}

func (t *loopTimer) run() {
	if t.done.CompareAndSwap(false, true) {
		t.fn()
	}
}

func (t *loopTimer) Stop() bool {
	if !t.done.CompareAndSwap(false, true) {
		return false
	}
	if t.stopper != nil {
		t.stopper.Stop()
	}
	return true
}

var (
	defaultLoop     *Loop
	defaultLoopOnce sync.Once
)

// Default returns the process-wide loop used by derive.DefaultScheduler.
// The application is responsible for draining or running it.
func Default() *Loop {
	defaultLoopOnce.Do(func() {
		defaultLoop = NewLoop()
	})
	return defaultLoop
}
