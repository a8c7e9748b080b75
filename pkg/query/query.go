package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	derrors "github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/store"
	"github.com/vango-dev/derive/pkg/tick"
)

// Status is the lifecycle stage of a query.
type Status int

const (
	StatusIdle    Status = iota // Never fetched
	StatusLoading               // Fetch in flight
	StatusSuccess               // Data loaded
	StatusError                 // Last fetch failed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is the value a Query publishes. Data keeps the last successful
// result while a refetch is loading or after it failed.
type State[T any] struct {
	Status    Status
	Data      T
	Err       error
	UpdatedAt time.Time
}

// Fetcher loads data. It should honour ctx cancellation.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Query is a store.Source whose value is filled in asynchronously.
type Query[T any] struct {
	id      uint64
	host    tick.Host
	fetcher Fetcher[T]
	cfg     config
	state   *store.Store[State[T]]

	mu        sync.Mutex
	fetchID   uint64
	cancel    context.CancelFunc
	lastFetch time.Time
	wg        sync.WaitGroup
}

var _ store.Source[State[int]] = (*Query[int])(nil)

// New creates an idle query. Nothing is fetched until Fetch or Refetch.
func New[T any](host tick.Host, fetcher Fetcher[T], opts ...Option) *Query[T] {
	if host == nil {
		host = tick.Default()
	}
	q := &Query[T]{
		id:      store.NextID(),
		host:    host,
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(&q.cfg)
	}
	if q.cfg.clock == nil {
		q.cfg.clock = tick.SystemClock()
	}
	q.state = store.New(State[T]{}).Named(q.Name())
	return q
}

// ID returns the process-unique identifier.
func (q *Query[T]) ID() uint64 { return q.id }

// Name returns the configured name, or "query#<id>".
func (q *Query[T]) Name() string {
	if q.cfg.name != "" {
		return q.cfg.name
	}
	return fmt.Sprintf("query#%d", q.id)
}

// GetState returns the current state.
func (q *Query[T]) GetState() State[T] {
	return q.state.GetState()
}

// Subscribe registers a listener for state changes. Listeners run on the host.
func (q *Query[T]) Subscribe(fn func(next, prev State[T])) func() {
	return q.state.Subscribe(fn)
}

// GetData returns the last successfully fetched data.
func (q *Query[T]) GetData() T {
	return q.state.GetState().Data
}

// Status returns the current status.
func (q *Query[T]) Status() Status {
	return q.state.GetState().Status
}

// Err returns the error of the last failed fetch, or nil.
func (q *Query[T]) Err() error {
	return q.state.GetState().Err
}

// Fetch starts a fetch unless the data is still fresh.
func (q *Query[T]) Fetch(ctx context.Context) {
	q.mu.Lock()
	fresh := q.state.GetState().Status == StatusSuccess &&
		q.cfg.staleTime > 0 &&
		q.cfg.clock.Now().Sub(q.lastFetch) < q.cfg.staleTime
	q.mu.Unlock()
	if fresh {
		return
	}
	q.Refetch(ctx)
}

// Refetch starts a fetch regardless of freshness, superseding any fetch in
// flight.
func (q *Query[T]) Refetch(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	q.mu.Lock()
	q.fetchID++
	id := q.fetchID
	if q.cancel != nil {
		q.cancel()
	}
	q.cancel = cancel
	q.mu.Unlock()

	q.host.Defer(func() {
		if !q.current(id) {
			return
		}
		q.state.Update(func(s State[T]) State[T] {
			s.Status = StatusLoading
			s.Err = nil
			return s
		})
	})

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer cancel()
		data, err := q.run(ctx, id)
		if !q.current(id) {
			return
		}
		q.host.Defer(func() { q.apply(id, data, err) })
	}()
}

// run calls the fetcher with retries.
func (q *Query[T]) run(ctx context.Context, id uint64) (T, error) {
	var (
		data T
		err  error
	)
	attempts := 1 + q.cfg.retryCount
	for i := 0; i < attempts; i++ {
		if i > 0 && q.cfg.retryDelay > 0 {
			elapsed := make(chan struct{})
			timer := q.cfg.clock.AfterFunc(q.cfg.retryDelay, func() { close(elapsed) })
			select {
			case <-ctx.Done():
				timer.Stop()
				return data, ctx.Err()
			case <-elapsed:
			}
		}
		if !q.current(id) {
			return data, context.Canceled
		}
		data, err = q.call(ctx)
		if err == nil {
			return data, nil
		}
	}
	return data, err
}

func (q *Query[T]) call(ctx context.Context) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query fetcher panicked: %v", r)
		}
	}()
	return q.fetcher(ctx)
}

func (q *Query[T]) apply(id uint64, data T, err error) {
	q.mu.Lock()
	if q.fetchID != id {
		q.mu.Unlock()
		return
	}
	q.cancel = nil
	now := q.cfg.clock.Now()
	if err == nil {
		q.lastFetch = now
	}
	q.mu.Unlock()

	if err != nil {
		wrapped := derrors.New("E010").WithStore(q.Name()).Wrap(err)
		q.state.Update(func(s State[T]) State[T] {
			s.Status = StatusError
			s.Err = wrapped
			s.UpdatedAt = now
			return s
		})
		if q.cfg.onError != nil {
			q.cfg.onError(wrapped)
		}
		return
	}
	q.state.SetState(State[T]{Status: StatusSuccess, Data: data, UpdatedAt: now})
}

func (q *Query[T]) current(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fetchID == id
}

// Cancel abandons the fetch in flight, if any. The state keeps whatever it
// held; a query left loading stays loading until the next fetch.
func (q *Query[T]) Cancel() {
	q.mu.Lock()
	q.fetchID++
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.mu.Unlock()
}

// Invalidate marks the data stale so the next Fetch goes to the fetcher.
func (q *Query[T]) Invalidate() {
	q.mu.Lock()
	q.lastFetch = time.Time{}
	q.mu.Unlock()
}

// Mutate optimistically replaces the data. It must run on the host.
func (q *Query[T]) Mutate(fn func(T) T) {
	q.state.Update(func(s State[T]) State[T] {
		s.Data = fn(s.Data)
		return s
	})
}

// Wait blocks until every fetcher goroutine started so far has returned.
func (q *Query[T]) Wait() {
	q.wg.Wait()
}
