package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/tick"
)

func settle[T any](q *Query[T], loop *tick.Loop) {
	q.Wait()
	loop.Drain()
}

func TestQuerySuccess(t *testing.T) {
	loop := tick.NewLoop()
	q := New(loop, func(context.Context) (string, error) {
		return "data", nil
	}, WithName("greeting"))

	require.Equal(t, StatusIdle, q.Status())

	var seen []Status
	q.Subscribe(func(next, _ State[string]) {
		seen = append(seen, next.Status)
	})

	q.Refetch(context.Background())
	settle(q, loop)

	assert.Equal(t, StatusSuccess, q.Status())
	assert.Equal(t, "data", q.GetData())
	assert.NoError(t, q.Err())
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, seen)
	assert.Equal(t, "greeting", q.Name())
}

func TestQueryErrorWithRetry(t *testing.T) {
	loop := tick.NewLoop()
	boom := errors.New("boom")
	var attempts atomic.Int32
	var reported error
	q := New(loop, func(context.Context) (int, error) {
		attempts.Add(1)
		return 0, boom
	}, WithRetry(2, time.Millisecond), OnError(func(err error) { reported = err }))

	q.Refetch(context.Background())
	settle(q, loop)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, StatusError, q.Status())
	require.Error(t, q.Err())
	assert.ErrorIs(t, q.Err(), boom)
	assert.Equal(t, "E010", derrors.Code(q.Err()))
	assert.Equal(t, q.Err(), reported)
}

func TestQueryRetryRecovers(t *testing.T) {
	loop := tick.NewLoop()
	var attempts atomic.Int32
	q := New(loop, func(context.Context) (int, error) {
		if attempts.Add(1) < 2 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	}, WithRetry(3, 0))

	q.Refetch(context.Background())
	settle(q, loop)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 42, q.GetData())
}

func TestQueryRetryDelayUsesClock(t *testing.T) {
	loop := tick.NewLoop()
	clock := tick.NewManualClock(time.Unix(0, 0))
	var attempts atomic.Int32
	q := New(loop, func(context.Context) (string, error) {
		if attempts.Add(1) == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, WithRetry(1, time.Minute), WithClock(clock))

	q.Refetch(context.Background())
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load(), "retry must wait for the clock")

	clock.Advance(time.Minute)
	settle(q, loop)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, StatusSuccess, q.Status())
	assert.Equal(t, "ok", q.GetData())
}

func TestQueryFetcherPanic(t *testing.T) {
	loop := tick.NewLoop()
	q := New(loop, func(context.Context) (int, error) {
		panic("fetcher exploded")
	})

	q.Refetch(context.Background())
	settle(q, loop)

	require.Equal(t, StatusError, q.Status())
	assert.Contains(t, q.Err().Error(), "fetcher exploded")
}

func TestQueryStaleTime(t *testing.T) {
	loop := tick.NewLoop()
	clock := tick.NewManualClock(time.Unix(0, 0))
	var calls atomic.Int32
	q := New(loop, func(context.Context) (int32, error) {
		return calls.Add(1), nil
	}, WithStaleTime(time.Minute), WithClock(clock))

	ctx := context.Background()
	q.Fetch(ctx)
	settle(q, loop)
	q.Fetch(ctx)
	settle(q, loop)
	assert.Equal(t, int32(1), calls.Load(), "fresh data must not refetch")

	clock.Advance(time.Minute)
	q.Fetch(ctx)
	settle(q, loop)
	assert.Equal(t, int32(2), calls.Load())

	q.Invalidate()
	q.Fetch(ctx)
	settle(q, loop)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), q.GetData())
}

func TestQuerySupersededFetchDropped(t *testing.T) {
	loop := tick.NewLoop()
	started := make(chan struct{})
	var first atomic.Bool
	first.Store(true)
	var cancelled atomic.Bool
	q := New(loop, func(ctx context.Context) (string, error) {
		if first.CompareAndSwap(true, false) {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return "old", nil
		}
		return "new", nil
	})

	ctx := context.Background()
	q.Refetch(ctx)
	<-started
	q.Refetch(ctx)
	settle(q, loop)

	assert.True(t, cancelled.Load(), "superseded fetch must see its context cancelled")
	assert.Equal(t, "new", q.GetData())
	assert.Equal(t, StatusSuccess, q.Status())
}

func TestQueryCancel(t *testing.T) {
	loop := tick.NewLoop()
	q := New(loop, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	q.Refetch(context.Background())
	q.Cancel()
	settle(q, loop)

	assert.NotEqual(t, StatusSuccess, q.Status())
	assert.NoError(t, q.Err())
}

func TestQueryMutate(t *testing.T) {
	loop := tick.NewLoop()
	q := New(loop, func(context.Context) ([]string, error) {
		return []string{"a"}, nil
	})
	q.Refetch(context.Background())
	settle(q, loop)

	q.Mutate(func(v []string) []string { return append(v, "b") })
	assert.Equal(t, []string{"a", "b"}, q.GetData())
}

func TestQueryDrivesDerivedStore(t *testing.T) {
	loop := tick.NewLoop()
	sched := derive.NewScheduler(loop)
	q := New(loop, func(context.Context) ([]string, error) {
		return []string{"ada", "grace"}, nil
	})

	count := derive.New(func(a *derive.Accessor) int {
		return len(derive.Get(a, q).Data)
	}, derive.WithScheduler(sched))

	var calls []int
	count.Subscribe(func(next, _ int) { calls = append(calls, next) })

	q.Refetch(context.Background())
	settle(q, loop)

	assert.Equal(t, 2, count.GetState())
	assert.Equal(t, []int{2}, calls)

	loading := derive.New(func(a *derive.Accessor) bool {
		return derive.Select(a, q, func(s State[[]string]) bool { return s.Status == StatusLoading })
	}, derive.WithScheduler(sched))
	assert.False(t, loading.GetState())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}
