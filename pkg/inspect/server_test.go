package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/store"
	"github.com/vango-dev/derive/pkg/tick"
)

type fixture struct {
	loop    *tick.Loop
	reg     *derive.Registry
	count   *store.Store[int]
	doubled *derive.Derived[int]
	label   *derive.Derived[string]
}

func newFixture(t *testing.T, opts ...derive.SchedulerOption) *fixture {
	t.Helper()
	f := &fixture{loop: tick.NewLoop(), reg: derive.NewRegistry()}
	sched := derive.NewScheduler(f.loop, append([]derive.SchedulerOption{derive.WithRegistry(f.reg)}, opts...)...)

	f.count = store.New(2).Named("count")
	f.doubled = derive.New(func(a *derive.Accessor) int {
		return derive.Get(a, f.count) * 2
	}, derive.WithScheduler(sched), derive.WithName("doubled"))
	f.label = derive.New(func(a *derive.Accessor) string {
		d := derive.Get(a, f.doubled)
		c := derive.Select(a, f.count, func(v int) bool { return v > 0 })
		if !c {
			return "none"
		}
		return strconv.Itoa(d)
	}, derive.WithScheduler(sched), derive.WithName("label"))

	unsub := f.label.Subscribe(func(string, string) {})
	t.Cleanup(unsub)
	return f
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGraphGolden(t *testing.T) {
	f := newFixture(t)

	stores := f.reg.Snapshot()
	for i := range stores {
		stores[i].ID = uint64(i + 1)
	}

	var buf bytes.Buffer
	require.NoError(t, encodeJSON(&buf, BuildGraph(stores)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "graph", buf.Bytes())
}

func TestHandlerGraph(t *testing.T) {
	f := newFixture(t)
	h := Handler(f.reg, nil, WithSnapshotter(f.loop.Call))

	go func() {
		_ = f.loop.Run(contextWithCancel(t))
	}()

	rec := get(t, h, "/graph")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var graph Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	require.Len(t, graph.Stores, 2)
	assert.Equal(t, "doubled", graph.Stores[0].Name)
	assert.Equal(t, []string{"count"}, graph.Sources)
	assert.Len(t, graph.Edges, 3)
}

func contextWithCancel(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func TestHandlerStore(t *testing.T) {
	f := newFixture(t)
	h := Handler(f.reg, nil)

	rec := get(t, h, "/stores/"+strconv.FormatUint(f.label.ID(), 10))
	require.Equal(t, http.StatusOK, rec.Code)
	var info derive.StoreInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "label", info.Name)
	assert.Equal(t, "active", info.State)
	assert.Equal(t, []string{"doubled", "count"}, info.Dependencies)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/stores/999999999").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/stores/abc").Code)
}

func TestHandlerSnapshotFailure(t *testing.T) {
	f := newFixture(t)
	h := Handler(f.reg, nil, WithSnapshotter(func(context.Context, func()) error {
		return errors.New("loop stopped")
	}), WithLogger(discardLogger()))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/graph").Code)
}

func TestHandlerHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "inspect_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := Handler(derive.NewRegistry(), nil, WithGatherer(reg))

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "inspect_test_total 1")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/events").Code)
}

func TestBuildGraphEmpty(t *testing.T) {
	g := BuildGraph(nil)
	assert.NotNil(t, g.Stores)
	assert.Empty(t, g.Sources)
	assert.Empty(t, g.Edges)
}
