package instrument

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/store"
	"github.com/vango-dev/derive/pkg/tick"
)

func TestPrometheusRecordsEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Prometheus(WithRegistry(reg), WithNamespace("test"))

	loop := tick.NewLoop()
	sched := derive.NewScheduler(loop,
		derive.WithObserver(m),
		derive.WithErrorHandler(func(error) {}),
	)
	base := store.New(1)
	doubled := derive.New(func(a *derive.Accessor) int {
		v := derive.Get(a, base)
		if v < 0 {
			panic("negative")
		}
		return v * 2
	}, derive.WithScheduler(sched), derive.WithName("doubled"))

	unsub := doubled.Subscribe(func(int, int) {})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeStores))

	base.SetState(2)
	loop.Drain()
	base.SetState(-1)
	loop.Drain()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputes.WithLabelValues("doubled", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.scheduled.WithLabelValues("doubled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("doubled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("doubled")))

	unsub()
	doubled.Destroy()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeStores))

	count, err := testutil.GatherAndCount(reg, "test_recompute_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusActiveGaugeOnDestroy(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Prometheus(WithRegistry(reg))

	m.Observe(derive.Event{Kind: derive.EventActivated, StoreID: 1, Store: "a"})
	m.Observe(derive.Event{Kind: derive.EventActivated, StoreID: 1, Store: "a"})
	m.Observe(derive.Event{Kind: derive.EventActivated, StoreID: 2, Store: "b"})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeStores))

	m.Observe(derive.Event{Kind: derive.EventDestroyed, StoreID: 1, Store: "a"})
	m.Observe(derive.Event{Kind: derive.EventDestroyed, StoreID: 1, Store: "a"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeStores))
}

func TestPrometheusExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Prometheus(WithRegistry(reg), WithConstLabels(prometheus.Labels{"app": "demo"}))
	m.Observe(derive.Event{Kind: derive.EventRecomputed, Store: "s", Duration: time.Millisecond})

	expected := `
# HELP derive_recomputes_total Total number of tracked recomputes
# TYPE derive_recomputes_total counter
derive_recomputes_total{app="demo",changed="false",store="s"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "derive_recomputes_total")
	assert.NoError(t, err)
}
