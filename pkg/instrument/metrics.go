package instrument

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/derive/pkg/derive"
)

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "derive").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for recompute duration.
	// Default: exponential from 10µs to ~80ms.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus exporter.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "derive",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a derive.Observer that records engine events as Prometheus
// metrics.
type Metrics struct {
	recomputes    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	failures      *prometheus.CounterVec
	scheduled     *prometheus.CounterVec
	activeStores  prometheus.Gauge

	mu     sync.Mutex
	active map[uint64]struct{}
}

// Prometheus creates an exporter and registers its metrics.
//
// Metrics collected:
//   - derive_recomputes_total: Counter of recomputes by store and changed
//   - derive_recompute_duration_seconds: Histogram of derivation run time by store
//   - derive_notifications_total: Counter of watcher notifications by store
//   - derive_failures_total: Counter of panicking derivations by store
//   - derive_scheduled_total: Counter of dirty marks by store
//   - derive_active_stores: Gauge of stores with at least one watcher
//
// Registering twice on the same registry panics, as with promauto.
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputes_total",
			Help:        "Total number of tracked recomputes",
			ConstLabels: config.ConstLabels,
		}, []string{"store", "changed"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recompute_duration_seconds",
			Help:        "Recompute duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"store"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of watcher notification rounds",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "failures_total",
			Help:        "Total number of derivations that panicked",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		scheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "scheduled_total",
			Help:        "Total number of times a store was marked dirty",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		activeStores: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_stores",
			Help:        "Number of derived stores with at least one watcher",
			ConstLabels: config.ConstLabels,
		}),

		active: make(map[uint64]struct{}),
	}
}

// Observe implements derive.Observer.
func (m *Metrics) Observe(e derive.Event) {
	switch e.Kind {
	case derive.EventActivated:
		m.setActive(e.StoreID, true)
	case derive.EventDeactivated, derive.EventDestroyed:
		m.setActive(e.StoreID, false)
	case derive.EventScheduled:
		m.scheduled.WithLabelValues(e.Store).Inc()
	case derive.EventRecomputed:
		m.recomputes.WithLabelValues(e.Store, strconv.FormatBool(e.Changed)).Inc()
		m.duration.WithLabelValues(e.Store).Observe(e.Duration.Seconds())
	case derive.EventNotified:
		m.notifications.WithLabelValues(e.Store).Inc()
	case derive.EventFailed:
		m.failures.WithLabelValues(e.Store).Inc()
	}
}

func (m *Metrics) setActive(id uint64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, was := m.active[id]
	switch {
	case active && !was:
		m.active[id] = struct{}{}
		m.activeStores.Inc()
	case !active && was:
		delete(m.active, id)
		m.activeStores.Dec()
	}
}
