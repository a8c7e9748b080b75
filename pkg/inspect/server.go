package inspect

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/derive/pkg/derive"
)

// Snapshotter runs fn on the engine goroutine and waits for it.
// tick.Loop.Call has this signature.
type Snapshotter func(ctx context.Context, fn func()) error

// Option configures the inspector handler.
type Option func(*handler)

// WithSnapshotter sets how registry snapshots reach the engine goroutine.
// Without one, snapshots are taken on the HTTP goroutine, which is only safe
// while the engine is idle.
func WithSnapshotter(s Snapshotter) Option {
	return func(h *handler) {
		h.snapshot = s
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *handler) {
		h.gatherer = g
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// GraphEdge is a dependency from a source to the store that reads it.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the JSON form of the dependency graph.
type Graph struct {
	Stores  []derive.StoreInfo `json:"stores"`
	Sources []string           `json:"sources"`
	Edges   []GraphEdge        `json:"edges"`
}

// BuildGraph derives the graph from registry snapshot entries. Sources lists
// dependencies that are not themselves registered derived stores.
func BuildGraph(stores []derive.StoreInfo) Graph {
	g := Graph{
		Stores:  stores,
		Sources: []string{},
		Edges:   []GraphEdge{},
	}
	if g.Stores == nil {
		g.Stores = []derive.StoreInfo{}
	}
	derived := make(map[string]bool, len(stores))
	for _, s := range stores {
		derived[s.Name] = true
	}
	seen := make(map[string]bool)
	for _, s := range stores {
		for _, dep := range s.Dependencies {
			g.Edges = append(g.Edges, GraphEdge{From: dep, To: s.Name})
			if !derived[dep] && !seen[dep] {
				seen[dep] = true
				g.Sources = append(g.Sources, dep)
			}
		}
	}
	sort.Strings(g.Sources)
	return g
}

type handler struct {
	reg      *derive.Registry
	hub      *Hub
	snapshot Snapshotter
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Handler returns the inspector routes:
//
//	GET /healthz       liveness
//	GET /graph         dependency graph
//	GET /stores/{id}   one store
//	GET /events        WebSocket event feed (when hub is non-nil)
//	GET /metrics       Prometheus exposition (WithGatherer)
func Handler(reg *derive.Registry, hub *Hub, opts ...Option) http.Handler {
	h := &handler{
		reg:    reg,
		hub:    hub,
		logger: slog.Default(),
		snapshot: func(_ context.Context, fn func()) error {
			fn()
			return nil
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.healthz)
	r.Get("/graph", h.graph)
	r.Get("/stores/{id}", h.store)
	if hub != nil {
		r.Get("/events", hub.HandleWebSocket)
	}
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (h *handler) graph(w http.ResponseWriter, r *http.Request) {
	var stores []derive.StoreInfo
	if err := h.snapshot(r.Context(), func() { stores = h.reg.Snapshot() }); err != nil {
		h.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	h.write(w, BuildGraph(stores))
}

func (h *handler) store(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}
	var (
		info derive.StoreInfo
		ok   bool
	)
	if err := h.snapshot(r.Context(), func() { info, ok = h.reg.Lookup(id) }); err != nil {
		h.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	if !ok {
		http.Error(w, "store not found", http.StatusNotFound)
		return
	}
	h.write(w, info)
}

func (h *handler) write(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := encodeJSON(w, v); err != nil {
		h.logger.Error("inspect: write response", "error", err)
	}
}

func (h *handler) fail(w http.ResponseWriter, status int, err error) {
	h.logger.Error("inspect: snapshot failed", "error", err)
	http.Error(w, http.StatusText(status), status)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
