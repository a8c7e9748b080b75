package derive

import (
	"container/heap"
	"errors"
	"log/slog"
	"sync"

	derrors "github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/tick"
)

// settler is a store the scheduler can settle. rank is the store's depth in
// the graph: one more than the deepest derived store it reads.
type settler interface {
	storeID() uint64
	rank() int
	settle()
	fail(r any)
}

type queueEntry struct {
	s     settler
	depth int
	gen   uint64
}

// queueHeap orders entries by depth, then by enqueue order.
type queueHeap []queueEntry

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].gen < h[j].gen
}

func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queueHeap) Push(x any) { *h = append(*h, x.(queueEntry)) }

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = queueEntry{}
	*h = old[:n-1]
	return e
}

// Scheduler batches dirty derived stores and recomputes each of them at most
// once per flush. A flush is requested from the host the first time a store
// is queued and drains everything queued until it returns, including stores
// dirtied by the flush itself. Shallower stores settle first, so a store
// never recomputes against an upstream store that is still dirty.
type Scheduler struct {
	host     tick.Host
	logger   *slog.Logger
	onError  func(error)
	observer Observer
	registry *Registry
	budget   int

	mu        sync.Mutex
	queue     queueHeap
	queued    map[uint64]uint64
	gen       uint64
	scheduled bool
	flushing  bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger used for lifecycle debug logs and failure
// reports. The default is slog.Default().
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithErrorHandler sets the default handler for panics raised by scheduled
// recomputes. Stores can override it with OnError.
func WithErrorHandler(fn func(error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithObserver attaches an Observer to every store on this scheduler that
// does not use the fast path.
func WithObserver(obs Observer) SchedulerOption {
	return func(s *Scheduler) {
		s.observer = obs
	}
}

// WithRegistry makes every non-fast-path store on this scheduler register
// itself in reg for introspection.
func WithRegistry(reg *Registry) SchedulerOption {
	return func(s *Scheduler) {
		s.registry = reg
	}
}

// WithFlushBudget caps how many stores one flush settles. Stores beyond the
// budget stay queued and a new flush is deferred, so a watcher that keeps
// writing to its own dependencies yields to other host work instead of
// starving it. Zero means no limit.
func WithFlushBudget(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.budget = n
		}
	}
}

// NewScheduler creates a scheduler that defers flushes and timers to host.
func NewScheduler(host tick.Host, opts ...SchedulerOption) *Scheduler {
	if host == nil {
		host = tick.Default()
	}
	s := &Scheduler{
		host:   host,
		logger: slog.Default(),
		queued: make(map[uint64]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	defaultSchedulerOnce sync.Once
	defaultScheduler     *Scheduler
)

// DefaultScheduler returns the process-wide scheduler backed by
// tick.Default().
func DefaultScheduler() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewScheduler(tick.Default())
	})
	return defaultScheduler
}

// Host returns the host the scheduler defers to.
func (s *Scheduler) Host() tick.Host {
	return s.host
}

// Registry returns the registry stores register with, or nil.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Len returns the number of stores waiting for a flush.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

func (s *Scheduler) enqueue(t settler) {
	s.mu.Lock()
	id := t.storeID()
	if _, ok := s.queued[id]; ok {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.queued[id] = s.gen
	heap.Push(&s.queue, queueEntry{s: t, depth: t.rank(), gen: s.gen})
	request := !s.scheduled && !s.flushing
	if request {
		s.scheduled = true
	}
	s.mu.Unlock()

	if request {
		s.host.Defer(s.flush)
	}
}

func (s *Scheduler) dequeue(t settler) {
	s.mu.Lock()
	delete(s.queued, t.storeID())
	s.mu.Unlock()
}

// Flush settles every queued store now instead of waiting for the host.
func (s *Scheduler) Flush() {
	s.flush()
}

func (s *Scheduler) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.scheduled = false
	s.mu.Unlock()

	settled := 0
	for {
		s.mu.Lock()
		if s.budget > 0 && settled >= s.budget && len(s.queued) > 0 {
			s.flushing = false
			s.scheduled = true
			left := len(s.queued)
			s.mu.Unlock()
			s.logger.Warn("derive: flush budget exceeded", "budget", s.budget, "deferred", left)
			s.host.Defer(s.flush)
			return
		}
		t, ok := s.popLocked(-1)
		if !ok {
			s.queue = nil
			s.flushing = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.run(t)
		settled++
	}
}

// settleBelow settles every queued store shallower than depth. A store calls
// it before recomputing outside the normal flush order.
func (s *Scheduler) settleBelow(depth int) {
	for {
		s.mu.Lock()
		t, ok := s.popLocked(depth)
		s.mu.Unlock()
		if !ok {
			return
		}
		s.run(t)
	}
}

// popLocked removes and returns the shallowest live entry. With below >= 0
// only entries shallower than below qualify. s.mu must be held.
func (s *Scheduler) popLocked(below int) (settler, bool) {
	for s.queue.Len() > 0 {
		top := s.queue[0]
		if below >= 0 && top.depth >= below {
			return nil, false
		}
		heap.Pop(&s.queue)
		id := top.s.storeID()
		if gen, ok := s.queued[id]; !ok || gen != top.gen {
			continue
		}
		delete(s.queued, id)
		return top.s, true
	}
	return nil, false
}

// run settles one store, containing any panic to that store.
func (s *Scheduler) run(t settler) {
	defer func() {
		if r := recover(); r != nil {
			t.fail(r)
		}
	}()
	t.settle()
}

func (s *Scheduler) report(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	var de *derrors.DeriveError
	if errors.As(err, &de) && de.Store != "" {
		s.logger.Error("derive: recompute failed", "store", de.Store, "code", de.Code, "error", err)
		return
	}
	s.logger.Error("derive: recompute failed", "error", err)
}
