package derive

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vango-dev/derive/pkg/store"
)

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func equalKinds(a, b []EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestObserverLifecycleEvents(t *testing.T) {
	var events []Event
	loop, _, sched := newTestScheduler(WithObserver(ObserverFunc(func(e Event) {
		events = append(events, e)
	})))
	base := store.New(1)
	d := New(func(a *Accessor) int { return Get(a, base) }, WithScheduler(sched), WithName("watched"))

	unsub := d.Subscribe(func(int, int) {})
	base.SetState(2)
	loop.Drain()
	unsub()
	d.Destroy()

	want := []EventKind{EventActivated, EventScheduled, EventRecomputed, EventNotified, EventDeactivated, EventDestroyed}
	if got := kinds(events); !equalKinds(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, e := range events {
		if e.Store != "watched" || e.StoreID != d.ID() {
			t.Errorf("event carries wrong store: %+v", e)
		}
	}
	if !events[2].Changed {
		t.Error("expected recompute marked as changed")
	}
	if events[3].Watchers != 1 {
		t.Errorf("expected 1 notified watcher, got %d", events[3].Watchers)
	}
}

func TestObserverFailedEvent(t *testing.T) {
	var failed []Event
	loop, _, sched := newTestScheduler(
		WithErrorHandler(func(error) {}),
		WithObserver(ObserverFunc(func(e Event) {
			if e.Kind == EventFailed {
				failed = append(failed, e)
			}
		})),
	)
	base := store.New(0)
	d := New(func(a *Accessor) int {
		if Get(a, base) > 0 {
			panic(errors.New("kaput"))
		}
		return 0
	}, WithScheduler(sched))
	d.Subscribe(func(int, int) {})

	base.SetState(1)
	loop.Drain()

	if len(failed) != 1 || !errors.Is(failed[0].Err, ErrDerivationPanic) {
		t.Fatalf("expected one failed event, got %v", failed)
	}
	if !strings.Contains(failed[0].Err.Error(), "kaput") {
		t.Errorf("expected cause in error, got %v", failed[0].Err)
	}
}

func TestObserverFastPathSilent(t *testing.T) {
	count := 0
	reg := NewRegistry()
	loop, _, sched := newTestScheduler(
		WithRegistry(reg),
		WithObserver(ObserverFunc(func(Event) { count++ })),
	)
	base := store.New(1)
	d := New(func(a *Accessor) int { return Get(a, base) * 2 }, WithScheduler(sched), WithFastPath())

	var calls []call[int]
	d.Subscribe(record(&calls))
	base.SetState(2)
	loop.Drain()

	if count != 0 {
		t.Errorf("fast path store emitted %d events", count)
	}
	if reg.Len() != 0 {
		t.Errorf("fast path store registered itself")
	}
	if len(calls) != 1 || calls[0] != (call[int]{4, 2}) {
		t.Errorf("fast path must keep notification semantics, got %v", calls)
	}
}

func TestObserversFanOut(t *testing.T) {
	var a, b int
	obs := Observers(ObserverFunc(func(Event) { a++ }), nil, ObserverFunc(func(Event) { b++ }))
	obs.Observe(Event{Kind: EventScheduled})
	if a != 1 || b != 1 {
		t.Errorf("expected fan out, got %d %d", a, b)
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(Event{Kind: EventFailed, StoreID: 7, Store: "s", Err: errors.New("x")})
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"kind":"failed"`) || !strings.Contains(out, `"error":"x"`) {
		t.Errorf("unexpected json %s", out)
	}
	if EventKind(99).String() != "unknown" {
		t.Error("expected unknown for out of range kind")
	}
}
