package derive

import (
	"testing"
	"time"

	"github.com/vango-dev/derive/pkg/store"
)

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry()
	_, _, sched := newTestScheduler(WithRegistry(reg))
	base := store.New(1).Named("base")
	first := New(func(a *Accessor) int { return Get(a, base) }, WithScheduler(sched), WithName("first"))
	second := New(func(a *Accessor) int { return Get(a, first) }, WithScheduler(sched), WithName("second"),
		WithDebounce(time.Second))

	second.Subscribe(func(int, int) {})

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(snap))
	}
	if snap[0].Name != "first" || snap[1].Name != "second" {
		t.Errorf("expected ID order, got %s %s", snap[0].Name, snap[1].Name)
	}
	if snap[0].State != "active" || snap[0].Watchers != 1 {
		t.Errorf("unexpected first info %+v", snap[0])
	}
	if len(snap[0].Dependencies) != 1 || snap[0].Dependencies[0] != "base" {
		t.Errorf("unexpected dependencies %v", snap[0].Dependencies)
	}
	if snap[1].Debounce != "1s" {
		t.Errorf("expected debounce 1s, got %q", snap[1].Debounce)
	}

	info, ok := reg.Lookup(second.ID())
	if !ok || info.Derives != 1 {
		t.Errorf("unexpected lookup %+v %v", info, ok)
	}

	second.Destroy()
	if _, ok := reg.Lookup(second.ID()); ok {
		t.Error("destroyed store must leave the registry")
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 store left, got %d", reg.Len())
	}
}
