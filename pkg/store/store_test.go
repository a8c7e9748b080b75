package store

import (
	"testing"
)

func TestStoreBasic(t *testing.T) {
	s := New(5)

	if s.GetState() != 5 {
		t.Errorf("expected 5, got %d", s.GetState())
	}

	s.SetState(10)
	if s.GetState() != 10 {
		t.Errorf("expected 10, got %d", s.GetState())
	}
}

func TestStoreNotifiesWithNextAndPrev(t *testing.T) {
	s := New(1)

	var calls [][2]int
	s.Subscribe(func(next, prev int) {
		calls = append(calls, [2]int{next, prev})
	})

	s.SetState(2)
	s.Update(func(n int) int { return n * 10 })

	if len(calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(calls))
	}
	if calls[0] != [2]int{2, 1} || calls[1] != [2]int{20, 2} {
		t.Errorf("unexpected notifications: %v", calls)
	}
}

func TestStoreSameValueDoesNotNotify(t *testing.T) {
	s := New("a")
	count := 0
	s.Subscribe(func(string, string) { count++ })

	if s.SetState("a") {
		t.Error("SetState with the same value should report no change")
	}
	if count != 0 {
		t.Errorf("expected 0 notifications, got %d", count)
	}
}

func TestStoreWithEqual(t *testing.T) {
	type user struct {
		Name string
		Tags []string
	}
	s := New(user{Name: "ada", Tags: []string{"x"}}).WithEqual(DeepEqual[user])
	count := 0
	s.Subscribe(func(user, user) { count++ })

	s.SetState(user{Name: "ada", Tags: []string{"x"}})
	if count != 0 {
		t.Errorf("deep-equal write should not notify, got %d", count)
	}

	s.SetState(user{Name: "bob", Tags: []string{"x"}})
	if count != 1 {
		t.Errorf("expected 1 notification, got %d", count)
	}
}

func TestStoreSameCompositeDoesNotNotify(t *testing.T) {
	type user struct {
		Name string
		Tags []string
	}
	tags := []string{"x"}
	s := New(user{Name: "ada", Tags: tags})
	count := 0
	s.Subscribe(func(user, user) { count++ })

	if s.SetState(user{Name: "ada", Tags: tags}) {
		t.Error("struct holding the same slice should report no change")
	}
	if count != 0 {
		t.Errorf("expected 0 notifications, got %d", count)
	}

	s.SetState(user{Name: "ada", Tags: []string{"x"}})
	if count != 1 {
		t.Errorf("a fresh slice should notify, got %d", count)
	}
}

func TestStoreSubscriptionOrderAndUnsubscribe(t *testing.T) {
	s := New(0)
	var order []string

	unsubA := s.Subscribe(func(int, int) { order = append(order, "a") })
	s.Subscribe(func(int, int) { order = append(order, "b") })
	s.Subscribe(func(int, int) { order = append(order, "c") })

	s.SetState(1)
	unsubA()
	unsubA() // idempotent
	s.SetState(2)

	want := []string{"a", "b", "c", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.ListenerCount() != 2 {
		t.Errorf("expected 2 listeners, got %d", s.ListenerCount())
	}
}

func TestStoreUnsubscribeDuringNotify(t *testing.T) {
	s := New(0)
	calledSecond := 0

	var unsubSecond func()
	s.Subscribe(func(int, int) { unsubSecond() })
	unsubSecond = s.Subscribe(func(int, int) { calledSecond++ })

	s.SetState(1)
	if calledSecond != 0 {
		t.Errorf("listener removed mid-notify should be skipped, got %d calls", calledSecond)
	}
}

func TestStoreName(t *testing.T) {
	s := New(0)
	if s.Name() == "" {
		t.Error("expected a fallback name")
	}
	s.Named("count")
	if s.Name() != "count" {
		t.Errorf("Name() = %q, want count", s.Name())
	}
	if NameOf(s) != "count" {
		t.Errorf("NameOf() = %q, want count", NameOf(s))
	}
}

func TestSubscribeSelectIsolation(t *testing.T) {
	type profile struct {
		Name string
		Age  int
	}
	s := New(profile{Name: "ada", Age: 36})

	var names []string
	SubscribeSelect(s, func(p profile) string { return p.Name }, func(next, prev string) {
		names = append(names, prev+"->"+next)
	})

	s.SetState(profile{Name: "ada", Age: 37})
	if len(names) != 0 {
		t.Errorf("unrelated field change should not notify, got %v", names)
	}

	s.SetState(profile{Name: "grace", Age: 37})
	if len(names) != 1 || names[0] != "ada->grace" {
		t.Errorf("unexpected slice notifications: %v", names)
	}
}

func TestSubscribeSelectFireImmediately(t *testing.T) {
	s := New(3)
	var calls [][2]int
	SubscribeSelect(s, func(n int) int { return n * 2 }, func(next, prev int) {
		calls = append(calls, [2]int{next, prev})
	}, FireImmediately())

	if len(calls) != 1 || calls[0] != [2]int{6, 6} {
		t.Errorf("expected immediate (6, 6), got %v", calls)
	}
}

func TestSubscribeSelectWatchEqual(t *testing.T) {
	s := New([]int{1, 2})
	count := 0
	SubscribeSelect(s, func(v []int) []int { return v }, func(next, prev []int) {
		count++
	}, WatchEqual(DeepEqual[[]int]))

	s.SetState([]int{1, 2})
	if count != 0 {
		t.Errorf("structurally equal slice should not notify, got %d", count)
	}
	s.SetState([]int{1, 2, 3})
	if count != 1 {
		t.Errorf("expected 1 notification, got %d", count)
	}
}

func TestSubscribeSelectWatchEqualTypeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for mismatched WatchEqual type")
		}
	}()
	s := New(1)
	SubscribeSelect(s, func(n int) int { return n }, func(int, int) {}, WatchEqual(Is[string]))
}
