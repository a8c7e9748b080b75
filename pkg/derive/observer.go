package derive

import (
	"encoding/json"
	"time"
)

// EventKind identifies an engine lifecycle event.
type EventKind int

const (
	// EventActivated fires when a store gains its first watcher.
	EventActivated EventKind = iota
	// EventDeactivated fires when a store loses its last watcher.
	EventDeactivated
	// EventScheduled fires when a change marks a store dirty.
	EventScheduled
	// EventRecomputed fires after every successful tracked recompute.
	EventRecomputed
	// EventNotified fires after watchers were told about a change.
	EventNotified
	// EventFailed fires when a derivation panicked.
	EventFailed
	// EventDestroyed fires once per store, on Destroy.
	EventDestroyed
)

var eventKindNames = [...]string{
	EventActivated:   "activated",
	EventDeactivated: "deactivated",
	EventScheduled:   "scheduled",
	EventRecomputed:  "recomputed",
	EventNotified:    "notified",
	EventFailed:      "failed",
	EventDestroyed:   "destroyed",
}

// String returns the lowercase event name.
func (k EventKind) String() string {
	if int(k) < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event describes something that happened to a derived store.
type Event struct {
	Kind     EventKind
	StoreID  uint64
	Store    string
	At       time.Time
	Duration time.Duration
	Changed  bool
	Watchers int
	Err      error
}

// MarshalJSON renders the event for the inspector feed.
func (e Event) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind       EventKind `json:"kind"`
		StoreID    uint64    `json:"storeId"`
		Store      string    `json:"store"`
		At         time.Time `json:"at"`
		DurationMS float64   `json:"durationMs,omitempty"`
		Changed    bool      `json:"changed,omitempty"`
		Watchers   int       `json:"watchers,omitempty"`
		Error      string    `json:"error,omitempty"`
	}{
		Kind:       e.Kind,
		StoreID:    e.StoreID,
		Store:      e.Store,
		At:         e.At,
		DurationMS: float64(e.Duration) / float64(time.Millisecond),
		Changed:    e.Changed,
		Watchers:   e.Watchers,
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

// Observer receives engine events. Observe runs synchronously on the engine
// goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(e Event) {
	if f != nil {
		f(e)
	}
}

type observers []Observer

func (o observers) Observe(e Event) {
	for _, obs := range o {
		obs.Observe(e)
	}
}

// Observers fans events out to every non-nil observer, in order.
func Observers(list ...Observer) Observer {
	out := make(observers, 0, len(list))
	for _, obs := range list {
		if obs != nil {
			out = append(out, obs)
		}
	}
	return out
}
