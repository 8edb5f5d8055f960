package manager

import (
	"context"
	"time"
)

// EventType identifies one point in a graph's lifecycle that an Observer
// can be notified about.
type EventType string

const (
	// EventGraphStart fires once per graph, after its worker process has
	// been spawned.
	EventGraphStart EventType = "graph_start"
	// EventGraphEnd fires once per graph, after its worker process has
	// exited; Err carries the worker's exit error, nil on a clean exit.
	EventGraphEnd EventType = "graph_end"
)

// Event carries everything an Observer needs about one lifecycle
// transition. Node-level activity happens in the worker's own process
// and never crosses back to the Manager, so events are graph-grained.
type Event struct {
	Type      EventType
	Timestamp time.Time

	GraphID string

	Elapsed time.Duration
	Err     error
}

// Observer lets a library consumer watch a Manager's graphs without
// coupling to its supervision loop; the Manager notifies every registered
// Observer synchronously and ignores panics from it (a misbehaving
// observer must not take a graph down).
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// observerSet fans an event out to every registered Observer in
// registration order.
type observerSet struct {
	observers []Observer
}

func (s *observerSet) Register(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *observerSet) emit(ctx context.Context, event Event) {
	for _, o := range s.observers {
		func() {
			defer func() { _ = recover() }()
			o.OnEvent(ctx, event)
		}()
	}
}
