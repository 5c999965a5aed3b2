package backend

import (
	"sync"
	"time"
)

// EventKind identifies an adapter lifecycle notification.
type EventKind string

const (
	EventTaskCreated    EventKind = "taskCreated"
	EventTaskUpdated    EventKind = "taskUpdated"
	EventTaskDeleted    EventKind = "taskDeleted"
	EventSubtaskCreated EventKind = "subtaskCreated"
	EventSubtaskUpdated EventKind = "subtaskUpdated"
	EventSubtaskDeleted EventKind = "subtaskDeleted"
	EventTasksSaved     EventKind = "tasksSaved"
)

// Event is an adapter lifecycle notification. Task is set for task
// events, Subtask and ParentID for subtask events; deletion events carry
// only the ids of the removed record.
type Event struct {
	Kind     EventKind
	Task     *Task
	Subtask  *Subtask
	TaskID   int
	ParentID int
	SubID    int
	Time     time.Time
}

// Handler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

// Emitter is a small observer registry. Components own their emitter and
// never hold references back to their subscribers' owners, which keeps
// the adapter/engine/façade graph acyclic.
type Emitter struct {
	mu       sync.RWMutex
	handlers []Handler
	byKind   map[EventKind][]Handler
}

// NewEmitter creates an empty observer registry.
func NewEmitter() *Emitter {
	return &Emitter{byKind: make(map[EventKind][]Handler)}
}

// Subscribe registers a handler for every event kind.
func (e *Emitter) Subscribe(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// SubscribeKind registers a handler for a single event kind.
func (e *Emitter) SubscribeKind(kind EventKind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byKind[kind] = append(e.byKind[kind], h)
}

// Emit delivers the event to all matching handlers.
func (e *Emitter) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	e.mu.RLock()
	all := e.handlers
	kinded := e.byKind[ev.Kind]
	e.mu.RUnlock()

	for _, h := range all {
		h(ev)
	}
	for _, h := range kinded {
		h(ev)
	}
}
