package orchestrator

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultEventBuffer is the event channel capacity used by New.
const DefaultEventBuffer = 64

// emitTimeout is how long Emit waits on a full channel before dropping.
const emitTimeout = 100 * time.Millisecond

// EventEmitter delivers workflow events to a single subscriber.
// Events are dropped, not blocked on, when the subscriber falls behind.
type EventEmitter struct {
	mu           sync.RWMutex
	events       chan WorkflowEvent
	closed       bool
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &EventEmitter{
		events: make(chan WorkflowEvent, bufferSize),
	}
}

// Emit sends an event, stamping it when Timestamp is unset.
// Emitting on a nil or closed emitter is a no-op.
func (e *EventEmitter) Emit(event WorkflowEvent) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(emitTimeout):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan WorkflowEvent {
	return e.events
}

// Close closes the events channel. Safe to call more than once.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
