package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// QueueStore persists queued calls across restarts.
type QueueStore interface {
	SaveQueuedCall(call models.QueuedCall) error
	DeleteQueuedCall(id string) error
	LoadQueuedCalls() ([]models.QueuedCall, error)
}

// Enqueue appends a call for later replay and returns it. Only calls that a
// replay could deliver are accepted: the endpoint must be known and have a
// location, and the queue must be below its capacity.
func (g *Gateway) Enqueue(name string, payload any) (models.QueuedCall, error) {
	ep, _, known := g.lookup(name)
	if !known {
		return models.QueuedCall{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	if ep.Location == "" {
		return models.QueuedCall{}, fmt.Errorf("%w: %s", ErrNoLocation, name)
	}

	call := models.QueuedCall{
		ID:         uuid.New().String(),
		Endpoint:   name,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	g.qmu.Lock()
	if len(g.queue) >= g.maxQueue {
		g.qmu.Unlock()
		return models.QueuedCall{}, fmt.Errorf("%w (%d calls)", ErrQueueFull, g.maxQueue)
	}
	g.queue = append(g.queue, call)
	g.qmu.Unlock()

	if g.store != nil {
		if err := g.store.SaveQueuedCall(call); err != nil {
			log.Printf("[gateway] persist queued call %s: %v", call.ID, err)
		}
	}
	return call, nil
}

// QueueLen returns the number of queued calls.
func (g *Gateway) QueueLen() int {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	return len(g.queue)
}

// Queue returns a copy of the queued calls in FIFO order.
func (g *Gateway) Queue() []models.QueuedCall {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	return append([]models.QueuedCall(nil), g.queue...)
}

// LoadQueue replaces the in-memory queue with the persisted one.
func (g *Gateway) LoadQueue() (int, error) {
	if g.store == nil {
		return 0, nil
	}
	calls, err := g.store.LoadQueuedCalls()
	if err != nil {
		return 0, fmt.Errorf("load queued calls: %w", err)
	}

	g.qmu.Lock()
	g.queue = calls
	g.qmu.Unlock()
	return len(calls), nil
}

// DrainQueue replays queued calls in FIFO order. It does nothing while every
// endpoint is unavailable. Calls whose endpoint is gone or has lost its
// location are dropped. A replay goes out even if its endpoint is marked
// unavailable, acting as a recovery probe: success marks the endpoint
// available, failure marks it unavailable, puts the call back at the front
// and stops the drain. It returns the number of calls replayed.
func (g *Gateway) DrainQueue(ctx context.Context) (int, error) {
	if !g.anyAvailable() {
		return 0, nil
	}

	drained := 0
	for {
		call, ok := g.pop()
		if !ok {
			return drained, nil
		}

		ep, _, known := g.lookup(call.Endpoint)
		if !known || ep.Location == "" {
			log.Printf("[gateway] dropping undeliverable queued call %s for endpoint %s", call.ID, call.Endpoint)
			g.forget(call)
			continue
		}

		if _, err := g.call(ctx, ep, call.Payload, 0); err != nil {
			g.pushFront(call)
			g.recordFailure(call.Endpoint, err)
			return drained, fmt.Errorf("replay %s: %w", call.ID, err)
		}

		g.setEndpoint(call.Endpoint, true, "replay succeeded")
		g.forget(call)
		drained++
	}
}

func (g *Gateway) pop() (models.QueuedCall, bool) {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	if len(g.queue) == 0 {
		return models.QueuedCall{}, false
	}
	call := g.queue[0]
	g.queue = g.queue[1:]
	return call, true
}

func (g *Gateway) pushFront(call models.QueuedCall) {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	g.queue = append([]models.QueuedCall{call}, g.queue...)
}

func (g *Gateway) forget(call models.QueuedCall) {
	if g.store == nil {
		return
	}
	if err := g.store.DeleteQueuedCall(call.ID); err != nil {
		log.Printf("[gateway] remove queued call %s: %v", call.ID, err)
	}
}
