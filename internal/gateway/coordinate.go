package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// Coordinate calls the named endpoint. An unavailable endpoint fails fast
// with ErrUnavailable. A timeout cancels the call, marks the endpoint
// unavailable and returns ErrTimeout; any other transport error also marks
// it unavailable. A zero timeout uses the gateway default.
func (g *Gateway) Coordinate(ctx context.Context, name string, payload any, timeout time.Duration) (any, error) {
	ep, available, ok := g.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	if !available {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}

	result, err := g.call(ctx, ep, payload, timeout)
	if err != nil {
		g.recordFailure(name, err)
		return nil, err
	}
	return result, nil
}

// call runs one transport call on the bounded pool. The pool slot is held
// until the transport actually returns, even after a timeout.
func (g *Gateway) call(ctx context.Context, ep models.RemoteEndpoint, payload any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = g.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.sem.Acquire(callCtx, 1); err != nil {
		return nil, g.contextError(ctx, ep.Name, timeout, err)
	}

	type result struct {
		data any
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer g.sem.Release(1)
		data, err := g.transport.Call(callCtx, ep, payload)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if callCtx.Err() != nil {
				return nil, g.contextError(ctx, ep.Name, timeout, r.err)
			}
			return nil, fmt.Errorf("coordinate %s: %w", ep.Name, r.err)
		}
		return r.data, nil
	case <-callCtx.Done():
		return nil, g.contextError(ctx, ep.Name, timeout, callCtx.Err())
	}
}

// contextError distinguishes our own timeout from caller cancellation.
func (g *Gateway) contextError(parent context.Context, name string, timeout time.Duration, err error) error {
	if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("coordinate %s: %w", name, parent.Err())
	}
	return fmt.Errorf("%w: %s after %v", ErrTimeout, name, timeout)
}

// recordFailure marks the endpoint unavailable unless the caller canceled.
func (g *Gateway) recordFailure(name string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	reason := err.Error()
	if errors.Is(err, ErrTimeout) {
		reason = "timeout"
	}
	g.setEndpoint(name, false, reason)
}

var _ agent.Coordinator = (*Gateway)(nil)
