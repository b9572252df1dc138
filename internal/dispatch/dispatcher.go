// Package dispatch routes requests to the best registered worker and runs
// them on a bounded pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/internal/registry"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// DefaultPoolSize is the number of requests processed concurrently.
const DefaultPoolSize = 8

// ErrClosed is reported when a request arrives after Close.
var ErrClosed = errors.New("dispatcher closed")

// History receives every response the dispatcher produces.
type History interface {
	RecordDispatch(req *models.Request, resp *models.Response) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCapabilities replaces the type to capability table.
func WithCapabilities(t CapabilityTable) Option {
	return func(d *Dispatcher) { d.table = t.Clone() }
}

// WithPoolSize sets the number of concurrent requests.
func WithPoolSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.poolSize = n
		}
	}
}

// WithHistory sets a sink that records every response.
func WithHistory(h History) Option {
	return func(d *Dispatcher) { d.history = h }
}

// Dispatcher selects workers through the registry and executes requests.
type Dispatcher struct {
	registry *registry.Registry
	table    CapabilityTable
	poolSize int
	sem      *semaphore.Weighted
	history  History
	metrics  *metrics

	// ctx is canceled by Close to abort requests still waiting for a slot.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a Dispatcher over reg.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		registry: reg,
		table:    DefaultCapabilities(),
		poolSize: DefaultPoolSize,
		metrics:  newMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = semaphore.NewWeighted(int64(d.poolSize))
	return d
}

// Pending resolves to the response of an asynchronous dispatch.
type Pending struct {
	requestID string
	done      chan struct{}
	resp      *models.Response
}

// Done is closed once the response is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the response is ready or ctx ends. When ctx ends first
// a failed system response is returned; the dispatch itself keeps running.
func (p *Pending) Wait(ctx context.Context) *models.Response {
	select {
	case <-p.done:
		return p.resp
	case <-ctx.Done():
		return models.Failure(p.requestID, fmt.Sprintf("wait aborted: %v", ctx.Err()))
	}
}

// Capability returns the capability req resolves to.
func (d *Dispatcher) Capability(req *models.Request) string {
	if req.Capability != "" {
		return req.Capability
	}
	return d.table.Resolve(req.Type)
}

// Dispatch routes req to the least loaded healthy worker for its capability.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.Request) *Pending {
	return d.submit(ctx, req, "")
}

// DispatchTo routes req to a specific worker.
func (d *Dispatcher) DispatchTo(ctx context.Context, workerID string, req *models.Request) *Pending {
	return d.submit(ctx, req, workerID)
}

// Do dispatches req and waits for the response.
func (d *Dispatcher) Do(ctx context.Context, req *models.Request) *models.Response {
	return d.Dispatch(ctx, req).Wait(ctx)
}

// DoTo dispatches req to workerID and waits for the response.
func (d *Dispatcher) DoTo(ctx context.Context, workerID string, req *models.Request) *models.Response {
	return d.DispatchTo(ctx, workerID, req).Wait(ctx)
}

func (d *Dispatcher) submit(ctx context.Context, req *models.Request, workerID string) *Pending {
	p := &Pending{requestID: req.ID, done: make(chan struct{})}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		p.resp = models.Failure(req.ID, ErrClosed.Error())
		close(p.done)
		return p
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	go func() {
		defer d.wg.Done()
		defer close(p.done)
		p.resp = d.execute(ctx, req, workerID)
		if workerID == "" {
			p.resp.SetMeta(models.MetaCapability, d.Capability(req))
		}
		if d.history != nil {
			if err := d.history.RecordDispatch(req, p.resp); err != nil {
				log.Printf("[dispatch] failed to record request %s: %v", req.ID, err)
			}
		}
	}()
	return p
}

// execute acquires a pool slot and runs the request.
func (d *Dispatcher) execute(ctx context.Context, req *models.Request, workerID string) *models.Response {
	acquireCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-d.ctx.Done():
			stop()
		case <-acquireCtx.Done():
		}
	}()
	if err := d.sem.Acquire(acquireCtx, 1); err != nil {
		d.metrics.reject()
		if d.ctx.Err() != nil {
			return models.Failure(req.ID, ErrClosed.Error())
		}
		return models.Failure(req.ID, fmt.Sprintf("dispatch canceled: %v", err))
	}
	defer d.sem.Release(1)

	desc, a, failure := d.selectWorker(req, workerID)
	if failure != nil {
		d.metrics.reject()
		log.Printf("[dispatch] request %s: %s", req.ID, failure.Error)
		return failure
	}

	// Selection counts as a dispatch even if the worker then fails.
	_ = d.registry.RecordDispatch(desc.ID)
	d.registry.Begin(desc.ID)
	defer d.registry.Done(desc.ID)

	start := time.Now()
	resp, err := invoke(ctx, a, req)
	latency := time.Since(start)
	d.metrics.record(desc.ID, latency, err == nil && resp.Success)

	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && req.Timeout > 0 {
			msg = fmt.Sprintf("Agent %s timed out after %v", desc.ID, req.Timeout)
		}
		log.Printf("[dispatch] agent %s failed request %s: %s", desc.ID, req.ID, msg)
		failed := models.Failure(req.ID, msg)
		failed.Latency = latency
		failed.SetMeta(models.MetaAgent, desc.ID)
		return failed
	}

	if resp.RequestID == "" {
		resp.RequestID = req.ID
	}
	if resp.AgentID == "" {
		resp.AgentID = desc.ID
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}
	resp.Latency = latency
	return resp
}

// selectWorker resolves the target worker or returns a failed response.
func (d *Dispatcher) selectWorker(req *models.Request, workerID string) (models.WorkerDescriptor, agent.Agent, *models.Response) {
	var (
		desc models.WorkerDescriptor
		ok   bool
	)
	if workerID != "" {
		desc, ok = d.registry.Get(workerID)
		if !ok {
			return desc, nil, models.Failure(req.ID, fmt.Sprintf("Agent not found: %s", workerID))
		}
		if desc.Health != models.HealthHealthy {
			return desc, nil, models.Failure(req.ID, fmt.Sprintf("Agent %s is not healthy", workerID))
		}
	} else {
		capability := d.Capability(req)
		desc, ok = d.registry.SelectBest(capability)
		if !ok {
			return desc, nil, models.Failure(req.ID, fmt.Sprintf("No suitable agent found for capability: %s", capability))
		}
	}

	a, ok := d.registry.Agent(desc.ID)
	if !ok {
		return desc, nil, models.Failure(req.ID, fmt.Sprintf("Agent not found: %s", desc.ID))
	}
	return desc, a, nil
}

// invoke calls the agent, converting panics into errors and enforcing the
// request timeout even when the agent ignores its context.
func invoke(ctx context.Context, a agent.Agent, req *models.Request) (*models.Response, error) {
	if req.Timeout <= 0 {
		return call(ctx, a, req)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	type result struct {
		resp *models.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := call(ctx, a, req)
		ch <- result{resp, err}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func call(ctx context.Context, a agent.Agent, req *models.Request) (resp *models.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("agent panic: %v", r)
		}
	}()
	resp, err = a.Process(ctx, req)
	if err == nil && resp == nil {
		resp = &models.Response{Success: true}
	}
	return resp, err
}

// Metrics returns per-worker latency and registry statistics.
func (d *Dispatcher) Metrics() Snapshot {
	workers, rejected := d.metrics.snapshot()
	return Snapshot{
		Workers:  workers,
		Registry: d.registry.Stats(),
		Rejected: rejected,
	}
}

// Close rejects new requests, aborts those still waiting for a slot and
// waits for running requests to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
