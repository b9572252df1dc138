package agent

import (
	"context"
	"maps"
	"time"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// ProcessFunc is the signature wrapped by Func.
type ProcessFunc func(ctx context.Context, req *models.Request) (*models.Response, error)

// Func adapts a plain function to the Agent contract.
type Func struct {
	base
	fn ProcessFunc
}

// NewFunc creates a Func agent.
func NewFunc(id string, caps []string, fn ProcessFunc) *Func {
	f := &Func{fn: fn}
	f.init(id, caps)
	return f
}

// Process calls the wrapped function. A nil response from the function is
// turned into an empty successful response.
func (f *Func) Process(ctx context.Context, req *models.Request) (*models.Response, error) {
	resp, err := f.fn(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = f.respond(req, nil)
	}
	if resp.AgentID == "" {
		resp.AgentID = f.id
	}
	if resp.RequestID == "" {
		resp.RequestID = req.ID
	}
	return resp, nil
}

// Echo answers with the request it received. Useful for wiring checks and
// for workflows whose steps only accumulate context.
type Echo struct {
	base
}

// NewEcho creates an Echo agent.
func NewEcho(id string, caps []string) *Echo {
	e := &Echo{}
	e.init(id, caps)
	return e
}

// Process returns the request type, payload and context as data.
func (e *Echo) Process(ctx context.Context, req *models.Request) (*models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.respond(req, map[string]any{
		"agent":   e.id,
		"type":    req.Type,
		"payload": req.Payload,
		"context": maps.Clone(req.Context),
	}), nil
}

// Static answers every request with a fixed data map.
type Static struct {
	base
	data map[string]any
}

// NewStatic creates a Static agent.
func NewStatic(id string, caps []string, data map[string]any) *Static {
	s := &Static{data: maps.Clone(data)}
	s.init(id, caps)
	return s
}

// Process returns a copy of the configured data.
func (s *Static) Process(ctx context.Context, req *models.Request) (*models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.respond(req, maps.Clone(s.data)), nil
}

// Coordinator forwards a payload to a named remote endpoint.
// The gateway satisfies this interface.
type Coordinator interface {
	Coordinate(ctx context.Context, endpoint string, payload any, timeout time.Duration) (any, error)
}

// Remote serves its capabilities by forwarding to a remote endpoint.
type Remote struct {
	base
	endpoint    string
	timeout     time.Duration
	coordinator Coordinator
}

// NewRemote creates a Remote agent bound to endpoint.
func NewRemote(id string, caps []string, endpoint string, timeout time.Duration, c Coordinator) *Remote {
	r := &Remote{endpoint: endpoint, timeout: timeout, coordinator: c}
	r.init(id, caps)
	return r
}

// Process sends the request payload and context to the endpoint.
func (r *Remote) Process(ctx context.Context, req *models.Request) (*models.Response, error) {
	timeout := r.timeout
	if req.Timeout > 0 && (timeout == 0 || req.Timeout < timeout) {
		timeout = req.Timeout
	}
	out, err := r.coordinator.Coordinate(ctx, r.endpoint, map[string]any{
		"type":    req.Type,
		"payload": req.Payload,
		"context": req.Context,
	}, timeout)
	if err != nil {
		return nil, err
	}
	return r.respond(req, out), nil
}

// Endpoint returns the endpoint name this agent forwards to.
func (r *Remote) Endpoint() string { return r.endpoint }

// Compile-time verification that the built-in kinds implement Agent.
var (
	_ Agent = (*Func)(nil)
	_ Agent = (*Echo)(nil)
	_ Agent = (*Static)(nil)
	_ Agent = (*Remote)(nil)
)
