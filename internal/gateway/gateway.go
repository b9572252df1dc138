// Package gateway coordinates with external counterparts over a Transport.
//
// Each endpoint carries its own availability. A failed or timed-out call
// marks its endpoint unavailable; later calls fail fast and the coordination
// operations answer from a local fallback until the endpoint recovers through
// a successful queue replay, a manual SetAvailable, or a reset signal.
package gateway

import (
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/waypoint/internal/protect"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// Endpoint names.
const (
	EndpointRequirements = "requirements"
	EndpointArchitecture = "architecture"
	EndpointSecurity     = "security"
	EndpointContracts    = "contracts"
	EndpointBridge       = "bridge"
	EndpointTesting      = "testing"
)

const (
	// DefaultTimeout bounds a remote call when the caller passes no timeout.
	DefaultTimeout = 5 * time.Second
	// DefaultPoolSize is the number of concurrent remote calls.
	DefaultPoolSize = 4
	// FallbackCapability is the declared score of locally computed results.
	FallbackCapability = 0.80
	// RemoteCapability is the score of results returned by a counterpart.
	RemoteCapability = 1.0
	// DefaultMaxQueue bounds the replay queue.
	DefaultMaxQueue = 256
)

var (
	// ErrUnavailable is returned without calling out when the endpoint is down.
	ErrUnavailable = errors.New("remote coordination unavailable")
	// ErrTimeout is returned when a call exceeds its timeout.
	ErrTimeout = errors.New("remote coordination timed out")
	// ErrUnknownEndpoint is returned for names outside the configured set.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrNoLocation is returned for endpoints without a configured location.
	ErrNoLocation = errors.New("endpoint has no location")
	// ErrQueueFull is returned by Enqueue once the replay queue is at capacity.
	ErrQueueFull = errors.New("replay queue full")
)

// DefaultEndpoints returns the six standard counterparts with empty locations.
func DefaultEndpoints() []models.RemoteEndpoint {
	return []models.RemoteEndpoint{
		{Name: EndpointRequirements, Capabilities: []string{"requirements-analysis"}},
		{Name: EndpointArchitecture, Capabilities: []string{"architecture-review"}},
		{Name: EndpointSecurity, Capabilities: []string{"security-review"}},
		{Name: EndpointContracts, Capabilities: []string{"api-contract"}},
		{Name: EndpointBridge, Capabilities: []string{"frontend-backend-bridge"}},
		{Name: EndpointTesting, Capabilities: []string{"test-generation"}},
	}
}

// endpointState is the availability state machine of one endpoint.
type endpointState struct {
	endpoint  models.RemoteEndpoint
	available bool
	reason    string
	changedAt time.Time
}

// EndpointStatus is a snapshot of one endpoint.
type EndpointStatus struct {
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEndpoints replaces the default endpoint set.
func WithEndpoints(endpoints []models.RemoteEndpoint) Option {
	return func(g *Gateway) { g.initial = endpoints }
}

// WithTimeout sets the default call timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithPoolSize bounds concurrent remote calls.
func WithPoolSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.poolSize = n
		}
	}
}

// WithDetector sets the sensitive field detector used by the local
// security fallback.
func WithDetector(d *protect.Detector) Option {
	return func(g *Gateway) {
		if d != nil {
			g.detector = d
		}
	}
}

// WithMaxQueue bounds the number of queued calls.
func WithMaxQueue(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxQueue = n
		}
	}
}

// WithQueueStore persists queued calls.
func WithQueueStore(s QueueStore) Option {
	return func(g *Gateway) { g.store = s }
}

// Gateway is the remote coordination gateway.
type Gateway struct {
	transport Transport
	timeout   time.Duration
	poolSize  int
	sem       *semaphore.Weighted
	store     QueueStore
	detector  *protect.Detector
	initial   []models.RemoteEndpoint

	mu        sync.RWMutex
	endpoints map[string]*endpointState
	order     []string

	qmu      sync.Mutex
	queue    []models.QueuedCall
	maxQueue int
}

// New creates a Gateway with every endpoint available.
func New(t Transport, opts ...Option) *Gateway {
	g := &Gateway{
		transport: t,
		timeout:   DefaultTimeout,
		poolSize:  DefaultPoolSize,
		maxQueue:  DefaultMaxQueue,
		initial:   DefaultEndpoints(),
		detector:  protect.New(),
		endpoints: make(map[string]*endpointState),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.sem = semaphore.NewWeighted(int64(g.poolSize))

	now := time.Now()
	for _, ep := range g.initial {
		if _, dup := g.endpoints[ep.Name]; dup || ep.Name == "" {
			continue
		}
		g.endpoints[ep.Name] = &endpointState{endpoint: ep, available: true, changedAt: now}
		g.order = append(g.order, ep.Name)
	}
	g.initial = nil
	return g
}

// Endpoints returns the status of every endpoint in configuration order.
func (g *Gateway) Endpoints() []EndpointStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]EndpointStatus, 0, len(g.order))
	for _, name := range g.order {
		st := g.endpoints[name]
		out = append(out, EndpointStatus{
			Name:      name,
			Location:  st.endpoint.Location,
			Available: st.available,
			Reason:    st.reason,
			ChangedAt: st.changedAt,
		})
	}
	return out
}

// Available reports whether every endpoint is available.
func (g *Gateway) Available() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, st := range g.endpoints {
		if !st.available {
			return false
		}
	}
	return true
}

// EndpointAvailable reports whether the named endpoint is available.
func (g *Gateway) EndpointAvailable(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.endpoints[name]
	return ok && st.available
}

// anyAvailable reports whether at least one endpoint is available.
func (g *Gateway) anyAvailable() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, st := range g.endpoints {
		if st.available {
			return true
		}
	}
	return false
}

// SetAvailable flips every endpoint at once.
func (g *Gateway) SetAvailable(available bool) {
	g.mu.RLock()
	names := append([]string(nil), g.order...)
	g.mu.RUnlock()
	for _, name := range names {
		g.setEndpoint(name, available, "manual override")
	}
}

// SetEndpointAvailable flips one endpoint. It returns ErrUnknownEndpoint for
// names outside the configured set.
func (g *Gateway) SetEndpointAvailable(name string, available bool) error {
	if !g.setEndpoint(name, available, "manual override") {
		return ErrUnknownEndpoint
	}
	return nil
}

// setEndpoint records a state change, logging real transitions. It reports
// whether the endpoint exists.
func (g *Gateway) setEndpoint(name string, available bool, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.endpoints[name]
	if !ok {
		return false
	}
	if st.available == available {
		return true
	}
	log.Printf("[gateway] endpoint %s: %s -> %s (%s)", name, stateName(st.available), stateName(available), reason)
	st.available = available
	st.reason = reason
	st.changedAt = time.Now()
	return true
}

func (g *Gateway) lookup(name string) (models.RemoteEndpoint, bool, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.endpoints[name]
	if !ok {
		return models.RemoteEndpoint{}, false, false
	}
	return st.endpoint, st.available, true
}

func stateName(available bool) string {
	if available {
		return "available"
	}
	return "unavailable"
}
