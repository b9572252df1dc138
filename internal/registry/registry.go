// Package registry tracks known workers, their capabilities, health and load,
// and selects the best worker for a capability.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

var (
	// ErrNotFound indicates the worker is not registered.
	ErrNotFound = errors.New("worker not found")
	// ErrInvalidHealth indicates an unknown health status.
	ErrInvalidHealth = errors.New("invalid health status")
)

// SelectionMode picks which counter orders candidates.
type SelectionMode string

const (
	// SelectHistorical orders by total dispatches ever made to the worker.
	SelectHistorical SelectionMode = "historical"
	// SelectInFlight orders by requests currently being processed, then by
	// total dispatches.
	SelectInFlight SelectionMode = "in_flight"
)

// entry is the registry's record for one worker.
type entry struct {
	id     string
	name   string
	caps   []string
	health models.HealthStatus
	agent  agent.Agent
	seq    uint64
	// pinned is set by SetHealth; health refreshes leave a pinned status alone.
	pinned bool

	dispatched atomic.Int64
	inFlight   atomic.Int64
}

func (e *entry) descriptor() models.WorkerDescriptor {
	return models.WorkerDescriptor{
		ID:           e.id,
		Name:         e.name,
		Capabilities: append([]string(nil), e.caps...),
		Health:       e.health,
		Dispatched:   e.dispatched.Load(),
		InFlight:     e.inFlight.Load(),
	}
}

// Registry holds workers keyed by ID.
// It is safe for concurrent use; counters are atomic so dispatch accounting
// never takes the write lock.
type Registry struct {
	entries map[string]*entry
	nextSeq uint64
	mode    SelectionMode
	// mu protects entries, nextSeq and each entry's non-atomic fields.
	mu sync.RWMutex
}

// New creates an empty Registry that selects by historical load.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		mode:    SelectHistorical,
	}
}

// SetSelectionMode changes how FindByCapability orders candidates.
// Unknown modes fall back to SelectHistorical.
func (r *Registry) SetSelectionMode(mode SelectionMode) {
	if mode != SelectInFlight {
		mode = SelectHistorical
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// Register adds or overwrites a worker. Counters start at zero. A
// descriptor without an ID is ignored. Overwriting keeps the worker's
// original position for tie-breaking.
func (r *Registry) Register(desc models.WorkerDescriptor, a agent.Agent) {
	if desc.ID == "" {
		log.Printf("[registry] ignoring worker without id (name=%q)", desc.Name)
		return
	}
	health := desc.Health
	if !health.Valid() {
		health = models.HealthHealthy
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		id:     desc.ID,
		name:   desc.Name,
		caps:   append([]string(nil), desc.Capabilities...),
		health: health,
		agent:  a,
	}
	if old, ok := r.entries[desc.ID]; ok {
		e.seq = old.seq
	} else {
		e.seq = r.nextSeq
		r.nextSeq++
	}
	r.entries[desc.ID] = e
}

// RegisterAgent registers a with a descriptor derived from its contract.
func (r *Registry) RegisterAgent(a agent.Agent, name string) {
	if a == nil {
		return
	}
	if name == "" {
		name = a.ID()
	}
	r.Register(models.WorkerDescriptor{
		ID:           a.ID(),
		Name:         name,
		Capabilities: a.Capabilities(),
		Health:       a.Health(),
	}, a)
}

// Deregister removes a worker and its counters. Unknown IDs are ignored.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (models.WorkerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return models.WorkerDescriptor{}, false
	}
	return e.descriptor(), true
}

// Agent returns the processing contract registered for id.
func (r *Registry) Agent(id string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.agent == nil {
		return nil, false
	}
	return e.agent, true
}

// List returns all descriptors in registration order.
func (r *Registry) List() []models.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := r.sortedLocked(func(*entry) bool { return true }, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]models.WorkerDescriptor, len(ordered))
	for i, e := range ordered {
		out[i] = e.descriptor()
	}
	return out
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// FindByCapability returns the healthy workers advertising capability,
// least loaded first. Ties keep registration order.
func (r *Registry) FindByCapability(capability string) []models.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mode := r.mode
	match := func(e *entry) bool {
		return e.health == models.HealthHealthy && slices.Contains(e.caps, capability)
	}
	ordered := r.sortedLocked(match, func(a, b *entry) int {
		if mode == SelectInFlight {
			if c := cmp.Compare(a.inFlight.Load(), b.inFlight.Load()); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(a.dispatched.Load(), b.dispatched.Load()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]models.WorkerDescriptor, len(ordered))
	for i, e := range ordered {
		out[i] = e.descriptor()
	}
	return out
}

// SelectBest returns the least loaded healthy worker for capability.
func (r *Registry) SelectBest(capability string) (models.WorkerDescriptor, bool) {
	candidates := r.FindByCapability(capability)
	if len(candidates) == 0 {
		return models.WorkerDescriptor{}, false
	}
	return candidates[0], true
}

// RecordDispatch increments the worker's historical dispatch counter.
// The counter is never decremented.
func (r *Registry) RecordDispatch(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.dispatched.Add(1)
	return nil
}

// Begin marks a request as in flight on the worker.
func (r *Registry) Begin(id string) {
	if e, err := r.lookup(id); err == nil {
		e.inFlight.Add(1)
	}
}

// Done marks an in-flight request on the worker as finished.
func (r *Registry) Done(id string) {
	if e, err := r.lookup(id); err == nil {
		e.inFlight.Add(-1)
	}
}

// SetHealth updates a worker's health and pins it: RefreshHealth will not
// replace a pinned status until ClearHealthOverride is called. Counters are
// preserved.
func (r *Registry) SetHealth(id string, status models.HealthStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidHealth, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.pinned = true
	r.applyHealth(e, status)
	return nil
}

// ClearHealthOverride unpins a worker's health so the next refresh takes the
// agent's own report again.
func (r *Registry) ClearHealthOverride(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.pinned = false
	return nil
}

// reportHealth records an agent's self-reported health unless the status is
// pinned or the worker is gone.
func (r *Registry) reportHealth(id string, status models.HealthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.pinned {
		return
	}
	r.applyHealth(e, status)
}

// applyHealth must be called with r.mu held.
func (r *Registry) applyHealth(e *entry, status models.HealthStatus) {
	if e.health != status {
		log.Printf("[registry] worker %s: %s -> %s", e.id, e.health, status)
		e.health = status
	}
}

// Stats summarizes registry contents.
type Stats struct {
	Total      int                         `json:"total"`
	ByHealth   map[models.HealthStatus]int `json:"by_health"`
	Dispatched int64                       `json:"dispatched"`
	InFlight   int64                       `json:"in_flight"`
}

// Stats returns a point-in-time summary.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Total:    len(r.entries),
		ByHealth: make(map[models.HealthStatus]int),
	}
	for _, e := range r.entries {
		s.ByHealth[e.health]++
		s.Dispatched += e.dispatched.Load()
		s.InFlight += e.inFlight.Load()
	}
	return s
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// sortedLocked filters and sorts entries. Caller must hold r.mu.
func (r *Registry) sortedLocked(keep func(*entry) bool, compare func(a, b *entry) int) []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, compare)
	return out
}
