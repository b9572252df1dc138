package registry

import (
	"context"
	"log"
	"sync"
	"time"
)

// RefreshHealth asks every registered agent for its health and records any
// change. Workers registered without an agent keep their stored status, as do
// workers whose health was pinned with SetHealth.
func (r *Registry) RefreshHealth() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.agent != nil {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		a, ok := r.Agent(id)
		if !ok {
			continue
		}
		status := a.Health()
		if !status.Valid() {
			continue
		}
		r.reportHealth(id, status)
	}
}

// HealthMonitor refreshes registry health on a fixed interval.
type HealthMonitor struct {
	registry *Registry
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewHealthMonitor creates a monitor for r. It does nothing until Start.
func NewHealthMonitor(r *Registry, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{registry: r, interval: interval}
}

// Start launches the refresh loop. Calling Start on a running monitor is a no-op.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.registry.RefreshHealth()
		for {
			select {
			case <-ticker.C:
				m.registry.RefreshHealth()
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("[registry] health monitor started (interval %v)", m.interval)
}

// Stop cancels the refresh loop and waits for it to exit.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}
