package dispatch

import (
	"sync"
	"time"

	"github.com/ShayCichocki/waypoint/internal/registry"
)

// WorkerMetrics holds latency figures for one worker.
type WorkerMetrics struct {
	LastLatency    time.Duration `json:"last_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
}

// Snapshot is a read-only view of dispatcher metrics.
type Snapshot struct {
	Workers  map[string]WorkerMetrics `json:"workers"`
	Registry registry.Stats           `json:"registry"`
	Rejected int64                    `json:"rejected"`
}

// metrics accumulates per-worker latency.
type metrics struct {
	mu       sync.Mutex
	workers  map[string]*WorkerMetrics
	rejected int64
}

func newMetrics() *metrics {
	return &metrics{workers: make(map[string]*WorkerMetrics)}
}

// record stores a latency sample. The running average halves towards each
// new sample: avg = (avg + latency) / 2. The first sample sets it directly.
func (m *metrics) record(workerID string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID]
	if !ok {
		w = &WorkerMetrics{AverageLatency: latency}
		m.workers[workerID] = w
	} else {
		w.AverageLatency = (w.AverageLatency + latency) / 2
	}
	w.LastLatency = latency
	if success {
		w.Successes++
	} else {
		w.Failures++
	}
}

// reject counts a request that never reached a worker.
func (m *metrics) reject() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *metrics) snapshot() (map[string]WorkerMetrics, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]WorkerMetrics, len(m.workers))
	for id, w := range m.workers {
		out[id] = *w
	}
	return out, m.rejected
}
