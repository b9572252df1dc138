package models

// HealthStatus represents the current health of a worker.
type HealthStatus string

const (
	// HealthHealthy indicates the worker accepts new requests.
	HealthHealthy HealthStatus = "healthy"
	// HealthDegraded indicates the worker is impaired and excluded from selection.
	HealthDegraded HealthStatus = "degraded"
	// HealthUnhealthy indicates the worker must not receive requests.
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Valid returns true if the status is a known value.
func (s HealthStatus) Valid() bool {
	switch s {
	case HealthHealthy, HealthDegraded, HealthUnhealthy:
		return true
	default:
		return false
	}
}

// WorkerDescriptor describes a worker known to the registry.
type WorkerDescriptor struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Name is a display name.
	Name string `json:"name"`
	// Capabilities lists the capability tags this worker serves.
	Capabilities []string `json:"capabilities"`
	// Health is the last known health of the worker.
	Health HealthStatus `json:"health"`
	// Dispatched counts every selection of this worker. It never decreases.
	Dispatched int64 `json:"dispatched"`
	// InFlight counts requests currently being processed by this worker.
	InFlight int64 `json:"in_flight"`
}

// HasCapability reports whether the worker advertises capability.
func (d WorkerDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
