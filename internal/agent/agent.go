// Package agent defines the worker contract consumed by the coordination core
// and the closed set of built-in worker kinds registered at start-up.
package agent

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// ErrUnknownKind is returned by New for a kind outside the built-in set.
var ErrUnknownKind = errors.New("unknown agent kind")

// Agent is the processing contract every worker implements.
// The coordination core only ever sees this interface.
type Agent interface {
	// ID returns the unique worker identifier.
	ID() string
	// Capabilities returns the capability tags the worker serves.
	Capabilities() []string
	// Health returns the worker's current self-reported health.
	Health() models.HealthStatus
	// Process handles a request. A returned error is reported verbatim
	// by the dispatcher.
	Process(ctx context.Context, req *models.Request) (*models.Response, error)
}

// base carries the identity and health shared by the built-in kinds.
type base struct {
	id     string
	caps   []string
	health atomic.Value // models.HealthStatus
}

func (b *base) init(id string, caps []string) {
	b.id = id
	b.caps = append([]string(nil), caps...)
	b.health.Store(models.HealthHealthy)
}

func (b *base) ID() string { return b.id }

func (b *base) Capabilities() []string {
	return append([]string(nil), b.caps...)
}

func (b *base) Health() models.HealthStatus {
	return b.health.Load().(models.HealthStatus)
}

// SetHealth changes the health the agent reports.
func (b *base) SetHealth(status models.HealthStatus) {
	b.health.Store(status)
}

// respond builds a successful response from this agent.
func (b *base) respond(req *models.Request, data any) *models.Response {
	return &models.Response{
		RequestID: req.ID,
		AgentID:   b.id,
		Success:   true,
		Data:      data,
	}
}
