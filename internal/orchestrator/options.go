package orchestrator

import (
	"context"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// Executor runs a request on a specific worker and always returns a response.
// *dispatch.Dispatcher satisfies it.
type Executor interface {
	DoTo(ctx context.Context, workerID string, req *models.Request) *models.Response
}

// SessionStore receives final workflow results for requests bound to a session.
// *contextstore.Store satisfies it.
type SessionStore interface {
	Put(sessionID, key string, value any)
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	emitter  *EventEmitter
	logger   *DebugLogger
	sessions SessionStore
	parallel int
}

// WithEmitter sets the event emitter. Without one no events are emitted.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithSessionStore stores each workflow result under "workflow:<name>" for
// requests that carry a session id.
func WithSessionStore(s SessionStore) Option {
	return func(o *orchestratorOptions) { o.sessions = s }
}

// WithParallelLimit caps concurrent branches of one parallel run.
// Zero or less means one goroutine per branch.
func WithParallelLimit(n int) Option {
	return func(o *orchestratorOptions) { o.parallel = n }
}
