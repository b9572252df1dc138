package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/internal/config"
	"github.com/ShayCichocki/waypoint/internal/contextstore"
	"github.com/ShayCichocki/waypoint/internal/dispatch"
	"github.com/ShayCichocki/waypoint/internal/gateway"
	"github.com/ShayCichocki/waypoint/internal/orchestrator"
	"github.com/ShayCichocki/waypoint/internal/protect"
	"github.com/ShayCichocki/waypoint/internal/registry"
	"github.com/ShayCichocki/waypoint/internal/state"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// app owns every long-lived component. It is the only place they are
// constructed.
type app struct {
	cfg          *config.Config
	catalog      *config.Catalog
	db           *state.DB
	registry     *registry.Registry
	dispatcher   *dispatch.Dispatcher
	contexts     *contextstore.Store
	gateway      *gateway.Gateway
	orchestrator *orchestrator.Orchestrator
	emitter      *orchestrator.EventEmitter
	logger       *orchestrator.DebugLogger
}

// newApp wires the components described by cfg. transport carries remote
// coordination calls.
func newApp(cfg *config.Config, transport gateway.Transport) (*app, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	db, err := state.Open(cfg.StatePath())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a := &app{cfg: cfg, catalog: catalog, db: db}

	detector, err := loadDetector(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gateway = gateway.New(transport,
		gateway.WithDetector(detector),
		gateway.WithEndpoints(endpointsFromConfig(cfg)),
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithPoolSize(cfg.Gateway.PoolSize),
		gateway.WithMaxQueue(cfg.Gateway.MaxQueue),
		gateway.WithQueueStore(db),
	)
	if n, err := a.gateway.LoadQueue(); err != nil {
		a.Close()
		return nil, err
	} else if n > 0 {
		log.Printf("[waypoint] restored %d queued remote calls", n)
	}

	a.registry = registry.New()
	a.registry.SetSelectionMode(registry.SelectionMode(cfg.Dispatch.Selection))
	for _, spec := range catalog.Workers {
		worker, err := agent.New(spec, a.gateway)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("catalog: %w", err)
		}
		a.registry.RegisterAgent(worker, spec.Name)
	}

	capabilities := dispatch.DefaultCapabilities()
	for requestType, capability := range cfg.Capabilities {
		capabilities[requestType] = capability
	}
	a.dispatcher = dispatch.New(a.registry,
		dispatch.WithCapabilities(capabilities),
		dispatch.WithPoolSize(cfg.Dispatch.PoolSize),
		dispatch.WithHistory(db),
	)

	a.contexts = contextstore.New(
		contextstore.WithTTL(cfg.Context.TTL),
		contextstore.WithSweepInterval(cfg.Context.SweepInterval),
	)

	a.logger = orchestrator.NopLogger()
	if cfg.Logging.Debug {
		a.logger = orchestrator.NewDebugLoggerForDir(cfg.ProjectDir)
	}
	a.emitter = orchestrator.NewEventEmitter(orchestrator.DefaultEventBuffer)
	a.orchestrator = orchestrator.New(a.dispatcher,
		orchestrator.WithEmitter(a.emitter),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithSessionStore(a.contexts),
		orchestrator.WithParallelLimit(cfg.Dispatch.PoolSize),
	)
	for _, wf := range catalog.Workflows {
		if err := a.orchestrator.Register(wf); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Close releases components in reverse construction order.
func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.emitter != nil {
		a.emitter.Close()
	}
	if a.contexts != nil {
		a.contexts.Stop()
	}
	if a.logger != nil {
		a.logger.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("[waypoint] close database: %v", err)
		}
	}
}

// drainEvents discards workflow events until ctx ends, calling fn for each
// one when fn is non-nil.
func (a *app) drainEvents(ctx context.Context, fn func(orchestrator.WorkflowEvent)) {
	events := a.orchestrator.Events()
	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if fn != nil {
					fn(ev)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// loadDetector adds the protected_fields rules of the project config to the
// default sensitive field detector.
func loadDetector(cfg *config.Config) (*protect.Detector, error) {
	d := protect.New()
	path := config.GetProjectConfigPath(cfg.ProjectDir)
	if path == "" {
		return d, nil
	}
	if err := d.LoadConfig(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load protected fields from %s: %w", path, err)
	}
	return d, nil
}

func loadCatalog(cfg *config.Config) (*config.Catalog, error) {
	path := cfg.CatalogPath()
	if path == "" {
		return config.DefaultCatalog(), nil
	}
	return config.LoadCatalog(path)
}

// endpointsFromConfig returns the default endpoints with configured
// locations, followed by any extra configured endpoints in name order.
func endpointsFromConfig(cfg *config.Config) []models.RemoteEndpoint {
	endpoints := gateway.DefaultEndpoints()
	seen := make(map[string]bool, len(endpoints))
	for i := range endpoints {
		endpoints[i].Location = cfg.Gateway.Endpoints[endpoints[i].Name]
		seen[endpoints[i].Name] = true
	}

	var extra []string
	for name := range cfg.Gateway.Endpoints {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		endpoints = append(endpoints, models.RemoteEndpoint{Name: name, Location: cfg.Gateway.Endpoints[name]})
	}
	return endpoints
}
