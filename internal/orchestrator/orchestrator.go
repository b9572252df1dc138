package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// SessionKeyPrefix prefixes the context store key of a workflow result.
const SessionKeyPrefix = "workflow:"

// Orchestrator runs sequential, parallel and consensus workflows on top of
// an Executor.
type Orchestrator struct {
	exec     Executor
	emitter  *EventEmitter
	logger   *DebugLogger
	sessions SessionStore
	parallel int

	mu        sync.RWMutex
	workflows map[string]Workflow
	order     []string
}

// New creates an Orchestrator that dispatches through exec.
func New(exec Executor, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Orchestrator{
		exec:      exec,
		emitter:   o.emitter,
		logger:    logger,
		sessions:  o.sessions,
		parallel:  o.parallel,
		workflows: make(map[string]Workflow),
	}
}

// Events returns the event channel, or nil when no emitter is configured.
func (o *Orchestrator) Events() <-chan WorkflowEvent {
	if o.emitter == nil {
		return nil
	}
	return o.emitter.Events()
}

// Register adds a workflow. Names are registered once.
func (o *Orchestrator) Register(wf Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.workflows[wf.Name]; exists {
		return fmt.Errorf("%w: %s: already registered", ErrInvalidWorkflow, wf.Name)
	}
	o.workflows[wf.Name] = wf.clone()
	o.order = append(o.order, wf.Name)
	o.logger.Log("registered workflow %s (%s, %d workers)", wf.Name, wf.Mode, len(wf.Workers))
	return nil
}

// Workflow returns a copy of the named workflow.
func (o *Orchestrator) Workflow(name string) (Workflow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	wf, ok := o.workflows[name]
	if !ok {
		return Workflow{}, false
	}
	return wf.clone(), true
}

// Workflows returns every registered workflow in registration order.
func (o *Orchestrator) Workflows() []Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Workflow, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.workflows[name].clone())
	}
	return out
}

// Run executes a registered workflow. The only error is ErrUnknownWorkflow;
// worker failures are reported on the response.
func (o *Orchestrator) Run(ctx context.Context, name string, req *models.Request) (*models.Response, error) {
	wf, ok := o.Workflow(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	start := time.Now()
	o.emit(WorkflowEvent{Type: EventWorkflowStarted, Workflow: name, RequestID: req.ID, Message: string(wf.Mode)})
	o.logger.Log("workflow %s started: request=%s mode=%s workers=%v", name, req.ID, wf.Mode, wf.Workers)

	var resp *models.Response
	switch wf.Mode {
	case ModeSequential:
		resp = o.runSequence(ctx, name, wf.Workers, req, wf.FailurePolicy)
	case ModeParallel:
		resp, _ = o.runParallel(ctx, name, wf.Workers, req)
	case ModeConsensus:
		_, branches := o.runParallel(ctx, name, wf.Workers, req)
		resp = consensus(req, wf.Workers, branches, wf.Priorities)
		if conflicts, ok := resp.Metadata[models.MetaConflicts].([]models.Conflict); ok {
			o.emit(WorkflowEvent{Type: EventConflictDetected, Workflow: name, RequestID: req.ID, Conflicts: len(conflicts)})
			o.logger.Log("workflow %s: %d conflicts", name, len(conflicts))
		}
	}
	resp.SetMeta(models.MetaWorkflow, name)

	if req.SessionID != "" && o.sessions != nil {
		o.sessions.Put(req.SessionID, SessionKeyPrefix+name, resp.Data)
	}

	elapsed := time.Since(start)
	o.emit(WorkflowEvent{
		Type:      EventWorkflowCompleted,
		Workflow:  name,
		RequestID: req.ID,
		Success:   resp.Success,
		Message:   resp.Error,
		Duration:  elapsed,
	})
	o.logger.Log("workflow %s completed: success=%v duration=%v", name, resp.Success, elapsed)
	return resp, nil
}

// RunSequence runs workers in order. Each step's request carries the
// original context merged with the map data of every earlier step, later
// keys winning. With ContinueOnFailure a failed step does not stop the
// sequence and the last step's response is returned. With ShortCircuit the
// first failed response is returned.
func (o *Orchestrator) RunSequence(ctx context.Context, workerIDs []string, req *models.Request, policy FailurePolicy) *models.Response {
	return o.runSequence(ctx, "", workerIDs, req, policy)
}

func (o *Orchestrator) runSequence(ctx context.Context, name string, workerIDs []string, req *models.Request, policy FailurePolicy) *models.Response {
	policy = policy.orDefault()
	if len(workerIDs) == 0 {
		return models.Failure(req.ID, "Workflow has no workers")
	}

	current := req
	var last *models.Response
	for i, id := range workerIDs {
		if err := ctx.Err(); err != nil {
			last = models.Failure(req.ID, fmt.Sprintf("workflow canceled: %v", err))
			break
		}

		resp := o.exec.DoTo(ctx, id, current)
		o.step(name, req.ID, id, i, resp)
		last = resp

		if !resp.Success && policy == ShortCircuit {
			o.logger.Log("sequence %s: short-circuit at step %d (%s)", name, i, id)
			break
		}
		if data, ok := resp.DataMap(); ok {
			current = current.WithContext(data)
		}
	}

	last.SetMeta(models.MetaWorkers, append([]string(nil), workerIDs...))
	last.SetMeta(models.MetaPolicy, string(policy))
	return last
}

// RunParallel sends req to every worker concurrently and waits for all of
// them. The merged response maps worker id to data and succeeds only if
// every branch succeeded. Branch responses are kept under MetaBranches.
func (o *Orchestrator) RunParallel(ctx context.Context, workerIDs []string, req *models.Request) *models.Response {
	resp, _ := o.runParallel(ctx, "", workerIDs, req)
	return resp
}

func (o *Orchestrator) runParallel(ctx context.Context, name string, workerIDs []string, req *models.Request) (*models.Response, []*models.Response) {
	if len(workerIDs) == 0 {
		return models.Failure(req.ID, "Workflow has no workers"), nil
	}

	branches := make([]*models.Response, len(workerIDs))
	var g errgroup.Group
	if o.parallel > 0 {
		g.SetLimit(o.parallel)
	}
	for i, id := range workerIDs {
		g.Go(func() error {
			branches[i] = o.exec.DoTo(ctx, id, req)
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range workerIDs {
		o.step(name, req.ID, id, i, branches[i])
	}
	return merge(req, workerIDs, branches), branches
}

// merge combines branch responses keyed by worker id.
func merge(req *models.Request, workerIDs []string, branches []*models.Response) *models.Response {
	data := make(map[string]any, len(workerIDs))
	success := true
	for i, id := range workerIDs {
		data[id] = branches[i].Data
		success = success && branches[i].Success
	}

	resp := &models.Response{
		RequestID: req.ID,
		AgentID:   models.SystemAgentID,
		Success:   success,
		Data:      data,
		Timestamp: time.Now(),
	}
	if !success {
		resp.Error = "one or more branches failed"
	}
	resp.SetMeta(models.MetaWorkers, append([]string(nil), workerIDs...))
	resp.SetMeta(models.MetaBranches, branches)
	return resp
}

func (o *Orchestrator) step(workflow, requestID, workerID string, i int, resp *models.Response) {
	ev := WorkflowEvent{
		Type:      EventStepCompleted,
		Workflow:  workflow,
		RequestID: requestID,
		WorkerID:  workerID,
		Step:      i,
		Success:   resp.Success,
	}
	if !resp.Success {
		ev.Type = EventStepFailed
		ev.Message = resp.Error
		o.logger.Log("step %d (%s) failed: %s", i, workerID, resp.Error)
	} else {
		o.logger.Log("step %d (%s) completed in %v", i, workerID, resp.Latency)
	}
	o.emit(ev)
}

func (o *Orchestrator) emit(ev WorkflowEvent) {
	if o.emitter != nil {
		o.emitter.Emit(ev)
	}
}
