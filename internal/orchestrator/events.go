package orchestrator

import (
	"time"
)

// EventType represents the type of workflow event.
type EventType string

const (
	// EventWorkflowStarted indicates a workflow run has started.
	EventWorkflowStarted EventType = "workflow_started"
	// EventStepCompleted indicates a worker step returned a successful response.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a worker step returned a failed response.
	EventStepFailed EventType = "step_failed"
	// EventConflictDetected indicates parallel branches disagreed.
	EventConflictDetected EventType = "conflict_detected"
	// EventWorkflowCompleted indicates a workflow run has finished.
	EventWorkflowCompleted EventType = "workflow_completed"
)

// WorkflowEvent represents an event emitted while running a workflow.
type WorkflowEvent struct {
	// Type is the kind of event.
	Type EventType
	// Workflow is the workflow name, empty for ad hoc sequences.
	Workflow string
	// RequestID is the request that started the run.
	RequestID string
	// WorkerID is the worker of a step event.
	WorkerID string
	// Step is the zero-based position of the worker in a sequential run.
	Step int
	// Message provides additional context about the event.
	Message string
	// Success is the outcome for step and completion events.
	Success bool
	// Conflicts is the number of conflicts for conflict events.
	Conflicts int
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time for completion events.
	Duration time.Duration
}
