package orchestrator

import (
	"errors"
	"fmt"
)

// Mode is how a workflow runs its workers.
type Mode string

const (
	// ModeSequential runs workers in order, chaining context between steps.
	ModeSequential Mode = "sequential"
	// ModeParallel fans the request out and merges every branch.
	ModeParallel Mode = "parallel"
	// ModeConsensus fans out like ModeParallel and then builds a consensus
	// response that reports conflicts between branches.
	ModeConsensus Mode = "consensus"
)

// FailurePolicy decides what a sequential workflow does after a failed step.
type FailurePolicy string

const (
	// ContinueOnFailure runs every remaining step regardless of failures.
	ContinueOnFailure FailurePolicy = "continue"
	// ShortCircuit stops at the first failed step and returns its response.
	ShortCircuit FailurePolicy = "short_circuit"
)

// Valid reports whether p is a known policy. The empty policy is valid and
// means ContinueOnFailure.
func (p FailurePolicy) Valid() bool {
	switch p {
	case "", ContinueOnFailure, ShortCircuit:
		return true
	default:
		return false
	}
}

func (p FailurePolicy) orDefault() FailurePolicy {
	if p == "" {
		return ContinueOnFailure
	}
	return p
}

// Workflow is a named composition of workers. It is read-only once registered.
type Workflow struct {
	Name          string         `yaml:"name" json:"name"`
	Mode          Mode           `yaml:"mode" json:"mode"`
	Workers       []string       `yaml:"workers" json:"workers"`
	FailurePolicy FailurePolicy  `yaml:"failure_policy,omitempty" json:"failure_policy,omitempty"`
	Priorities    map[string]int `yaml:"priorities,omitempty" json:"priorities,omitempty"`
}

// ErrUnknownWorkflow is returned by Run for unregistered names.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// ErrInvalidWorkflow is returned when registering a malformed workflow.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// Validate checks the workflow definition.
func (w Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidWorkflow)
	}
	switch w.Mode {
	case ModeSequential, ModeParallel, ModeConsensus:
	default:
		return fmt.Errorf("%w: %s: unknown mode %q", ErrInvalidWorkflow, w.Name, w.Mode)
	}
	if len(w.Workers) == 0 {
		return fmt.Errorf("%w: %s: no workers", ErrInvalidWorkflow, w.Name)
	}
	if !w.FailurePolicy.Valid() {
		return fmt.Errorf("%w: %s: unknown failure policy %q", ErrInvalidWorkflow, w.Name, w.FailurePolicy)
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate a registered workflow.
func (w Workflow) clone() Workflow {
	out := w
	out.Workers = append([]string(nil), w.Workers...)
	if w.Priorities != nil {
		out.Priorities = make(map[string]int, len(w.Priorities))
		for k, v := range w.Priorities {
			out.Priorities[k] = v
		}
	}
	return out
}
