package agent

import (
	"fmt"
	"time"
)

// Kind names a built-in agent implementation.
type Kind string

const (
	KindEcho   Kind = "echo"
	KindStatic Kind = "static"
	KindRemote Kind = "remote"
)

// Spec declares a worker in the catalog.
type Spec struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Kind         Kind           `yaml:"kind"`
	Capabilities []string       `yaml:"capabilities"`
	Data         map[string]any `yaml:"data,omitempty"`
	Endpoint     string         `yaml:"endpoint,omitempty"`
	Timeout      time.Duration  `yaml:"timeout,omitempty"`
}

// New builds the agent described by spec. A Coordinator is required only
// for the remote kind.
func New(spec Spec, c Coordinator) (Agent, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("agent spec: missing id")
	}
	switch spec.Kind {
	case KindEcho, "":
		return NewEcho(spec.ID, spec.Capabilities), nil
	case KindStatic:
		return NewStatic(spec.ID, spec.Capabilities, spec.Data), nil
	case KindRemote:
		if spec.Endpoint == "" {
			return nil, fmt.Errorf("agent %s: remote kind requires an endpoint", spec.ID)
		}
		if c == nil {
			return nil, fmt.Errorf("agent %s: remote kind requires a coordinator", spec.ID)
		}
		return NewRemote(spec.ID, spec.Capabilities, spec.Endpoint, spec.Timeout, c), nil
	default:
		return nil, fmt.Errorf("agent %s: %w: %q", spec.ID, ErrUnknownKind, spec.Kind)
	}
}
