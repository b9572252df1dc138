package models

import "time"

// SystemAgentID marks responses produced by the coordination layer itself
// rather than by a worker.
const SystemAgentID = "system"

// Metadata keys used on responses.
const (
	MetaConflicts  = "conflicts"
	MetaFallback   = "fallback"
	MetaCapability = "capability"
	MetaWorkers    = "workers"
	MetaBranches   = "branches"
	MetaPolicy     = "policy"
	MetaPreferred  = "preferred"
	MetaWorkflow   = "workflow"
	MetaAgent      = "agent"
)

// Response is the uniform result of a dispatch.
type Response struct {
	// RequestID correlates the response to its request.
	RequestID string `json:"request_id"`
	// AgentID is the responding worker, or SystemAgentID.
	AgentID string `json:"agent_id"`
	// Success reports whether the work completed.
	Success bool `json:"success"`
	// Data is the payload on success.
	Data any `json:"data,omitempty"`
	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
	// Timestamp is when the response was produced.
	Timestamp time.Time `json:"timestamp"`
	// Latency is the wall-clock processing time measured by the dispatcher.
	Latency time.Duration `json:"latency,omitempty"`
	// Metadata holds optional annotations such as conflicts or fallback flags.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Failure builds a failed system response for requestID.
func Failure(requestID, errMsg string) *Response {
	return &Response{
		RequestID: requestID,
		AgentID:   SystemAgentID,
		Success:   false,
		Error:     errMsg,
		Timestamp: time.Now(),
	}
}

// SetMeta sets a metadata key, allocating the map when needed.
func (r *Response) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// DataMap returns Data as a map when it is one.
func (r *Response) DataMap() (map[string]any, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.Data.(map[string]any)
	return m, ok
}

// Conflict records two successful responses that disagree.
type Conflict struct {
	AgentA string `json:"agent_a"`
	AgentB string `json:"agent_b"`
	DataA  any    `json:"data_a"`
	DataB  any    `json:"data_b"`
}
