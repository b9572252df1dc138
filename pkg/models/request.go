package models

import (
	"time"

	"github.com/google/uuid"
)

// Request is a unit of work submitted for dispatch.
// A Request is not modified after submission; derived requests are copies.
type Request struct {
	// ID is the unique identifier for this request.
	ID string `json:"id"`
	// Type is the logical request type used for capability lookup.
	Type string `json:"type"`
	// Payload is the free-form request body.
	Payload any `json:"payload,omitempty"`
	// Priority ranks the request (1 highest, 5 lowest).
	Priority Priority `json:"priority"`
	// Context carries data shared between workflow steps.
	Context map[string]any `json:"context,omitempty"`
	// Capability overrides the type lookup when set.
	Capability string `json:"capability,omitempty"`
	// Timeout bounds dispatch when greater than zero.
	Timeout time.Duration `json:"timeout,omitempty"`
	// SessionID ties the request to a context store session.
	SessionID string `json:"session_id,omitempty"`
}

// NewRequest creates a request with a fresh ID and normal priority.
func NewRequest(requestType string, payload any) *Request {
	return &Request{
		ID:       uuid.New().String(),
		Type:     requestType,
		Payload:  payload,
		Priority: PriorityNormal,
		Context:  make(map[string]any),
	}
}

// WithContext returns a copy of r whose context is r.Context shallow-merged
// with extra. Keys from extra win on collision.
func (r *Request) WithContext(extra map[string]any) *Request {
	next := *r
	next.Context = make(map[string]any, len(r.Context)+len(extra))
	for k, v := range r.Context {
		next.Context[k] = v
	}
	for k, v := range extra {
		next.Context[k] = v
	}
	return &next
}
