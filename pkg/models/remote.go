package models

import "time"

// RemoteEndpoint is an external counterpart reachable through the gateway.
// Endpoints are fixed at start-up.
type RemoteEndpoint struct {
	// Name is the logical endpoint name.
	Name string `json:"name" yaml:"name"`
	// Location is an opaque address understood by the transport.
	Location string `json:"location" yaml:"location"`
	// Capabilities lists what the endpoint can do.
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// QueuedCall is a coordination call waiting for replay.
type QueuedCall struct {
	ID         string    `json:"id"`
	Endpoint   string    `json:"endpoint"`
	Payload    any       `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
