package dispatch

import "maps"

// GeneralCapability serves request types missing from the table.
const GeneralCapability = "general-guidance"

// CapabilityTable maps a logical request type to a capability tag.
type CapabilityTable map[string]string

// DefaultCapabilities returns the built-in type to capability mapping.
func DefaultCapabilities() CapabilityTable {
	return CapabilityTable{
		"entity":       "domain-entity",
		"service":      "service-design",
		"screen":       "ui-screen",
		"requirements": "requirements-analysis",
		"architecture": "architecture-review",
		"security":     "security-review",
		"contract":     "api-contract",
		"bridge":       "frontend-backend-bridge",
		"test":         "test-generation",
	}
}

// Resolve returns the capability for requestType, or GeneralCapability.
func (t CapabilityTable) Resolve(requestType string) string {
	if c, ok := t[requestType]; ok && c != "" {
		return c
	}
	return GeneralCapability
}

// Clone returns a copy safe to hand out.
func (t CapabilityTable) Clone() CapabilityTable {
	return maps.Clone(t)
}
