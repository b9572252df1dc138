package gateway

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/ShayCichocki/waypoint/internal/graph"
)

// Result is the outcome of a coordination operation. Operations never fail:
// when the counterpart cannot answer, Data holds a locally computed
// degraded result and Fallback is set.
type Result struct {
	Success    bool    `json:"success"`
	Fallback   bool    `json:"fallback"`
	Capability float64 `json:"capability"`
	Endpoint   string  `json:"endpoint"`
	Data       any     `json:"data,omitempty"`
	// Cause is the remote error that triggered the fallback.
	Cause string `json:"cause,omitempty"`
}

// DecomposeRequirements splits requirements into individual items.
func (g *Gateway) DecomposeRequirements(ctx context.Context, payload any) Result {
	return g.run(ctx, EndpointRequirements, payload, decomposeLocally)
}

// ValidateArchitecture checks component dependencies.
func (g *Gateway) ValidateArchitecture(ctx context.Context, payload any) Result {
	return g.run(ctx, EndpointArchitecture, payload, validateArchitectureLocally)
}

// ValidateSecurity looks for exposed secrets.
func (g *Gateway) ValidateSecurity(ctx context.Context, payload any) Result {
	return g.run(ctx, EndpointSecurity, payload, g.validateSecurityLocally)
}

// ValidateContracts compares a provider contract with a consumer's expectations.
func (g *Gateway) ValidateContracts(ctx context.Context, payload any) Result {
	return g.run(ctx, EndpointContracts, payload, validateContractsLocally)
}

// BridgeFrontendBackend maps frontend fields onto backend fields.
func (g *Gateway) BridgeFrontendBackend(ctx context.Context, payload any) Result {
	return g.run(ctx, EndpointBridge, payload, bridgeLocally)
}

// GenerateE2ETests outlines end-to-end tests for the given scenarios.
func (g *Gateway) GenerateE2ETests(ctx context.Context, payload any) Result {
	return g.run(ctx, EndpointTesting, payload, generateTestsLocally)
}

// Run performs the coordination operation of the named endpoint.
func (g *Gateway) Run(ctx context.Context, name string, payload any) (Result, error) {
	local, ok := g.fallback(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return g.run(ctx, name, payload, local), nil
}

// fallback returns the local computation for an endpoint's operation.
func (g *Gateway) fallback(name string) (func(any) map[string]any, bool) {
	switch name {
	case EndpointRequirements:
		return decomposeLocally, true
	case EndpointArchitecture:
		return validateArchitectureLocally, true
	case EndpointSecurity:
		return g.validateSecurityLocally, true
	case EndpointContracts:
		return validateContractsLocally, true
	case EndpointBridge:
		return bridgeLocally, true
	case EndpointTesting:
		return generateTestsLocally, true
	default:
		return nil, false
	}
}

func (g *Gateway) run(ctx context.Context, name string, payload any, local func(any) map[string]any) Result {
	data, err := g.Coordinate(ctx, name, payload, 0)
	if err == nil {
		return Result{Success: true, Capability: RemoteCapability, Endpoint: name, Data: data}
	}

	log.Printf("[gateway] %s: using local fallback: %v", name, err)
	return Result{
		Success:    true,
		Fallback:   true,
		Capability: FallbackCapability,
		Endpoint:   name,
		Data:       local(payload),
		Cause:      err.Error(),
	}
}

func decomposeLocally(payload any) map[string]any {
	var lines []string
	switch v := field(payload, "requirements").(type) {
	case string:
		lines = strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == ';' })
	default:
		lines = stringList(v)
	}

	items := []map[string]any{}
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line == "" {
			continue
		}
		items = append(items, map[string]any{
			"id":   fmt.Sprintf("REQ-%d", len(items)+1),
			"text": line,
		})
	}
	return map[string]any{"requirements": items, "count": len(items)}
}

func validateArchitectureLocally(payload any) map[string]any {
	components := stringList(field(payload, "components"))
	deps, _ := field(payload, "dependencies").(map[string]any)

	issues := []string{}
	if len(components) == 0 {
		issues = append(issues, "no components declared")
	}

	g := graph.New()
	for _, c := range components {
		g.AddComponent(c)
	}
	for _, from := range sortedKeys(deps) {
		if !slices.Contains(components, from) {
			issues = append(issues, fmt.Sprintf("unknown component %q has dependencies", from))
			continue
		}
		for _, to := range stringList(deps[from]) {
			switch {
			case to == from:
				issues = append(issues, fmt.Sprintf("%s depends on itself", from))
			case !slices.Contains(components, to):
				issues = append(issues, fmt.Sprintf("%s depends on unknown component %q", from, to))
			default:
				_ = g.AddDependency(from, to)
			}
		}
	}

	out := map[string]any{"components": len(components)}
	if cycle := g.FindCycle(); cycle != nil {
		issues = append(issues, "dependency cycle: "+strings.Join(cycle, " -> "))
	} else if layers, err := g.Layers(); err == nil {
		out["layers"] = layers
	}
	out["valid"] = len(issues) == 0
	out["issues"] = issues
	return out
}

// validateSecurityLocally reports every credential the detector finds.
func (g *Gateway) validateSecurityLocally(payload any) map[string]any {
	findings := []string{}
	for _, f := range g.detector.Scan(payload) {
		findings = append(findings, f.String())
	}
	return map[string]any{"passed": len(findings) == 0, "findings": findings}
}

func validateContractsLocally(payload any) map[string]any {
	provider, _ := field(payload, "provider").(map[string]any)
	consumer, _ := field(payload, "consumer").(map[string]any)

	mismatches := []string{}
	for _, name := range sortedKeys(consumer) {
		want := consumer[name]
		have, ok := provider[name]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("missing field %s", name))
		case fmt.Sprint(have) != fmt.Sprint(want):
			mismatches = append(mismatches, fmt.Sprintf("type mismatch for %s: consumer %v, provider %v", name, want, have))
		}
	}
	return map[string]any{"compatible": len(mismatches) == 0, "mismatches": mismatches}
}

func bridgeLocally(payload any) map[string]any {
	frontend := stringList(field(payload, "frontend"))
	backend := stringList(field(payload, "backend"))

	byKey := make(map[string]string, len(backend))
	for _, b := range backend {
		byKey[normalize(b)] = b
	}

	mappings := []map[string]string{}
	unmatched := []string{}
	used := make(map[string]bool)
	for _, f := range frontend {
		if b, ok := byKey[normalize(f)]; ok {
			mappings = append(mappings, map[string]string{"frontend": f, "backend": b})
			used[b] = true
			continue
		}
		unmatched = append(unmatched, f)
	}
	unused := []string{}
	for _, b := range backend {
		if !used[b] {
			unused = append(unused, b)
		}
	}
	return map[string]any{"mappings": mappings, "unmatched_frontend": unmatched, "unmatched_backend": unused}
}

func normalize(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
}

func generateTestsLocally(payload any) map[string]any {
	scenarios := stringList(field(payload, "scenarios"))

	tests := []map[string]any{}
	for _, sc := range scenarios {
		tests = append(tests, map[string]any{
			"name":  "e2e: " + sc,
			"steps": []string{"set up fixtures", "perform " + sc, "verify outcome"},
		})
	}
	return map[string]any{"tests": tests, "count": len(tests)}
}

// field reads key from a map payload. A non-map payload is returned as is
// so plain values work as the primary field.
func field(payload any, key string) any {
	if m, ok := payload.(map[string]any); ok {
		return m[key]
	}
	return payload
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
