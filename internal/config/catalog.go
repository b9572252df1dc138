package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/internal/orchestrator"
)

// ErrNoWorkers is returned when a catalog declares no workers.
var ErrNoWorkers = errors.New("catalog declares no workers")

// Catalog declares the workers and workflows available at start-up.
type Catalog struct {
	Workers   []agent.Spec            `yaml:"workers"`
	Workflows []orchestrator.Workflow `yaml:"workflows"`
}

// LoadCatalog reads and validates a YAML catalog. Unknown fields are errors.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates YAML catalog content.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	cat := &Catalog{}
	if err := dec.Decode(cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate checks worker ids are unique and workflows name known workers.
func (c *Catalog) Validate() error {
	if len(c.Workers) == 0 {
		return ErrNoWorkers
	}

	ids := make([]string, 0, len(c.Workers))
	for _, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("catalog: worker without id")
		}
		if slices.Contains(ids, w.ID) {
			return fmt.Errorf("catalog: duplicate worker %q", w.ID)
		}
		ids = append(ids, w.ID)
	}

	for _, wf := range c.Workflows {
		if err := wf.Validate(); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		for _, id := range wf.Workers {
			if !slices.Contains(ids, id) {
				return fmt.Errorf("catalog: workflow %s references unknown worker %q", wf.Name, id)
			}
		}
	}
	return nil
}

// Marshal encodes the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DefaultCatalog returns local echo workers for the design capabilities,
// remote workers for the gateway endpoints, and three sample workflows.
func DefaultCatalog() *Catalog {
	workers := []agent.Spec{
		{ID: "domain", Name: "Domain modeler", Kind: agent.KindEcho, Capabilities: []string{"domain-entity"}},
		{ID: "service", Name: "Service designer", Kind: agent.KindEcho, Capabilities: []string{"service-design"}},
		{ID: "screen", Name: "Screen designer", Kind: agent.KindEcho, Capabilities: []string{"ui-screen"}},
		{ID: "security", Name: "Security reviewer", Kind: agent.KindEcho, Capabilities: []string{"security-review"}},
		{ID: "general", Name: "General guidance", Kind: agent.KindEcho, Capabilities: []string{"general-guidance"}},
		{ID: "requirements", Name: "Requirements analyst", Kind: agent.KindRemote,
			Capabilities: []string{"requirements-analysis"}, Endpoint: "requirements"},
		{ID: "architect", Name: "Architecture reviewer", Kind: agent.KindRemote,
			Capabilities: []string{"architecture-review"}, Endpoint: "architecture"},
		{ID: "contracts", Name: "Contract checker", Kind: agent.KindRemote,
			Capabilities: []string{"api-contract"}, Endpoint: "contracts"},
		{ID: "bridge", Name: "Frontend/backend bridge", Kind: agent.KindRemote,
			Capabilities: []string{"frontend-backend-bridge"}, Endpoint: "bridge"},
		{ID: "tester", Name: "E2E test author", Kind: agent.KindRemote,
			Capabilities: []string{"test-generation"}, Endpoint: "testing"},
	}
	return &Catalog{
		Workers: workers,
		Workflows: []orchestrator.Workflow{
			{Name: "design", Mode: orchestrator.ModeSequential, Workers: []string{"domain", "service", "screen"}},
			{Name: "review", Mode: orchestrator.ModeParallel, Workers: []string{"service", "security"}},
			{Name: "consensus", Mode: orchestrator.ModeConsensus, Workers: []string{"domain", "general"},
				Priorities: map[string]int{"domain": 2}},
		},
	}
}
