package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/internal/orchestrator"
)

const sampleCatalog = `
workers:
  - id: domain
    name: Domain modeler
    kind: echo
    capabilities: [domain-entity]
  - id: pricing
    kind: static
    capabilities: [pricing]
    data:
      currency: EUR
  - id: sec
    kind: remote
    capabilities: [security-review]
    endpoint: security
    timeout: 3s
workflows:
  - name: design
    mode: sequential
    workers: [domain, pricing]
    failure_policy: short_circuit
  - name: vote
    mode: consensus
    workers: [domain, sec]
    priorities:
      sec: 2
`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeFile(t, path, sampleCatalog)

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(cat.Workers) != 3 || len(cat.Workflows) != 2 {
		t.Fatalf("catalog = %+v", cat)
	}

	sec := cat.Workers[2]
	if sec.Kind != agent.KindRemote || sec.Endpoint != "security" || sec.Timeout != 3*time.Second {
		t.Errorf("remote worker = %+v", sec)
	}
	if cat.Workers[1].Data["currency"] != "EUR" {
		t.Errorf("static data = %v", cat.Workers[1].Data)
	}

	design := cat.Workflows[0]
	if design.FailurePolicy != orchestrator.ShortCircuit || design.Mode != orchestrator.ModeSequential {
		t.Errorf("design workflow = %+v", design)
	}
	if cat.Workflows[1].Priorities["sec"] != 2 {
		t.Errorf("priorities = %v", cat.Workflows[1].Priorities)
	}
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"no workers", "workflows: []\n", ErrNoWorkers},
		{"unknown field", "workers:\n  - id: a\n    colour: red\n", nil},
		{"duplicate worker", "workers:\n  - id: a\n  - id: a\n", nil},
		{"missing id", "workers:\n  - kind: echo\n", nil},
		{"unknown worker in workflow", "workers:\n  - id: a\nworkflows:\n  - name: w\n    mode: parallel\n    workers: [a, b]\n", nil},
		{"bad mode", "workers:\n  - id: a\nworkflows:\n  - name: w\n    mode: sideways\n    workers: [a]\n", orchestrator.ErrInvalidWorkflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.content))
			if err == nil {
				t.Fatal("ParseCatalog() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultCatalog_RoundTrip(t *testing.T) {
	cat := DefaultCatalog()
	if err := cat.Validate(); err != nil {
		t.Fatalf("DefaultCatalog().Validate() error = %v", err)
	}

	data, err := cat.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	parsed, err := ParseCatalog(data)
	if err != nil {
		t.Fatalf("ParseCatalog(Marshal()) error = %v", err)
	}
	if len(parsed.Workers) != len(cat.Workers) || len(parsed.Workflows) != len(cat.Workflows) {
		t.Errorf("round trip lost entries: %+v", parsed)
	}
}
