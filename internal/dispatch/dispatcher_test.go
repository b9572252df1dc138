package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/internal/registry"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// setupDispatcher creates a registry with the given agents and a dispatcher over it.
func setupDispatcher(t *testing.T, agents []agent.Agent, opts ...Option) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	for _, a := range agents {
		reg.RegisterAgent(a, "")
	}
	d := New(reg, opts...)
	t.Cleanup(d.Close)
	return d, reg
}

func okAgent(id string, caps []string, data map[string]any) agent.Agent {
	return agent.NewFunc(id, caps, func(ctx context.Context, req *models.Request) (*models.Response, error) {
		return &models.Response{Success: true, Data: data}, nil
	})
}

func TestCapabilityTable_Resolve(t *testing.T) {
	table := CapabilityTable{"entity": "domain-entity", "empty": ""}

	tests := []struct {
		in   string
		want string
	}{
		{"entity", "domain-entity"},
		{"unmapped", GeneralCapability},
		{"", GeneralCapability},
		{"empty", GeneralCapability},
	}
	for _, tt := range tests {
		if got := table.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDispatch_Success(t *testing.T) {
	d, reg := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, map[string]any{"x": 1}),
	})

	req := models.NewRequest("entity", nil)
	resp := d.Do(context.Background(), req)

	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.AgentID != "a" {
		t.Errorf("AgentID = %q, want a", resp.AgentID)
	}
	if resp.RequestID != req.ID {
		t.Errorf("RequestID = %q, want %q", resp.RequestID, req.ID)
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if resp.Metadata[models.MetaCapability] != "domain-entity" {
		t.Errorf("capability metadata = %v, want domain-entity", resp.Metadata[models.MetaCapability])
	}

	desc, _ := reg.Get("a")
	if desc.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", desc.Dispatched)
	}
	if desc.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0 after completion", desc.InFlight)
	}
}

func TestDispatch_UnmappedTypeUsesGeneralCapability(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("general", []string{GeneralCapability}, nil),
	})

	resp := d.Do(context.Background(), models.NewRequest("haiku", nil))
	if !resp.Success || resp.AgentID != "general" {
		t.Errorf("expected general worker to answer, got %+v", resp)
	}
}

func TestDispatch_CapabilityOverride(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("entity", []string{"domain-entity"}, nil),
		okAgent("sec", []string{"security-review"}, nil),
	})

	req := models.NewRequest("entity", nil)
	req.Capability = "security-review"
	resp := d.Do(context.Background(), req)
	if resp.AgentID != "sec" {
		t.Errorf("AgentID = %q, want sec", resp.AgentID)
	}
}

func TestDispatch_NoSuitableAgent(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	})

	resp := d.Do(context.Background(), models.NewRequest("screen", nil))
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.AgentID != models.SystemAgentID {
		t.Errorf("AgentID = %q, want system", resp.AgentID)
	}
	if !strings.Contains(resp.Error, "No suitable") {
		t.Errorf("Error = %q, want it to contain %q", resp.Error, "No suitable")
	}
}

func TestDispatch_NoHealthyAgent(t *testing.T) {
	d, reg := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	})
	_ = reg.SetHealth("a", models.HealthUnhealthy)

	resp := d.Do(context.Background(), models.NewRequest("entity", nil))
	if resp.Success || !strings.Contains(resp.Error, "No suitable") {
		t.Errorf("expected No suitable failure, got %+v", resp)
	}
}

func TestDispatchTo_Errors(t *testing.T) {
	d, reg := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	})

	resp := d.DoTo(context.Background(), "missing", models.NewRequest("entity", nil))
	if resp.Success || resp.Error != "Agent not found: missing" {
		t.Errorf("unexpected response for unknown worker: %+v", resp)
	}

	_ = reg.SetHealth("a", models.HealthDegraded)
	resp = d.DoTo(context.Background(), "a", models.NewRequest("entity", nil))
	if resp.Success || resp.Error != "Agent a is not healthy" {
		t.Errorf("unexpected response for unhealthy worker: %+v", resp)
	}
	if resp.AgentID != models.SystemAgentID {
		t.Errorf("AgentID = %q, want system", resp.AgentID)
	}
}

func TestDispatchTo_PinnedIgnoresCapability(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	})

	resp := d.DoTo(context.Background(), "a", models.NewRequest("screen", nil))
	if !resp.Success {
		t.Errorf("pinned dispatch should succeed, got %q", resp.Error)
	}
}

func TestDispatch_AgentErrorCapturedVerbatim(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("a", []string{"domain-entity"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			return nil, errors.New("template engine exploded: missing field 'name'")
		}),
	})

	resp := d.Do(context.Background(), models.NewRequest("entity", nil))
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.Error != "template engine exploded: missing field 'name'" {
		t.Errorf("Error = %q, want verbatim agent error", resp.Error)
	}
	if resp.AgentID != models.SystemAgentID {
		t.Errorf("AgentID = %q, want system", resp.AgentID)
	}
	if resp.Metadata[models.MetaAgent] != "a" {
		t.Errorf("expected failing agent in metadata, got %v", resp.Metadata)
	}
}

func TestDispatch_AgentPanicRecovered(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("a", []string{"domain-entity"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			panic("nil map write")
		}),
	})

	resp := d.Do(context.Background(), models.NewRequest("entity", nil))
	if resp.Success || !strings.Contains(resp.Error, "nil map write") {
		t.Errorf("expected recovered panic, got %+v", resp)
	}
}

func TestDispatch_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("slow", []string{"domain-entity"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			<-release
			return nil, nil
		}),
	})

	req := models.NewRequest("entity", nil)
	req.Timeout = 20 * time.Millisecond

	start := time.Now()
	resp := d.Do(context.Background(), req)
	if time.Since(start) > time.Second {
		t.Fatal("timeout not enforced")
	}
	if resp.Success || !strings.Contains(resp.Error, "timed out") {
		t.Errorf("expected timeout failure, got %+v", resp)
	}
}

func TestDispatch_IsAsynchronous(t *testing.T) {
	release := make(chan struct{})
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("slow", []string{"domain-entity"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			<-release
			return &models.Response{Success: true}, nil
		}),
	})

	p := d.Dispatch(context.Background(), models.NewRequest("entity", nil))
	select {
	case <-p.Done():
		t.Fatal("dispatch resolved before the agent finished")
	default:
	}

	close(release)
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatch did not resolve")
	}
	if !p.Wait(context.Background()).Success {
		t.Error("expected success")
	}
}

func TestDispatch_SlowWorkerDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("slow", []string{"ui-screen"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			<-release
			return nil, nil
		}),
		okAgent("fast", []string{"domain-entity"}, nil),
	}, WithPoolSize(2))

	d.Dispatch(context.Background(), models.NewRequest("screen", nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp := d.Do(ctx, models.NewRequest("entity", nil))
	if !resp.Success {
		t.Errorf("fast request blocked behind slow one: %+v", resp)
	}
}

func TestDispatch_PoolBound(t *testing.T) {
	var running, peak atomic.Int64
	release := make(chan struct{})
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("a", []string{"domain-entity"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil, nil
		}),
	}, WithPoolSize(2))

	var pending []*Pending
	for i := 0; i < 6; i++ {
		pending = append(pending, d.Dispatch(context.Background(), models.NewRequest("entity", nil)))
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, p := range pending {
		p.Wait(context.Background())
	}

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestMetrics_RunningAverage(t *testing.T) {
	m := newMetrics()
	m.record("a", 100*time.Millisecond, true)
	m.record("a", 300*time.Millisecond, true)
	m.record("a", 100*time.Millisecond, false)

	snap, _ := m.snapshot()
	w := snap["a"]
	if w.LastLatency != 100*time.Millisecond {
		t.Errorf("LastLatency = %v, want 100ms", w.LastLatency)
	}
	// (100+300)/2 = 200, (200+100)/2 = 150
	if w.AverageLatency != 150*time.Millisecond {
		t.Errorf("AverageLatency = %v, want 150ms", w.AverageLatency)
	}
	if w.Successes != 2 || w.Failures != 1 {
		t.Errorf("Successes/Failures = %d/%d, want 2/1", w.Successes, w.Failures)
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	})

	d.Do(context.Background(), models.NewRequest("entity", nil))
	d.Do(context.Background(), models.NewRequest("screen", nil))

	snap := d.Metrics()
	if _, ok := snap.Workers["a"]; !ok {
		t.Error("expected metrics for worker a")
	}
	if snap.Registry.Total != 1 {
		t.Errorf("Registry.Total = %d, want 1", snap.Registry.Total)
	}
	if snap.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", snap.Rejected)
	}

	// Snapshot is a copy.
	snap.Workers["a"] = WorkerMetrics{}
	if d.Metrics().Workers["a"].Successes != 1 {
		t.Error("snapshot aliased internal metrics")
	}
}

type recordingHistory struct {
	mu    sync.Mutex
	count int
}

func (h *recordingHistory) RecordDispatch(req *models.Request, resp *models.Response) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	return nil
}

func TestDispatch_History(t *testing.T) {
	h := &recordingHistory{}
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	}, WithHistory(h))

	d.Do(context.Background(), models.NewRequest("entity", nil))
	d.Do(context.Background(), models.NewRequest("screen", nil))
	d.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count != 2 {
		t.Errorf("history count = %d, want 2", h.count)
	}
}

func TestClose_RejectsNewRequests(t *testing.T) {
	d, _ := setupDispatcher(t, []agent.Agent{
		okAgent("a", []string{"domain-entity"}, nil),
	})
	d.Close()
	d.Close()

	resp := d.Do(context.Background(), models.NewRequest("entity", nil))
	if resp.Success || resp.Error != ErrClosed.Error() {
		t.Errorf("expected closed failure, got %+v", resp)
	}
}

func TestPending_WaitCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d, _ := setupDispatcher(t, []agent.Agent{
		agent.NewFunc("slow", []string{"domain-entity"}, func(ctx context.Context, req *models.Request) (*models.Response, error) {
			<-release
			return nil, nil
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := d.Dispatch(context.Background(), models.NewRequest("entity", nil)).Wait(ctx)
	if resp.Success || !strings.Contains(resp.Error, "wait aborted") {
		t.Errorf("expected aborted wait, got %+v", resp)
	}
}
