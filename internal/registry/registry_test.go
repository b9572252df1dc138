package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/waypoint/internal/agent"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

func desc(id string, caps ...string) models.WorkerDescriptor {
	return models.WorkerDescriptor{ID: id, Name: id, Capabilities: caps}
}

// dispatchN records n dispatches for id.
func dispatchN(t *testing.T, r *Registry, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := r.RecordDispatch(id); err != nil {
			t.Fatalf("RecordDispatch(%s) failed: %v", id, err)
		}
	}
}

func TestRegister(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
	got, ok := r.Get("a")
	if !ok {
		t.Fatal("expected worker a")
	}
	if got.Health != models.HealthHealthy {
		t.Errorf("Health = %q, want healthy", got.Health)
	}
	if got.Dispatched != 0 {
		t.Errorf("Dispatched = %d, want 0", got.Dispatched)
	}
}

func TestRegister_WithoutIDIsNoop(t *testing.T) {
	r := New()
	r.Register(models.WorkerDescriptor{Name: "nameless"}, nil)
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegister_OverwriteResetsCounters(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)
	dispatchN(t, r, "a", 4)

	r.Register(desc("a", "entity", "service"), nil)

	got, _ := r.Get("a")
	if got.Dispatched != 0 {
		t.Errorf("Dispatched = %d, want 0 after overwrite", got.Dispatched)
	}
	if len(got.Capabilities) != 2 {
		t.Errorf("Capabilities = %v, want 2 entries", got.Capabilities)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestDeregister_Idempotent(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)

	r.Deregister("a")
	r.Deregister("a")
	r.Deregister("never-registered")

	if _, ok := r.Get("a"); ok {
		t.Error("worker a should be gone")
	}
	if err := r.RecordDispatch("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordDispatch after deregister: got %v, want ErrNotFound", err)
	}
}

func TestSelectBest_LeastLoaded(t *testing.T) {
	r := New()
	r.Register(desc("A", "entity"), nil)
	r.Register(desc("B", "entity"), nil)
	dispatchN(t, r, "B", 3)

	got, ok := r.SelectBest("entity")
	if !ok {
		t.Fatal("expected a worker")
	}
	if got.ID != "A" {
		t.Errorf("SelectBest = %s, want A", got.ID)
	}
}

func TestSelectBest_NeverExceedsOtherCandidates(t *testing.T) {
	r := New()
	loads := map[string]int{"w1": 5, "w2": 2, "w3": 7, "w4": 2}
	for _, id := range []string{"w1", "w2", "w3", "w4"} {
		r.Register(desc(id, "service"), nil)
		dispatchN(t, r, id, loads[id])
	}

	best, ok := r.SelectBest("service")
	if !ok {
		t.Fatal("expected a worker")
	}
	for _, c := range r.FindByCapability("service") {
		if best.Dispatched > c.Dispatched {
			t.Errorf("best %s has load %d > candidate %s load %d", best.ID, best.Dispatched, c.ID, c.Dispatched)
		}
	}
	if best.ID != "w2" {
		t.Errorf("tie should keep registration order: got %s, want w2", best.ID)
	}
}

func TestFindByCapability_StableTies(t *testing.T) {
	r := New()
	ids := []string{"z", "m", "a", "q"}
	for _, id := range ids {
		r.Register(desc(id, "screen"), nil)
	}

	for run := 0; run < 20; run++ {
		got := r.FindByCapability("screen")
		for i, d := range got {
			if d.ID != ids[i] {
				t.Fatalf("run %d: position %d = %s, want %s", run, i, d.ID, ids[i])
			}
		}
	}
}

func TestFindByCapability_ExcludesUnhealthy(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)
	r.Register(desc("b", "entity"), nil)
	r.Register(desc("c", "entity"), nil)
	dispatchN(t, r, "b", 2)

	if err := r.SetHealth("a", models.HealthUnhealthy); err != nil {
		t.Fatalf("SetHealth failed: %v", err)
	}
	if err := r.SetHealth("c", models.HealthDegraded); err != nil {
		t.Fatalf("SetHealth failed: %v", err)
	}

	got := r.FindByCapability("entity")
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("FindByCapability = %v, want only b", got)
	}

	// Counters survive health transitions.
	b, _ := r.Get("b")
	if b.Dispatched != 2 {
		t.Errorf("Dispatched = %d, want 2", b.Dispatched)
	}
}

func TestSelectBest_UnknownCapability(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)

	if _, ok := r.SelectBest("nonexistent"); ok {
		t.Error("expected no worker for unknown capability")
	}
}

func TestSelectBest_NoHealthyWorkers(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)
	_ = r.SetHealth("a", models.HealthUnhealthy)

	if _, ok := r.SelectBest("entity"); ok {
		t.Error("expected no worker when all are unhealthy")
	}
}

func TestSetHealth_Errors(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)

	if err := r.SetHealth("missing", models.HealthHealthy); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if err := r.SetHealth("a", "bogus"); !errors.Is(err, ErrInvalidHealth) {
		t.Errorf("got %v, want ErrInvalidHealth", err)
	}
}

func TestSelectionMode_InFlight(t *testing.T) {
	r := New()
	r.SetSelectionMode(SelectInFlight)
	r.Register(desc("a", "entity"), nil)
	r.Register(desc("b", "entity"), nil)

	// a has more history but nothing running; b is busy.
	dispatchN(t, r, "a", 10)
	r.Begin("b")

	got, _ := r.SelectBest("entity")
	if got.ID != "a" {
		t.Errorf("SelectBest = %s, want a", got.ID)
	}

	r.Done("b")
	got, _ = r.SelectBest("entity")
	if got.ID != "b" {
		t.Errorf("SelectBest after Done = %s, want b", got.ID)
	}
}

func TestList_RegistrationOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b"} {
		r.Register(desc(id), nil)
	}
	r.Register(desc("a", "entity"), nil)

	got := r.List()
	want := []string{"c", "a", "b"}
	for i, d := range got {
		if d.ID != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, d.ID, want[i])
		}
	}
}

func TestStats(t *testing.T) {
	r := New()
	r.Register(desc("a", "entity"), nil)
	r.Register(desc("b", "entity"), nil)
	_ = r.SetHealth("b", models.HealthDegraded)
	dispatchN(t, r, "a", 3)
	r.Begin("a")

	s := r.Stats()
	if s.Total != 2 {
		t.Errorf("Total = %d, want 2", s.Total)
	}
	if s.ByHealth[models.HealthHealthy] != 1 || s.ByHealth[models.HealthDegraded] != 1 {
		t.Errorf("ByHealth = %v", s.ByHealth)
	}
	if s.Dispatched != 3 {
		t.Errorf("Dispatched = %d, want 3", s.Dispatched)
	}
	if s.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1", s.InFlight)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	for _, id := range []string{"a", "b", "c"} {
		r.Register(desc(id, "entity"), nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, ok := r.SelectBest("entity"); ok {
				_ = r.RecordDispatch(d.ID)
			}
			_ = r.Stats()
		}()
	}
	wg.Wait()

	if got := r.Stats().Dispatched; got != 50 {
		t.Errorf("Dispatched = %d, want 50", got)
	}
}

func TestRegisterAgent(t *testing.T) {
	r := New()
	a := agent.NewEcho("echo", []string{"general-guidance"})
	r.RegisterAgent(a, "")

	got, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected echo to be registered")
	}
	if got.Name != "echo" {
		t.Errorf("Name = %q, want echo", got.Name)
	}
	if _, ok := r.Agent("echo"); !ok {
		t.Error("expected agent contract to be stored")
	}
}

func TestRefreshHealth(t *testing.T) {
	r := New()
	a := agent.NewEcho("a", []string{"entity"})
	r.RegisterAgent(a, "")

	a.SetHealth(models.HealthUnhealthy)
	r.RefreshHealth()

	got, _ := r.Get("a")
	if got.Health != models.HealthUnhealthy {
		t.Errorf("Health = %q, want unhealthy", got.Health)
	}
}

func TestRefreshHealth_KeepsManualOverride(t *testing.T) {
	tests := []struct {
		name   string
		manual models.HealthStatus
		agent  models.HealthStatus
	}{
		{"unhealthy over healthy report", models.HealthUnhealthy, models.HealthHealthy},
		{"degraded over healthy report", models.HealthDegraded, models.HealthHealthy},
		{"healthy over unhealthy report", models.HealthHealthy, models.HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			a := agent.NewEcho("a", []string{"entity"})
			r.RegisterAgent(a, "")
			a.SetHealth(tt.agent)

			if err := r.SetHealth("a", tt.manual); err != nil {
				t.Fatal(err)
			}
			r.RefreshHealth()
			if got, _ := r.Get("a"); got.Health != tt.manual {
				t.Fatalf("Health = %q after refresh, want override %q", got.Health, tt.manual)
			}

			if err := r.ClearHealthOverride("a"); err != nil {
				t.Fatal(err)
			}
			r.RefreshHealth()
			if got, _ := r.Get("a"); got.Health != tt.agent {
				t.Errorf("Health = %q after clearing override, want agent report %q", got.Health, tt.agent)
			}
		})
	}
}

func TestClearHealthOverride_NotFound(t *testing.T) {
	r := New()
	if err := r.ClearHealthOverride("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestHealthMonitor_StartStop(t *testing.T) {
	r := New()
	a := agent.NewEcho("a", []string{"entity"})
	r.RegisterAgent(a, "")
	a.SetHealth(models.HealthDegraded)

	m := NewHealthMonitor(r, 10*time.Millisecond)
	m.Start(context.Background())
	m.Start(context.Background())

	deadline := time.After(time.Second)
	for {
		got, _ := r.Get("a")
		if got.Health == models.HealthDegraded {
			break
		}
		select {
		case <-deadline:
			t.Fatal("health monitor did not refresh in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Stop should complete quickly")
	}
}
