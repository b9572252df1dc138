package contextstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	return New(WithTTL(30*time.Minute), WithSweepInterval(5*time.Minute), WithClock(clock.Now))
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	s.Put("s1", KeyDomain, map[string]any{"entity": "Order"})
	got, ok := s.Get("s1", KeyDomain)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	m, _ := got.(map[string]any)
	if m["entity"] != "Order" {
		t.Errorf("Get() = %v, want entity Order", got)
	}

	if _, ok := s.Get("s1", KeyArchitecture); ok {
		t.Error("Get() of missing key returned ok")
	}
	if _, ok := s.Get("nope", KeyDomain); ok {
		t.Error("Get() of missing session returned ok")
	}
}

func TestPut_Overwrites(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	s.Put("s1", "k", 1)
	s.Put("s1", "k", 2)
	if got, _ := s.Get("s1", "k"); got != 2 {
		t.Errorf("Get() = %v, want 2", got)
	}
}

func TestGetAll(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	s.Put("s1", "a", 1)
	s.Put("s1", "b", 2)

	all := s.GetAll("s1")
	if len(all) != 2 || all["a"] != 1 || all["b"] != 2 {
		t.Errorf("GetAll() = %v", all)
	}

	all["c"] = 3
	if _, ok := s.Get("s1", "c"); ok {
		t.Error("mutating GetAll() result changed the store")
	}

	if empty := s.GetAll("missing"); len(empty) != 0 {
		t.Errorf("GetAll(missing) = %v, want empty", empty)
	}
}

func TestTTL_RetainedThenPurged(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	s.Put("s1", "k", "v")

	clock.Advance(30*time.Minute - time.Second)
	s.Sweep()
	if _, ok := s.Get("s1", "k"); !ok {
		t.Fatal("entry missing before TTL elapsed")
	}

	clock.Advance(5*time.Minute + 2*time.Second)
	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() removed %d, want 1", n)
	}
	if _, ok := s.Get("s1", "k"); ok {
		t.Error("entry still present after TTL + sweep")
	}
	if st := s.Stats(); st.Sessions != 0 {
		t.Errorf("Stats().Sessions = %d, want 0 after empty session removal", st.Sessions)
	}
}

func TestTTL_RewriteExtendsLifetime(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	s.Put("s1", "k", 1)
	clock.Advance(20 * time.Minute)
	s.Put("s1", "k", 2)
	clock.Advance(20 * time.Minute)
	s.Sweep()

	if got, ok := s.Get("s1", "k"); !ok || got != 2 {
		t.Errorf("Get() = %v, %v; want 2, true", got, ok)
	}
}

func TestGet_ExpiredBeforeSweep(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	s.Put("s1", "k", 1)
	clock.Advance(31 * time.Minute)
	if _, ok := s.Get("s1", "k"); ok {
		t.Error("expired entry returned before sweep")
	}
}

func TestSweep_KeepsLiveEntries(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	s.Put("s1", "old", 1)
	clock.Advance(25 * time.Minute)
	s.Put("s1", "new", 2)
	clock.Advance(10 * time.Minute)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() removed %d, want 1", n)
	}
	all := s.GetAll("s1")
	if len(all) != 1 || all["new"] != 2 {
		t.Errorf("GetAll() = %v, want only new", all)
	}
}

func TestClearSession_Idempotent(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	s.Put("s1", "a", 1)
	s.Put("s1", "b", 2)

	s.ClearSession("s1")
	first := s.Stats()
	s.ClearSession("s1")
	second := s.Stats()

	if first != second {
		t.Errorf("second ClearSession changed stats: %+v -> %+v", first, second)
	}
	if len(s.GetAll("s1")) != 0 {
		t.Error("session still has entries after ClearSession")
	}

	s.ClearSession("never-existed")

	// The session can be reused after clearing.
	s.Put("s1", "a", 3)
	if got, _ := s.Get("s1", "a"); got != 3 {
		t.Errorf("Get() after reuse = %v, want 3", got)
	}
}

func TestClearKey(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	s.Put("s1", "a", 1)
	s.Put("s1", "b", 2)

	s.ClearKey("s1", "a")
	if _, ok := s.Get("s1", "a"); ok {
		t.Error("cleared key still present")
	}
	if st := s.Stats(); st.Sessions != 1 || st.Keys != 1 {
		t.Errorf("Stats() = %+v, want 1 session 1 key", st)
	}

	s.ClearKey("s1", "b")
	if st := s.Stats(); st.Sessions != 0 {
		t.Errorf("Stats().Sessions = %d, want 0", st.Sessions)
	}
	s.ClearKey("s1", "b")
}

func TestShare_DeepCopies(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	src := map[string]any{
		"entity": "Order",
		"fields": []any{"id", "total"},
		"nested": map[string]any{"k": "v"},
	}
	s.Put("from", KeyDomain, src)

	if !s.Share("from", "to", KeyDomain) {
		t.Fatal("Share() = false, want true")
	}

	got, _ := s.Get("to", KeyDomain)
	copied := got.(map[string]any)
	copied["entity"] = "Invoice"
	copied["fields"].([]any)[0] = "changed"
	copied["nested"].(map[string]any)["k"] = "changed"

	if src["entity"] != "Order" {
		t.Error("top-level map aliased")
	}
	if src["fields"].([]any)[0] != "id" {
		t.Error("slice aliased")
	}
	if src["nested"].(map[string]any)["k"] != "v" {
		t.Error("nested map aliased")
	}

	if s.Share("from", "to", "missing") {
		t.Error("Share() of missing key = true")
	}
}

type shareRecord struct {
	Tags    []string
	Owner   *shareOwner
	Counts  map[string]int
	Created time.Time
}

type shareOwner struct {
	Name string
	Self *shareOwner
}

func TestShare_DeepCopiesTypedValues(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	counts := map[string]int{"n": 1}
	s.Put("a", KeyDomain, counts)
	if !s.Share("a", "b", KeyDomain) {
		t.Fatal("Share(map[string]int) = false")
	}
	counts["n"] = 99
	if got, _ := s.Get("b", KeyDomain); got.(map[string]int)["n"] != 1 {
		t.Errorf("typed map aliased: %v", got)
	}

	owner := &shareOwner{Name: "team"}
	owner.Self = owner
	rec := shareRecord{
		Tags:    []string{"x"},
		Owner:   owner,
		Counts:  map[string]int{"k": 1},
		Created: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Put("a", KeyImplementation, rec)
	if !s.Share("a", "b", KeyImplementation) {
		t.Fatal("Share(struct) = false")
	}
	rec.Tags[0] = "mutated"
	rec.Owner.Name = "mutated"
	rec.Counts["k"] = 2

	got, _ := s.Get("b", KeyImplementation)
	copied := got.(shareRecord)
	if copied.Tags[0] != "x" {
		t.Errorf("struct slice field aliased: %v", copied.Tags)
	}
	if copied.Owner == owner || copied.Owner.Name != "team" {
		t.Errorf("struct pointer field aliased: %+v", copied.Owner)
	}
	if copied.Owner.Self != copied.Owner {
		t.Error("pointer cycle not preserved in copy")
	}
	if copied.Counts["k"] != 1 {
		t.Errorf("struct map field aliased: %v", copied.Counts)
	}
	if !copied.Created.Equal(rec.Created) {
		t.Errorf("Created = %v, want %v", copied.Created, rec.Created)
	}

	arr := &[2][]int{{1}, {2}}
	s.Put("a", "arr", arr)
	s.Share("a", "b", "arr")
	arr[0][0] = 9
	if got, _ := s.Get("b", "arr"); got.(*[2][]int)[0][0] != 1 {
		t.Error("array of slices aliased")
	}
}

type opaque struct {
	items []string
}

func TestShare_RejectsUncopyable(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"func", func() {}},
		{"channel", make(chan int)},
		{"unexported slice field", opaque{items: []string{"x"}}},
		{"nested func", map[string]any{"cb": func() {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, newFakeClock())
			s.Put("a", "k", tt.value)
			if s.Share("a", "b", "k") {
				t.Error("Share() = true, want false")
			}
			if _, ok := s.Get("b", "k"); ok {
				t.Error("uncopyable value stored in target session")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		domain any
		impl   any
		want   bool
	}{
		{"both missing", nil, nil, true},
		{"implementation missing", map[string]any{"entity": "Order"}, nil, true},
		{"matching", map[string]any{"entity": "Order"}, map[string]any{"entity": "Order", "lang": "go"}, true},
		{"mismatch", map[string]any{"entity": "Order"}, map[string]any{"entity": "Invoice"}, false},
		{"field missing on one side", map[string]any{"entity": "Order"}, map[string]any{"lang": "go"}, true},
		{"non-map value", "Order", map[string]any{"entity": "Invoice"}, true},
		{"string maps", map[string]string{"entity": "A"}, map[string]string{"entity": "B"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, newFakeClock())
			if tt.domain != nil {
				s.Put("s", KeyDomain, tt.domain)
			}
			if tt.impl != nil {
				s.Put("s", KeyImplementation, tt.impl)
			}
			if got := s.Validate("s"); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	start := clock.Now()
	s.Put("s1", "a", 1)
	clock.Advance(time.Minute)
	s.Put("s2", "a", 1)
	s.Put("s2", "b", 1)

	st := s.Stats()
	if st.Sessions != 2 || st.Keys != 3 {
		t.Errorf("Stats() = %+v, want 2 sessions 3 keys", st)
	}
	if !st.Oldest.Equal(start) {
		t.Errorf("Oldest = %v, want %v", st.Oldest, start)
	}
	if !st.Newest.Equal(start.Add(time.Minute)) {
		t.Errorf("Newest = %v, want %v", st.Newest, start.Add(time.Minute))
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", i%4)
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%5)
				s.Put(session, key, j)
				s.Get(session, key)
				s.GetAll(session)
				if j%10 == 0 {
					s.ClearKey(session, key)
				}
				if j%33 == 0 {
					s.ClearSession(session)
				}
				s.Sweep()
			}
		}(i)
	}
	wg.Wait()

	s.Put("final", "k", "v")
	if got, ok := s.Get("final", "k"); !ok || got != "v" {
		t.Errorf("Get() after concurrent use = %v, %v", got, ok)
	}
}

func TestStartStop(t *testing.T) {
	clock := newFakeClock()
	s := New(WithTTL(time.Minute), WithSweepInterval(10*time.Millisecond), WithClock(clock.Now))

	s.Put("s1", "k", 1)
	clock.Advance(2 * time.Minute)

	s.Start(context.Background())
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for s.Stats().Keys != 0 {
		select {
		case <-deadline:
			t.Fatal("background sweep did not purge expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	s.Stop()
}
