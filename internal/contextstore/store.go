// Package contextstore keeps session-scoped context values with a
// time-to-live and a periodic background sweep.
package contextstore

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an entry lives after its last write.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often expired entries are purged.
	DefaultSweepInterval = 5 * time.Minute
)

// Well-known sub-context keys.
const (
	KeyDomain         = "domain"
	KeyImplementation = "implementation"
	KeyArchitecture   = "architecture"
)

// entry pairs a value with its last write time. An entry only exists
// together with its timestamp.
type entry struct {
	value     any
	writtenAt time.Time
}

// session holds one session's sub-contexts behind its own lock.
type session struct {
	mu      sync.RWMutex
	entries map[string]entry
	// removed is set once the session has been dropped from the store.
	// Writers that raced with removal must retry on a fresh session.
	removed bool
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the entry time-to-live.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithSweepInterval sets the background sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a concurrent session context store.
// Sessions are locked individually; no operation holds a store-wide lock.
type Store struct {
	sessions      sync.Map // session id -> *session
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Store. The sweep does not run until Start.
func New(opts ...Option) *Store {
	s := &Store{
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores value under key for sessionID, creating the session on first write.
func (s *Store) Put(sessionID, key string, value any) {
	for {
		sess := s.loadOrCreate(sessionID)
		sess.mu.Lock()
		if sess.removed {
			sess.mu.Unlock()
			continue
		}
		sess.entries[key] = entry{value: value, writtenAt: s.now()}
		sess.mu.Unlock()
		return
	}
}

// Get returns the value stored under key, if present and not expired.
func (s *Store) Get(sessionID, key string) (any, bool) {
	sess, ok := s.load(sessionID)
	if !ok {
		return nil, false
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	e, ok := sess.entries[key]
	if !ok || s.expired(e) {
		return nil, false
	}
	return e.value, true
}

// GetAll returns a copy of every live entry in the session.
// Unknown sessions yield an empty map.
func (s *Store) GetAll(sessionID string) map[string]any {
	out := make(map[string]any)
	sess, ok := s.load(sessionID)
	if !ok {
		return out
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	for k, e := range sess.entries {
		if !s.expired(e) {
			out[k] = e.value
		}
	}
	return out
}

// Share copies key from one session into another. The copy shares no
// mutable state with the source; a value that cannot be copied that way
// (funcs, channels, structs with unexported reference fields) is not shared.
// It reports whether a value was copied.
func (s *Store) Share(fromSession, toSession, key string) bool {
	v, ok := s.Get(fromSession, key)
	if !ok {
		return false
	}
	cp, err := deepCopy(v)
	if err != nil {
		log.Printf("[contextstore] share %s from session %s to %s: %v", key, fromSession, toSession, err)
		return false
	}
	s.Put(toSession, key, cp)
	return true
}

// ClearSession removes a session and all its entries. Safe to repeat.
func (s *Store) ClearSession(sessionID string) {
	sess, ok := s.load(sessionID)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.entries = make(map[string]entry)
	s.dropLocked(sessionID, sess)
}

// ClearKey removes one entry, dropping the session when it becomes empty.
func (s *Store) ClearKey(sessionID, key string) {
	sess, ok := s.load(sessionID)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	delete(sess.entries, key)
	if len(sess.entries) == 0 {
		s.dropLocked(sessionID, sess)
	}
}

// Sweep purges expired entries and then empty sessions. Each session is
// locked only while it is scanned. It returns the number of entries removed.
func (s *Store) Sweep() int {
	removed := 0
	s.sessions.Range(func(k, v any) bool {
		id := k.(string)
		sess := v.(*session)

		sess.mu.Lock()
		for key, e := range sess.entries {
			if s.expired(e) {
				delete(sess.entries, key)
				removed++
			}
		}
		if len(sess.entries) == 0 {
			s.dropLocked(id, sess)
		}
		sess.mu.Unlock()
		return true
	})
	return removed
}

// Start launches the periodic sweep. Calling Start twice is a no-op.
func (s *Store) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Printf("[contextstore] swept %d expired entries", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep and waits for it to exit.
func (s *Store) Stop() {
	s.lifecycle.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Stats summarizes the store. Values are best effort under concurrent writes.
type Stats struct {
	Sessions int       `json:"sessions"`
	Keys     int       `json:"keys"`
	Oldest   time.Time `json:"oldest,omitempty"`
	Newest   time.Time `json:"newest,omitempty"`
}

// Stats returns session and key counts plus the oldest and newest write times.
func (s *Store) Stats() Stats {
	var st Stats
	s.sessions.Range(func(_, v any) bool {
		sess := v.(*session)
		sess.mu.RLock()
		if len(sess.entries) > 0 {
			st.Sessions++
		}
		for _, e := range sess.entries {
			st.Keys++
			if st.Oldest.IsZero() || e.writtenAt.Before(st.Oldest) {
				st.Oldest = e.writtenAt
			}
			if e.writtenAt.After(st.Newest) {
				st.Newest = e.writtenAt
			}
		}
		sess.mu.RUnlock()
		return true
	})
	return st
}

func (s *Store) expired(e entry) bool {
	return s.now().Sub(e.writtenAt) > s.ttl
}

func (s *Store) load(sessionID string) (*session, bool) {
	v, ok := s.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

func (s *Store) loadOrCreate(sessionID string) *session {
	if sess, ok := s.load(sessionID); ok {
		return sess
	}
	v, _ := s.sessions.LoadOrStore(sessionID, &session{entries: make(map[string]entry)})
	return v.(*session)
}

// dropLocked removes sess from the store. Caller must hold sess.mu.
func (s *Store) dropLocked(sessionID string, sess *session) {
	sess.removed = true
	s.sessions.CompareAndDelete(sessionID, sess)
}
