package session

import (
	"sync"
	"time"
)

// Defaults carries the process-wide values used to seed a brand new
// session's snapshot.
type Defaults struct {
	BackendType     string
	Model           string
	InteractiveMode bool
	FailoverRoutes  map[string]FailoverRoute
}

func (d Defaults) snapshot() *Snapshot {
	routes := make(map[string]FailoverRoute, len(d.FailoverRoutes))
	for name, r := range d.FailoverRoutes {
		routes[name] = r.clone()
	}
	return &Snapshot{
		Backend: BackendConfig{
			BackendType:     d.BackendType,
			Model:           d.Model,
			InteractiveMode: d.InteractiveMode,
			FailoverRoutes:  routes,
		},
		LoopDetection: DefaultLoopDetectionConfig(),
		// A session that starts interactive by default still owes its
		// first reply the banner, the same as one that just turned
		// interactive mode on via a command.
		InteractiveJustEnabled: d.InteractiveMode,
	}
}

// Session is a keyed container for a session's current snapshot. Snapshot
// reads/writes go through the store, never directly through this type, so
// callers cannot bypass the per-session serialization in Store.Update.
type Session struct {
	ID string

	mu           sync.Mutex
	snapshot     *Snapshot
	userID       string
	lastActiveAt time.Time
}

// Snapshot returns the session's current snapshot. The returned pointer is
// never mutated after publication, so it is safe to read without holding mu.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// UserID returns the user id currently associated with the session, if any.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// LastActiveAt returns the last time the session was read or written.
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// Store is the concurrent, keyed map of session snapshots. The map itself
// is protected by a read-write lock; updates to an individual session
// additionally take that session's own mutex, so concurrent updates to
// different sessions never block each other.
type Store struct {
	defaults Defaults
	persist  Persister

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}

	now func() time.Time
}

// NewStore constructs an empty store seeded with the given process-wide
// defaults. A nil persister is replaced with the no-op implementation.
func NewStore(defaults Defaults, persist Persister) *Store {
	if persist == nil {
		persist = NoopPersister{}
	}
	return &Store{
		defaults: defaults,
		persist:  persist,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// GetOrCreate returns the session for id, allocating and persisting a fresh
// default snapshot on first access. Idempotent: a second call with the same
// id returns the same *Session.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		st.touch(sess)
		return sess
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok = st.sessions[id]; ok {
		st.touchLocked(sess)
		return sess
	}
	sess = &Session{
		ID:           id,
		snapshot:     st.defaults.snapshot(),
		lastActiveAt: st.now(),
	}
	st.sessions[id] = sess
	st.persist.Save(id, sess.snapshot)
	return sess
}

func (st *Store) touch(sess *Session) {
	sess.mu.Lock()
	sess.lastActiveAt = st.now()
	sess.mu.Unlock()
}

func (st *Store) touchLocked(sess *Session) { st.touch(sess) }

// Update applies fn to the session's current snapshot and atomically
// publishes the result. Concurrent Updates to the same session are
// serialized by the session's own mutex; updates to different sessions never
// contend with one another.
func (st *Store) Update(id string, fn func(*Snapshot) *Snapshot) *Snapshot {
	sess := st.GetOrCreate(id)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next := fn(sess.snapshot)
	sess.snapshot = next
	sess.lastActiveAt = st.now()
	st.persist.Save(id, next)
	return next
}

// SetUser associates id with userID, moving it out of any previous user's
// index entry. An empty userID clears the association.
func (st *Store) SetUser(id, userID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return
	}

	sess.mu.Lock()
	prev := sess.userID
	sess.userID = userID
	sess.mu.Unlock()

	if prev != "" {
		if set, ok := st.byUser[prev]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(st.byUser, prev)
			}
		}
	}
	if userID != "" {
		set, ok := st.byUser[userID]
		if !ok {
			set = make(map[string]struct{})
			st.byUser[userID] = set
		}
		set[id] = struct{}{}
	}
}

// GetByUser returns every session currently associated with userID.
func (st *Store) GetByUser(userID string) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	set, ok := st.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(set))
	for id := range set {
		if sess, ok := st.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// Delete removes a session and its user-index entry, if any.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return
	}
	delete(st.sessions, id)

	sess.mu.Lock()
	userID := sess.userID
	sess.mu.Unlock()

	if userID != "" {
		if set, ok := st.byUser[userID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(st.byUser, userID)
			}
		}
	}
	st.persist.Delete(id)
}

// CleanupExpired removes every session whose LastActiveAt is older than
// maxAge and returns the count removed. A naive (no-timezone) last-active
// timestamp is treated as UTC by virtue of time.Now always returning a
// located time; callers supplying persisted timestamps must normalize to UTC
// before constructing them. CleanupExpired never blocks on an in-flight
// Update: it only ever takes the session's mutex for the instant needed to
// read lastActiveAt.
func (st *Store) CleanupExpired(maxAge time.Duration) int {
	cutoff := st.now().Add(-maxAge)

	st.mu.RLock()
	candidates := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		candidates = append(candidates, sess)
	}
	st.mu.RUnlock()

	expired := make([]string, 0)
	for _, sess := range candidates {
		sess.mu.Lock()
		last := sess.lastActiveAt
		sess.mu.Unlock()
		if last.Before(cutoff) {
			expired = append(expired, sess.ID)
		}
	}

	for _, id := range expired {
		st.Delete(id)
	}
	return len(expired)
}
