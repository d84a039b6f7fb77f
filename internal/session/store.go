package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wrg-explorer/internal/timeutil"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// Store maps session ids to sessions and evicts idle ones.
type Store struct {
	clock timeutil.Clock
	ttl   time.Duration
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty store. A nil clock uses the wall clock and a
// non-positive ttl uses DefaultTTL.
func NewStore(clock timeutil.Clock, ttl time.Duration, opts Options) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		clock:    clock,
		ttl:      ttl,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session in the NoFile state.
func (st *Store) Create() *Session {
	s := newSession(uuid.NewString(), st.clock.Now(), st.opts)
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	logf("created %s", s.ID)
	return s
}

// Get returns the session with the given id and marks it as used.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	now := st.clock.Now()
	if now.Sub(s.idleSince()) > st.ttl {
		st.Delete(id)
		return nil, ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// GetOrCreate returns the session for id, creating a fresh one when id is
// unknown or expired. created reports which happened.
func (st *Store) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, err := st.Get(id); err == nil {
			return s, false
		}
	}
	return st.Create(), true
}

// Delete drops a session. Unknown ids are ignored.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how
// many were removed.
func (st *Store) Sweep() int {
	now := st.clock.Now()
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if now.Sub(s.idleSince()) > st.ttl {
			delete(st.sessions, id)
			n++
		}
	}
	if n > 0 {
		logf("expired %d sessions, %d live", n, len(st.sessions))
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is cancelled. A
// non-positive interval sweeps at a quarter of the TTL.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = st.ttl / 4
	}
	ticker := st.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			st.Sweep()
		}
	}
}
