package server

import (
	"errors"
	"sync"
	"time"

	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/store"
	"github.com/google/uuid"
)

var (
	errWorkerStopped   = errors.New("server: worker stopped")
	errTooManySessions = errors.New("server: session limit reached")
)

// Session represents a client workspace with its own store.
type Session struct {
	ID      string
	Name    string
	Store   *store.Store
	Env     store.Ptr
	Created time.Time
}

// SessionStore manages sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	field    field.Field
	max      int
}

// NewSessionStore creates a session store whose sessions use f. A max of
// zero or less means unlimited.
func NewSessionStore(f field.Field, max int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		field:    f,
		max:      max,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) (*Session, error) {
	st := store.New(s.field)
	session := &Session{
		ID:      uuid.NewString(),
		Name:    name,
		Store:   st,
		Env:     st.Nil(),
		Created: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, errTooManySessions
	}
	s.sessions[session.ID] = session
	return session, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy removes a session and reports whether it existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
