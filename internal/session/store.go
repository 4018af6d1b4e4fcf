package session

import (
	"sort"
	"sync"
)

// Store holds the live session table. Implementations must be safe for
// concurrent use; the Manager serializes check-then-insert sequences itself.
type Store interface {
	Get(id string) (*Session, bool)
	Put(s *Session)
	Remove(id string) (*Session, bool)
	List() []*Session
	Len() int
}

// MemoryStore is an in-process Store. Sessions do not survive a restart.
type MemoryStore struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(id string) (*Session, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

func (s *MemoryStore) Put(session *Session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sessions[session.ID()] = session
}

func (s *MemoryStore) Remove(id string) (*Session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return session, ok
}

// List returns the sessions ordered by id.
func (s *MemoryStore) List() []*Session {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.sessions)
}
