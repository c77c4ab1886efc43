package memory

import (
	"sync"

	"scorm-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[app.SessionKey]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(key app.SessionKey, create func() *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, false
	}
	session := create()
	s.sessions[key] = session
	return session, true
}

func (s *SessionStore) Get(key app.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(key app.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		return
	}
	if session.IsIdle() {
		delete(s.sessions, key)
		session.Close()
	}
}
