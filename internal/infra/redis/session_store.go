package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"scorm-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions and their timers live in this process; Redis holds a liveness
// marker per attempt so operators can see which attempts are open where.
// The durable attempt state itself goes through StateStore.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string

	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, instance string) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		instance: instance,
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), s.instance, s.ttl).Err()
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
		_ = s.client.Del(context.Background(), s.key(key)).Err()
	}
}

func (s *SessionStore) key(key app.SessionKey) string {
	return "quiz:session:" + key.QuizID + ":" + key.ClientID
}
