package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session), now: time.Now}
}

func (s *SessionStore) CreateSession(_ context.Context, session *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(session.ID); ok {
		return domain.ErrSessionExists
	}
	stored := cloneSession(session)
	if stored.ExpiresAt.IsZero() && ttl > 0 {
		stored.ExpiresAt = s.now().Add(ttl)
	}
	s.sessions[session.ID] = stored
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.lookup(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) UpdateSession(_ context.Context, sessionID string, data map[string]any) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.lookup(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Data == nil {
		session.Data = make(map[string]any, len(data))
	}
	maps.Copy(session.Data, data)
	return cloneSession(session), nil
}

func (s *SessionStore) DestroySession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(sessionID); !ok {
		return false, nil
	}
	delete(s.sessions, sessionID)
	return true, nil
}

// lookup must be called with mu held.
func (s *SessionStore) lookup(sessionID string) (*domain.Session, bool) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if session.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return nil, false
	}
	return session, true
}

func cloneSession(session *domain.Session) *domain.Session {
	out := *session
	out.Data = maps.Clone(session.Data)
	return &out
}
