package domain

import "time"

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
)

type Session struct {
	ID        string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"session_type"`
	Data      map[string]any `json:"data"`
	Status    SessionStatus  `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TTL returns the time left before the session expires, never negative.
func (s *Session) TTL(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type CreateSessionRequest struct {
	SessionID  string         `json:"session_id"`
	UserID     string         `json:"user_id" binding:"required"`
	Type       string         `json:"session_type"`
	Data       map[string]any `json:"data"`
	TTLSeconds int            `json:"ttl_seconds"`
}

// SessionKey is the store key of a session.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}
