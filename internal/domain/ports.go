package domain

import (
	"context"
	"time"
)

// KVStore is the external key-value store used for rate limit counters,
// mirrored instance lists and connection gauges (output port).
type KVStore interface {
	// Get returns ErrKeyNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; a zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// IncrementCounter atomically increments key, setting ttl when it creates it.
	IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// SessionStore persists sessions including TTL based expiry (output port).
type SessionStore interface {
	// CreateSession returns ErrSessionExists when the id is taken.
	CreateSession(ctx context.Context, session *Session, ttl time.Duration) error
	// GetSession returns ErrSessionNotFound when absent or expired.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// UpdateSession merges data into the stored session, keeping its expiry.
	UpdateSession(ctx context.Context, sessionID string, data map[string]any) (*Session, error)
	// DestroySession reports whether a session was removed.
	DestroySession(ctx context.Context, sessionID string) (bool, error)
}

// StateStore receives state propagated between domains (output port).
type StateStore interface {
	SyncState(ctx context.Context, req SyncRequest) (bool, error)
}

type HealthChecker interface {
	Score(ctx context.Context, instance *ServiceInstance) int
}

// Dispatcher forwards a gateway request to the selected instance.
type Dispatcher interface {
	Dispatch(ctx context.Context, instance *ServiceInstance, req *GatewayRequest) (*DispatchResult, error)
}

// EventLog is a bounded log of recent request events.
type EventLog interface {
	Append(ctx context.Context, event RequestEvent) error
	// Since returns events at or after t, newest first.
	Since(ctx context.Context, t time.Time) ([]RequestEvent, error)
}
