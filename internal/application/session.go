package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/google/uuid"
)

type SessionManager struct {
	store      domain.SessionStore
	defaultTTL time.Duration
	counters   *Counters
	metrics    Metrics
	now        func() time.Time
}

func NewSessionManager(store domain.SessionStore, defaultTTL time.Duration, counters *Counters, metrics Metrics) *SessionManager {
	if counters == nil {
		counters = NewCounters()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &SessionManager{
		store:      store,
		defaultTTL: defaultTTL,
		counters:   counters,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Create stores a new active session. A missing id is generated and a
// non-positive ttl falls back to the default.
func (m *SessionManager) Create(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	id := req.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}

	now := m.now().UTC()
	session := &domain.Session{
		ID:        id,
		UserID:    req.UserID,
		Type:      req.Type,
		Data:      data,
		Status:    domain.SessionActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.store.CreateSession(ctx, session, ttl); err != nil {
		return nil, storeError(err, domain.ErrSessionExists)
	}

	m.metrics.ActiveSessions(m.counters.SessionOpened())
	slog.Info("session created", "session_id", id, "user_id", req.UserID, "ttl", ttl)
	return session, nil
}

func (m *SessionManager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, domain.ErrSessionNotFound)
	}
	return session, nil
}

// Update merges data into the session without touching its expiry.
func (m *SessionManager) Update(ctx context.Context, sessionID string, data map[string]any) (*domain.Session, error) {
	session, err := m.store.UpdateSession(ctx, sessionID, data)
	if err != nil {
		return nil, storeError(err, domain.ErrSessionNotFound)
	}
	return session, nil
}

func (m *SessionManager) Destroy(ctx context.Context, sessionID string) (bool, error) {
	removed, err := m.store.DestroySession(ctx, sessionID)
	if err != nil {
		return false, storeError(err)
	}
	if removed {
		m.metrics.ActiveSessions(m.counters.SessionClosed())
		slog.Info("session destroyed", "session_id", sessionID)
	}
	return removed, nil
}

// storeError passes the expected sentinels through and marks anything else
// as a store failure.
func storeError(err error, passthrough ...error) error {
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
