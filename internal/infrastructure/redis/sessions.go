package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps sessions as JSON strings under session:{id} with the
// session TTL as key expiry.
type SessionStore struct {
	client redis.UniversalClient
}

func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) CreateSession(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	created, err := s.client.SetNX(ctx, domain.SessionKey(session.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis create session %s: %w", session.ID, err)
	}
	if !created {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, domain.SessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session %s: %w", sessionID, err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// UpdateSession merges data inside a WATCH transaction and keeps the key TTL.
func (s *SessionStore) UpdateSession(ctx context.Context, sessionID string, data map[string]any) (*domain.Session, error) {
	key := domain.SessionKey(sessionID)
	var updated *domain.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var session domain.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return fmt.Errorf("decode session %s: %w", sessionID, err)
		}
		if session.Data == nil {
			session.Data = make(map[string]any, len(data))
		}
		maps.Copy(session.Data, data)

		payload, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessionID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			updated = &session
		}
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("redis update session %s: %w", sessionID, err)
	}
	return updated, nil
}

func (s *SessionStore) DestroySession(ctx context.Context, sessionID string) (bool, error) {
	removed, err := s.client.Del(ctx, domain.SessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete session %s: %w", sessionID, err)
	}
	return removed > 0, nil
}
