package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/redis/go-redis/v9"
)

type stateEnvelope struct {
	Key          string         `json:"key"`
	SourceDomain string         `json:"source_domain"`
	Payload      map[string]any `json:"payload"`
	SyncType     string         `json:"sync_type"`
	Priority     int            `json:"priority"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type syncNotification struct {
	Key          string `json:"key"`
	SourceDomain string `json:"source_domain"`
	SyncType     string `json:"sync_type"`
	Priority     int    `json:"priority"`
}

// StateStore writes state under state:{target}:{key} and announces it on the
// state_sync:{target} channel.
type StateStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewStateStore(client redis.UniversalClient) *StateStore {
	return &StateStore{client: client, now: time.Now}
}

func StateKey(targetDomain, key string) string {
	return "state:" + targetDomain + ":" + key
}

func SyncChannel(targetDomain string) string {
	return "state_sync:" + targetDomain
}

func (s *StateStore) SyncState(ctx context.Context, req domain.SyncRequest) (bool, error) {
	state, err := json.Marshal(stateEnvelope{
		Key:          req.Key,
		SourceDomain: req.SourceDomain,
		Payload:      req.Payload,
		SyncType:     req.SyncType,
		Priority:     req.Priority,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("encode state %s: %w", req.Key, err)
	}
	notification, err := json.Marshal(syncNotification{
		Key:          req.Key,
		SourceDomain: req.SourceDomain,
		SyncType:     req.SyncType,
		Priority:     req.Priority,
	})
	if err != nil {
		return false, fmt.Errorf("encode notification %s: %w", req.Key, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, StateKey(req.TargetDomain, req.Key), state, 0)
		pipe.Publish(ctx, SyncChannel(req.TargetDomain), notification)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis sync state %s: %w", req.Key, err)
	}
	return true, nil
}
