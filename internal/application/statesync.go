package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/google/uuid"
)

const defaultSyncCacheSize = 1024

// StateSynchronizer propagates payloads between domains through the state
// store and tracks each attempt as a sync record. It never retries.
type StateSynchronizer struct {
	store     domain.StateStore
	kv        domain.KVStore
	recordTTL time.Duration
	counters  *Counters
	metrics   Metrics
	now       func() time.Time

	mu       sync.RWMutex
	records  map[string]domain.StateSyncRecord
	order    []string
	capacity int
}

// NewStateSynchronizer mirrors finished records to kv for recordTTL when kv
// is not nil.
func NewStateSynchronizer(store domain.StateStore, kv domain.KVStore, recordTTL time.Duration, counters *Counters, metrics Metrics) *StateSynchronizer {
	if counters == nil {
		counters = NewCounters()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &StateSynchronizer{
		store:     store,
		kv:        kv,
		recordTTL: recordTTL,
		counters:  counters,
		metrics:   metrics,
		now:       time.Now,
		records:   make(map[string]domain.StateSyncRecord),
		capacity:  defaultSyncCacheSize,
	}
}

// Sync always returns a record in a terminal status; failures are reported
// through the record, not as an error.
func (s *StateSynchronizer) Sync(ctx context.Context, req domain.SyncRequest) domain.StateSyncRecord {
	invalid := req.Validate()
	now := s.now().UTC()
	record := domain.StateSyncRecord{
		SyncID:       uuid.New().String(),
		Key:          req.Key,
		SourceDomain: req.SourceDomain,
		TargetDomain: req.TargetDomain,
		Payload:      req.Payload,
		SyncType:     req.SyncType,
		Priority:     req.Priority,
		Status:       domain.SyncPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.remember(record)

	if invalid != nil {
		_ = record.Fail(invalid.Error(), s.now().UTC())
		return s.finish(ctx, record)
	}

	_ = record.Transition(domain.SyncInProgress, s.now().UTC())
	s.remember(record)

	ok, err := s.store.SyncState(ctx, req)
	switch {
	case err != nil:
		_ = record.Fail(err.Error(), s.now().UTC())
	case !ok:
		_ = record.Fail("state store rejected sync", s.now().UTC())
	default:
		_ = record.Transition(domain.SyncCompleted, s.now().UTC())
	}
	return s.finish(ctx, record)
}

func (s *StateSynchronizer) finish(ctx context.Context, record domain.StateSyncRecord) domain.StateSyncRecord {
	s.remember(record)
	s.counters.StateSynced()
	s.metrics.SyncFinished(record.Status)

	if record.Status == domain.SyncFailed {
		slog.Warn("state sync failed",
			"sync_id", record.SyncID,
			"key", record.Key,
			"source", record.SourceDomain,
			"target", record.TargetDomain,
			"error", record.Error,
		)
	} else {
		slog.Info("state sync completed",
			"sync_id", record.SyncID,
			"key", record.Key,
			"source", record.SourceDomain,
			"target", record.TargetDomain,
		)
	}

	s.mirror(ctx, record)
	return record
}

// Status returns the record of syncID or domain.ErrSyncNotFound.
func (s *StateSynchronizer) Status(ctx context.Context, syncID string) (domain.StateSyncRecord, error) {
	s.mu.RLock()
	record, ok := s.records[syncID]
	s.mu.RUnlock()
	if ok {
		return record, nil
	}

	if s.kv == nil {
		return domain.StateSyncRecord{}, fmt.Errorf("%w: %s", domain.ErrSyncNotFound, syncID)
	}
	raw, err := s.kv.Get(ctx, domain.SyncRecordKey(syncID))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return domain.StateSyncRecord{}, fmt.Errorf("%w: %s", domain.ErrSyncNotFound, syncID)
	}
	if err != nil {
		return domain.StateSyncRecord{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.StateSyncRecord{}, fmt.Errorf("decode sync record %s: %w", syncID, err)
	}
	return record, nil
}

func (s *StateSynchronizer) remember(record domain.StateSyncRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.SyncID]; !exists {
		if len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.records, oldest)
		}
		s.order = append(s.order, record.SyncID)
	}
	s.records[record.SyncID] = record
}

func (s *StateSynchronizer) mirror(ctx context.Context, record domain.StateSyncRecord) {
	if s.kv == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		slog.Warn("failed to encode sync record", "sync_id", record.SyncID, "error", err)
		return
	}
	if err := s.kv.Set(ctx, domain.SyncRecordKey(record.SyncID), payload, s.recordTTL); err != nil {
		slog.Warn("failed to mirror sync record", "sync_id", record.SyncID, "error", err)
	}
}
