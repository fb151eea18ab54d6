package domain

import (
	"fmt"
	"time"
)

type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncInProgress SyncStatus = "in_progress"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
)

func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed
}

type SyncRequest struct {
	Key          string         `json:"key" binding:"required"`
	SourceDomain string         `json:"source_domain" binding:"required"`
	TargetDomain string         `json:"target_domain" binding:"required"`
	Payload      map[string]any `json:"payload"`
	SyncType     string         `json:"sync_type"`
	Priority     int            `json:"priority"`
}

func (r *SyncRequest) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidRequest)
	}
	if r.SourceDomain == "" || r.TargetDomain == "" {
		return fmt.Errorf("%w: source_domain and target_domain are required", ErrInvalidRequest)
	}
	if r.SyncType == "" {
		r.SyncType = "full"
	}
	return nil
}

type StateSyncRecord struct {
	SyncID       string         `json:"sync_id"`
	Key          string         `json:"key"`
	SourceDomain string         `json:"source_domain"`
	TargetDomain string         `json:"target_domain"`
	Payload      map[string]any `json:"payload,omitempty"`
	SyncType     string         `json:"sync_type"`
	Priority     int            `json:"priority"`
	Status       SyncStatus     `json:"status"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

var syncTransitions = map[SyncStatus][]SyncStatus{
	SyncPending:    {SyncInProgress, SyncCompleted, SyncFailed},
	SyncInProgress: {SyncCompleted, SyncFailed},
}

// Transition moves the record to the next status. Terminal records never change.
func (r *StateSyncRecord) Transition(to SyncStatus, now time.Time) error {
	for _, allowed := range syncTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			r.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
}

// Fail moves the record to failed and stores the reason.
func (r *StateSyncRecord) Fail(reason string, now time.Time) error {
	if err := r.Transition(SyncFailed, now); err != nil {
		return err
	}
	if reason == "" {
		reason = "state sync failed"
	}
	r.Error = reason
	return nil
}

// SyncRecordKey is the store key mirroring a sync record.
func SyncRecordKey(syncID string) string {
	return "state_sync:record:" + syncID
}
