package domain

import (
	"errors"
	"fmt"
)

// ConflictError is returned when an instance id is already registered under
// another service name.
type ConflictError struct {
	InstanceID   string `json:"instance_id"`
	Requested    string `json:"requested_service"`
	RegisteredBy string `json:"registered_service"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("instance %s is registered under %s, cannot register under %s",
		e.InstanceID, e.RegisteredBy, e.Requested)
}

func (e *ConflictError) Unwrap() error {
	return ErrInstanceConflict
}

var (
	ErrNoInstancesAvailable = errors.New("no instances available")
	ErrInstanceConflict     = errors.New("instance registered under another service")
	ErrInvalidStrategy      = errors.New("invalid load balancing strategy")
	ErrInvalidLimitType     = errors.New("invalid rate limit type")
	ErrStoreUnavailable     = errors.New("backing store unavailable")
	ErrKeyNotFound          = errors.New("key not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already exists")
	ErrSyncNotFound         = errors.New("sync record not found")
	ErrInvalidTransition    = errors.New("invalid sync status transition")
	ErrRouteNotFound        = errors.New("route not found")
	ErrDispatchFailure      = errors.New("dispatch failed")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidTimeRange     = errors.New("invalid time range")
)
