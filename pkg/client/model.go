package client

import (
	"errors"
	"fmt"
	"time"
)

type Instance struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
	// Weight is sent only when set; the server applies its default weight
	// to nil, and an explicit zero drains the instance from weighted picks.
	Weight         *int              `json:"weight,omitempty"`
	HealthCheckURL string            `json:"health_check_url,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type RateLimitDecision struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_time"`
	LimitType  string    `json:"limit_type"`
	FailedOpen bool      `json:"failed_open,omitempty"`
}

type Session struct {
	ID        string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"session_type"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

type CreateSessionRequest struct {
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"session_type,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	TTLSeconds int            `json:"ttl_seconds,omitempty"`
}

type SyncRequest struct {
	Key          string         `json:"key"`
	SourceDomain string         `json:"source_domain"`
	TargetDomain string         `json:"target_domain"`
	Payload      map[string]any `json:"payload,omitempty"`
	SyncType     string         `json:"sync_type,omitempty"`
	Priority     int            `json:"priority,omitempty"`
}

type SyncRecord struct {
	SyncID       string    `json:"sync_id"`
	Key          string    `json:"key"`
	SourceDomain string    `json:"source_domain"`
	TargetDomain string    `json:"target_domain"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// APIError is a non-2xx answer of the trafficcop API.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trafficcop: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	}
	return nil
}

// retryable reports whether a later attempt could succeed.
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
