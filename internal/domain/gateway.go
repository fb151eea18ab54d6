package domain

import (
	"net/http"
	"time"
)

type GatewayRequest struct {
	Method   string
	Path     string
	RawQuery string
	Host     string
	Headers  http.Header
	Body     []byte
	UserID   string
	ClientIP string
	// Strategy overrides the route's strategy when set. It is caller input
	// and is validated by the router after rate limiting.
	Strategy Strategy
	// Service is filled in by the router once the route is resolved.
	Service string
}

type GatewayResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// Error is a short, client-safe description of a failed stage.
	Error     string
	Service   string
	Instance  *ServiceInstance
	RateLimit *RateLimitDecision
	Duration  time.Duration
}

func (r *GatewayResponse) Success() bool {
	return r.StatusCode < http.StatusBadRequest
}

// DispatchResult is what a Dispatcher got back from the selected instance.
type DispatchResult struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}
