package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

// Selector chooses the instance of a service that receives a request.
type Selector interface {
	Select(ctx context.Context, serviceName string, strategy domain.Strategy) (*domain.ServiceInstance, error)
}

type Limiter interface {
	Check(ctx context.Context, limitType domain.LimitType, identifier string, limit int) *domain.RateLimitDecision
}

type EventRecorder interface {
	Record(ctx context.Context, event domain.RequestEvent)
}

type RouterConfig struct {
	RateLimitEnabled bool
	UserLimit        int
	DefaultStrategy  domain.Strategy
}

const anonymousUser = "anonymous"

// Router runs every gateway request through rate limiting, route matching,
// instance selection and dispatch, and records the outcome.
type Router struct {
	config     RouterConfig
	limiter    Limiter
	routes     *RouteTable
	selector   Selector
	dispatcher domain.Dispatcher
	tracker    *ConnectionTracker
	recorder   EventRecorder
	counters   *Counters
	metrics    Metrics
}

type RouterOption func(*Router)

func WithConnectionTracker(tracker *ConnectionTracker) RouterOption {
	return func(r *Router) {
		r.tracker = tracker
	}
}

func WithEventRecorder(recorder EventRecorder) RouterOption {
	return func(r *Router) {
		r.recorder = recorder
	}
}

func WithRouterCounters(counters *Counters) RouterOption {
	return func(r *Router) {
		r.counters = counters
	}
}

func WithRouterMetrics(metrics Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = metrics
	}
}

func NewRouter(cfg RouterConfig, limiter Limiter, routes *RouteTable, selector Selector, dispatcher domain.Dispatcher, opts ...RouterOption) *Router {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = domain.StrategyRoundRobin
	}
	r := &Router{
		config:     cfg,
		limiter:    limiter,
		routes:     routes,
		selector:   selector,
		dispatcher: dispatcher,
		counters:   NewCounters(),
		metrics:    NopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Counters() *Counters {
	return r.counters
}

// Route never returns an error: every failed stage is mapped to a status
// code and a JSON error body without internal details.
func (r *Router) Route(ctx context.Context, req *domain.GatewayRequest) *domain.GatewayResponse {
	start := time.Now()
	resp := r.route(ctx, req)
	resp.Duration = time.Since(start)
	r.record(ctx, req, resp, start)
	return resp
}

func (r *Router) route(ctx context.Context, req *domain.GatewayRequest) *domain.GatewayResponse {
	resp := &domain.GatewayResponse{}

	if r.config.RateLimitEnabled && r.limiter != nil {
		userID := req.UserID
		if userID == "" {
			userID = anonymousUser
		}
		decision := r.limiter.Check(ctx, domain.LimitPerUser, userID, r.config.UserLimit)
		resp.RateLimit = decision
		if !decision.Allowed {
			return failure(resp, http.StatusTooManyRequests, "rate_limit_exceeded", "rate limit exceeded")
		}
	}

	match, err := r.routes.Match(req.Method, req.Path)
	if err != nil {
		return failure(resp, http.StatusNotFound, "route_not_found", "no route for "+req.Method+" "+req.Path)
	}
	resp.Service = match.Route.Service

	strategy := r.config.DefaultStrategy
	if match.Route.Strategy != "" {
		strategy = match.Route.Strategy
	}
	if req.Strategy != "" {
		override, err := domain.ParseStrategy(string(req.Strategy))
		if err != nil {
			return failure(resp, http.StatusBadRequest, "invalid_request", err.Error())
		}
		strategy = override
	}

	instance, err := r.selector.Select(ctx, match.Route.Service, strategy)
	if err != nil {
		if !errors.Is(err, domain.ErrNoInstancesAvailable) {
			slog.Error("instance selection failed", "service", match.Route.Service, "strategy", strategy, "error", err)
		}
		return failure(resp, http.StatusServiceUnavailable, "service_unavailable", "no instance available for "+match.Route.Service)
	}
	resp.Instance = instance

	if r.tracker != nil {
		release := r.tracker.Acquire(ctx, instance.ID)
		defer release()
	}

	forward := *req
	forward.Service = match.Route.Service
	result, err := r.dispatcher.Dispatch(ctx, instance, &forward)
	if err != nil {
		slog.Error("dispatch failed",
			"service", match.Route.Service,
			"instance_id", instance.ID,
			"error", err,
		)
		return failure(resp, http.StatusInternalServerError, "dispatch_failed", "internal error while forwarding request")
	}

	resp.StatusCode = result.StatusCode
	resp.Headers = result.Headers
	resp.Body = result.Body
	return resp
}

func (r *Router) record(ctx context.Context, req *domain.GatewayRequest, resp *domain.GatewayResponse, start time.Time) {
	r.counters.RecordRequest(resp.Success())
	r.metrics.RequestRouted(req.Method, resp.Service, resp.StatusCode, resp.Duration)

	if r.recorder == nil {
		return
	}
	event := domain.RequestEvent{
		Timestamp:    start.UTC(),
		UserID:       req.UserID,
		Method:       req.Method,
		Endpoint:     req.Path,
		Service:      resp.Service,
		StatusCode:   resp.StatusCode,
		ResponseTime: float64(resp.Duration.Microseconds()) / 1000,
	}
	if resp.Instance != nil {
		event.InstanceID = resp.Instance.ID
	}
	r.recorder.Record(ctx, event)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func failure(resp *domain.GatewayResponse, status int, code, message string) *domain.GatewayResponse {
	body, _ := json.Marshal(errorBody{Error: code, Message: message})
	resp.StatusCode = status
	resp.Error = message
	resp.Body = body
	resp.Headers = http.Header{"Content-Type": []string{"application/json"}}
	return resp
}
