package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/http/middleware"
	"github.com/apascualco/trafficcop/internal/infrastructure/memory"
	"github.com/apascualco/trafficcop/internal/infrastructure/proxy"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine   *gin.Engine
	kv       *memory.KVStore
	registry *application.Registry
	counters *application.Counters
}

func newFixture(t *testing.T, routeList []domain.APIRoute, userLimit int) *fixture {
	t.Helper()

	kv := memory.NewKVStore()
	counters := application.NewCounters()
	registry := application.NewRegistry(kv, nil)
	balancer := application.NewLoadBalancer(registry, kv, application.WithBalancerCounters(counters))
	limiter := application.NewRateLimiter(kv, nil)
	analytics := application.NewTrafficAnalytics(memory.NewEventLog(100), counters)
	table, err := application.NewRouteTable(routeList)
	require.NoError(t, err)

	router := application.NewRouter(
		application.RouterConfig{RateLimitEnabled: userLimit > 0, UserLimit: userLimit},
		limiter, table, balancer, proxy.NewDispatcher(time.Second),
		application.WithEventRecorder(analytics),
		application.WithRouterCounters(counters),
	)

	engine := gin.New()
	engine.GET("/ready", ReadyHandler(kv))

	instances := NewInstanceHandler(registry, balancer)
	engine.GET("/services", instances.Services)
	engine.POST("/services/:service/instances", instances.Register)
	engine.GET("/services/:service/instances", instances.List)
	engine.DELETE("/services/:service/instances/:id", instances.Unregister)
	engine.GET("/services/:service/select", instances.Select)
	engine.GET("/services/:service/health", instances.Health)

	ratelimit := NewRateLimitHandler(limiter)
	engine.POST("/ratelimit/check", ratelimit.Check)
	engine.POST("/ratelimit/reset", ratelimit.Reset)

	sessions := NewSessionHandler(application.NewSessionManager(memory.NewSessionStore(), time.Hour, counters, nil))
	engine.POST("/sessions", sessions.Create)
	engine.GET("/sessions/:id", sessions.Get)
	engine.PATCH("/sessions/:id", sessions.Update)
	engine.DELETE("/sessions/:id", sessions.Destroy)

	state := NewStateHandler(application.NewStateSynchronizer(memory.NewStateStore(), kv, time.Hour, counters, nil))
	engine.POST("/state/sync", state.Sync)
	engine.GET("/state/sync/:id", state.Status)

	stats := NewAnalyticsHandler(analytics, table)
	engine.GET("/routes", stats.Routes)
	engine.GET("/analytics", stats.Summary)

	engine.NoRoute(middleware.Identity(nil), NewGatewayHandler(router).Handle)

	return &fixture{engine: engine, kv: kv, registry: registry, counters: counters}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func backendInstance(t *testing.T, id string, handler http.HandlerFunc) domain.ServiceInstance {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return domain.ServiceInstance{ID: id, Host: host, Port: p, Weight: 1}
}

func TestReady(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	w := f.do(t, http.MethodGet, "/ready", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode[ReadyResponse](t, w).Status)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestReady_StoreDown(t *testing.T) {
	engine := gin.New()
	engine.GET("/ready", ReadyHandler(downStore{}))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestInstances_RegisterWeight(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		status int
		want   int
	}{
		{"omitted weight gets default", map[string]any{"id": "a", "host": "h", "port": 1}, http.StatusCreated, domain.DefaultWeight},
		{"explicit zero is kept", map[string]any{"id": "drain-1", "host": "h", "port": 2, "weight": 0}, http.StatusCreated, 0},
		{"explicit weight", map[string]any{"id": "b", "host": "h", "port": 3, "weight": 5}, http.StatusCreated, 5},
		{"negative weight", map[string]any{"id": "c", "host": "h", "port": 4, "weight": -1}, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, domain.DefaultRoutes(), 0)

			w := f.do(t, http.MethodPost, "/services/users/instances", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusCreated {
				return
			}
			assert.Equal(t, tt.want, decode[RegisterInstanceResponse](t, w).Instance.Weight)

			stored, ok := f.registry.GetInstance("users", tt.body["id"].(string))
			require.True(t, ok)
			assert.Equal(t, tt.want, stored.Weight)
		})
	}
}

func TestHealth(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", HealthHandler(time.Now(), "1.2.3", "abc", "memory"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "memory", body.Store)
}

func TestInstances_Lifecycle(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	w := f.do(t, http.MethodPost, "/services/orders/instances", map[string]any{"id": "orders-1", "host": "10.0.0.1", "port": 8080})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[RegisterInstanceResponse](t, w)
	assert.True(t, created.Mirrored)
	assert.Equal(t, 1, created.Instance.Weight)

	w = f.do(t, http.MethodGet, "/services/orders/instances", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders-1")

	w = f.do(t, http.MethodGet, "/services/orders/select?strategy=weighted", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"strategy":"weighted"`)

	w = f.do(t, http.MethodGet, "/services/orders/health", nil)
	health := decode[domain.ServiceHealth](t, w)
	assert.Equal(t, 1, health.HealthyInstances)
	assert.Equal(t, 100.0, health.HealthPercentage)

	w = f.do(t, http.MethodGet, "/services", nil)
	assert.Contains(t, w.Body.String(), `"orders"`)

	w = f.do(t, http.MethodDelete, "/services/orders/instances/orders-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/services/orders/instances/orders-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/services/orders/select", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", decode[ErrorResponse](t, w).Error)
}

func TestInstances_Errors(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	w := f.do(t, http.MethodPost, "/services/orders/instances", domain.ServiceInstance{ID: "x", Host: "h", Port: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/services/orders/instances",
		domain.ServiceInstance{ID: "shared", Host: "h", Port: 1}).Code)
	w = f.do(t, http.MethodPost, "/services/billing/instances", domain.ServiceInstance{ID: "shared", Host: "h", Port: 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "instance_conflict", decode[ErrorResponse](t, w).Error)

	w = f.do(t, http.MethodGet, "/services/orders/select?strategy=fastest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit_CheckAndReset(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)
	check := CheckRateLimitRequest{LimitType: "per_user", Identifier: "u1", Limit: 2}

	w := f.do(t, http.MethodPost, "/ratelimit/check", check)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/ratelimit/check", check).Code)

	w = f.do(t, http.MethodPost, "/ratelimit/check", check)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":false`)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/ratelimit/reset", ResetRateLimitRequest{Identifier: "u1"}).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/ratelimit/check", check).Code)
}

func TestRateLimit_InvalidRequests(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"unknown type", "/ratelimit/check", CheckRateLimitRequest{LimitType: "per_planet", Identifier: "x", Limit: 1}},
		{"missing identifier", "/ratelimit/check", CheckRateLimitRequest{LimitType: "per_ip", Limit: 1}},
		{"non positive limit", "/ratelimit/check", map[string]any{"limit_type": "global", "limit": -1}},
		{"empty reset", "/ratelimit/reset", ResetRateLimitRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, tt.path, tt.body).Code)
		})
	}

	w := f.do(t, http.MethodPost, "/ratelimit/check", CheckRateLimitRequest{LimitType: "global", Limit: 1})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessions_CRUD(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	w := f.do(t, http.MethodPost, "/sessions", domain.CreateSessionRequest{
		SessionID: "s1", UserID: "u1", Data: map[string]any{"cart": 1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, domain.SessionActive, decode[domain.Session](t, w).Status)

	w = f.do(t, http.MethodPost, "/sessions", domain.CreateSessionRequest{SessionID: "s1", UserID: "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPatch, "/sessions/s1", UpdateSessionRequest{Data: map[string]any{"step": "pay"}})
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[domain.Session](t, w)
	assert.Equal(t, "pay", session.Data["step"])
	assert.EqualValues(t, 1, session.Data["cart"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/sessions/s1", nil).Code)
	assert.Equal(t, int64(1), f.counters.Snapshot().ActiveSessions)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/sessions/s1", UpdateSessionRequest{Data: map[string]any{}}).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/sessions", map[string]any{"session_type": "web"}).Code)
}

func TestState_SyncAndStatus(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	w := f.do(t, http.MethodPost, "/state/sync", domain.SyncRequest{
		Key: "user:1", SourceDomain: "auth", TargetDomain: "billing", Payload: map[string]any{"plan": "pro"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	record := decode[domain.StateSyncRecord](t, w)
	assert.Equal(t, domain.SyncCompleted, record.Status)

	w = f.do(t, http.MethodGet, "/state/sync/"+record.SyncID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, record.SyncID, decode[domain.StateSyncRecord](t, w).SyncID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/state/sync/unknown", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/state/sync", map[string]any{"key": "k"}).Code)
}

func TestGateway_RoutesToInstance(t *testing.T) {
	f := newFixture(t, []domain.APIRoute{{Method: "GET", Path: "/api/v1/users/{id}", Service: "users"}}, 10)

	instance := backendInstance(t, "users-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path": r.URL.Path,
			"user": r.Header.Get("X-User-ID"),
		})
	})
	require.NoError(t, f.registry.Register(context.Background(), "users", instance))

	w := f.do(t, http.MethodGet, "/api/v1/users/42", nil, middleware.HeaderUserID, "alice")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "users-1", w.Header().Get(HeaderServedBy))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	body := decode[map[string]string](t, w)
	assert.Equal(t, "/api/v1/users/42", body["path"])
	assert.Equal(t, "alice", body["user"])

	w = f.do(t, http.MethodGet, "/analytics?range=all", nil)
	summary := decode[domain.AnalyticsSummary](t, w)
	assert.Equal(t, 1, summary.TotalRequests)
	assert.Equal(t, 1, summary.UniqueUsers)
}

func TestGateway_Failures(t *testing.T) {
	f := newFixture(t, []domain.APIRoute{{Method: "GET", Path: "/api/v1/users/{id}", Service: "users"}}, 1)

	w := f.do(t, http.MethodGet, "/api/v1/unknown", nil, middleware.HeaderUserID, "bob")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route_not_found", decode[ErrorResponse](t, w).Error)

	w = f.do(t, http.MethodGet, "/api/v1/users/1", nil, middleware.HeaderUserID, "carol")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/users/1", nil, middleware.HeaderUserID, "carol")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = f.do(t, http.MethodGet, "/api/v1/users/1", nil, middleware.HeaderUserID, "dave", HeaderStrategy, "fastest")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, w).Error)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = f.do(t, http.MethodGet, "/analytics?range=all", nil)
	summary := decode[domain.AnalyticsSummary](t, w)
	assert.Equal(t, 4, summary.TotalRequests)
}

func TestAnalytics_RoutesAndRange(t *testing.T) {
	f := newFixture(t, domain.DefaultRoutes(), 0)

	w := f.do(t, http.MethodGet, "/routes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/sessions")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/analytics?range=fortnight", nil).Code)

	w = f.do(t, http.MethodGet, "/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.AnalyticsSource("counters"), decode[domain.AnalyticsSummary](t, w).Source)
}
