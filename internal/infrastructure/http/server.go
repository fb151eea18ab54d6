package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/config"
	"github.com/apascualco/trafficcop/internal/infrastructure/healthcheck"
	"github.com/apascualco/trafficcop/internal/infrastructure/http/handler"
	"github.com/apascualco/trafficcop/internal/infrastructure/http/middleware"
	"github.com/apascualco/trafficcop/internal/infrastructure/jwt"
	"github.com/apascualco/trafficcop/internal/infrastructure/memory"
	"github.com/apascualco/trafficcop/internal/infrastructure/observability"
	"github.com/apascualco/trafficcop/internal/infrastructure/proxy"
	"github.com/apascualco/trafficcop/internal/infrastructure/redis"
	"github.com/apascualco/trafficcop/internal/infrastructure/routes"
	"github.com/apascualco/trafficcop/internal/infrastructure/tracing"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const InternalPrefix = "/internal/trafficcop"

// Stores are the backing stores every component shares.
type Stores struct {
	Name     string
	KV       domain.KVStore
	Sessions domain.SessionStore
	State    domain.StateStore
	Events   domain.EventLog
}

func MemoryStores(maxEvents int) Stores {
	return Stores{
		Name:     "memory",
		KV:       memory.NewKVStore(),
		Sessions: memory.NewSessionStore(),
		State:    memory.NewStateStore(),
		Events:   memory.NewEventLog(maxEvents),
	}
}

func RedisStores(client *redis.Client, maxEvents int) Stores {
	return Stores{
		Name:     "redis",
		KV:       redis.NewKVStore(client.Client),
		Sessions: redis.NewSessionStore(client.Client),
		State:    redis.NewStateStore(client.Client),
		Events:   redis.NewEventLog(client.Client, maxEvents),
	}
}

type Server struct {
	config      *config.Config
	router      *gin.Engine
	httpServer  *http.Server
	startTime   time.Time
	stores      Stores
	redisClient *redis.Client
	exporter    tracing.SpanExporter
	verifier    *jwt.Verifier
	metrics     *prometheus.Registry

	registry  *application.Registry
	balancer  *application.LoadBalancer
	limiter   *application.RateLimiter
	sessions  *application.SessionManager
	sync      *application.StateSynchronizer
	analytics *application.TrafficAnalytics
	routes    *application.RouteTable
	gateway   *application.Router
}

// NewServer connects to Redis when REDIS_URL is set and falls back to
// process-local stores otherwise.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not configured, using in-memory stores (state is not shared between processes)")
		return NewServerWithStores(cfg, MemoryStores(cfg.AnalyticsMaxEvents))
	}

	client, err := redis.NewClient(cfg.RedisURL, redis.WithClientName(cfg.TraceServiceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	slog.Info("redis stores enabled")

	s, err := NewServerWithStores(cfg, RedisStores(client, cfg.AnalyticsMaxEvents))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.redisClient = client
	return s, nil
}

func NewServerWithStores(cfg *config.Config, stores Stores) (*Server, error) {
	defaultStrategy, err := domain.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_STRATEGY: %w", err)
	}

	routeList, err := routes.Load(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}
	table, err := application.NewRouteTable(routeList)
	if err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}
	slog.Info("route table loaded", "routes", len(routeList), "file", cfg.RoutesFile)

	var verifier *jwt.Verifier
	if cfg.JWTPublicKey != "" {
		verifier, err = jwt.NewVerifier(cfg.JWTPublicKey, cfg.JWTServiceAudience)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT verifier: %w", err)
		}
		slog.Info("jwt authentication enabled", "service_audience", cfg.JWTServiceAudience)
	} else {
		slog.Warn("JWT_PUBLIC_KEY not configured, internal API is unauthenticated")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	exporter := tracing.NewExporter(tracing.Config{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceOTLPEndpoint,
		ServiceName: cfg.TraceServiceName,
	})

	counters := application.NewCounters()
	instances := application.NewRegistry(stores.KV, metrics)
	balancer := application.NewLoadBalancer(instances, stores.KV,
		application.WithHealthChecker(healthcheck.NewChecker(cfg.HealthCheckTimeout)),
		application.WithBalancerMetrics(metrics),
		application.WithBalancerCounters(counters),
	)
	limiter := application.NewRateLimiter(stores.KV, metrics)
	analytics := application.NewTrafficAnalytics(stores.Events, counters)

	gateway := application.NewRouter(
		application.RouterConfig{
			RateLimitEnabled: cfg.RateLimitEnabled,
			UserLimit:        cfg.RateLimitUserRPM,
			DefaultStrategy:  defaultStrategy,
		},
		limiter,
		table,
		balancer,
		proxy.NewDispatcher(cfg.DispatchTimeout, proxy.WithSpanExporter(exporter)),
		application.WithConnectionTracker(application.NewConnectionTracker(stores.KV, cfg.ConnectionGaugeTTL)),
		application.WithEventRecorder(analytics),
		application.WithRouterCounters(counters),
		application.WithRouterMetrics(metrics),
	)

	s := &Server{
		config:    cfg,
		startTime: time.Now(),
		stores:    stores,
		exporter:  exporter,
		verifier:  verifier,
		metrics:   registry,
		registry:  instances,
		balancer:  balancer,
		limiter:   limiter,
		sessions:  application.NewSessionManager(stores.Sessions, cfg.SessionDefaultTTL, counters, metrics),
		sync:      application.NewStateSynchronizer(stores.State, stores.KV, cfg.SyncRecordTTL, counters, metrics),
		analytics: analytics,
		routes:    table,
		gateway:   gateway,
	}
	s.setupRouter()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	if s.config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Trace(s.exporter))
	s.router.Use(middleware.Logger())

	s.router.GET("/health", handler.HealthHandler(s.startTime, s.config.Version, s.config.Commit, s.stores.Name))
	s.router.GET("/ready", handler.ReadyHandler(s.stores.KV))
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))

	s.setupInternalRoutes()
	s.setupGatewayRoute()
}

func (s *Server) setupInternalRoutes() {
	internal := s.router.Group(InternalPrefix)
	if s.verifier != nil {
		internal.Use(middleware.NewServiceAuthMiddleware(s.verifier).Authenticate())
	}
	if s.config.RateLimitEnabled {
		internal.Use(middleware.RateLimit(s.limiter, s.config.RateLimitIPRPM))
	}

	instances := handler.NewInstanceHandler(s.registry, s.balancer)
	internal.GET("/services", instances.Services)
	internal.POST("/services/:service/instances", instances.Register)
	internal.GET("/services/:service/instances", instances.List)
	internal.DELETE("/services/:service/instances/:id", instances.Unregister)
	internal.GET("/services/:service/select", instances.Select)
	internal.GET("/services/:service/health", instances.Health)

	ratelimit := handler.NewRateLimitHandler(s.limiter)
	internal.POST("/ratelimit/check", ratelimit.Check)
	internal.POST("/ratelimit/reset", ratelimit.Reset)

	sessions := handler.NewSessionHandler(s.sessions)
	internal.POST("/sessions", sessions.Create)
	internal.GET("/sessions/:id", sessions.Get)
	internal.PATCH("/sessions/:id", sessions.Update)
	internal.DELETE("/sessions/:id", sessions.Destroy)

	state := handler.NewStateHandler(s.sync)
	internal.POST("/state/sync", state.Sync)
	internal.GET("/state/sync/:id", state.Status)

	analytics := handler.NewAnalyticsHandler(s.analytics, s.routes)
	internal.GET("/routes", analytics.Routes)
	internal.GET("/analytics", analytics.Summary)
}

func (s *Server) setupGatewayRoute() {
	var identity middleware.UserVerifier
	if s.verifier != nil {
		identity = s.verifier
	}
	gateway := handler.NewGatewayHandler(s.gateway)
	s.router.NoRoute(middleware.Identity(identity), gateway.Handle)
}

// Hydrate loads the instances mirrored by peer processes for every service
// of the route table.
func (s *Server) Hydrate(ctx context.Context) {
	seen := make(map[string]bool)
	for _, route := range s.routes.Routes() {
		if seen[route.Service] {
			continue
		}
		seen[route.Service] = true

		n, err := s.registry.Refresh(ctx, route.Service)
		if err != nil {
			slog.Warn("failed to hydrate service instances", "service", route.Service, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("hydrated service instances", "service", route.Service, "instances", n)
		}
	}
}

func (s *Server) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	s.Hydrate(ctx)
	cancel()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	errs = append(errs, s.exporter.Shutdown(ctx))
	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}
	return errors.Join(errs...)
}
