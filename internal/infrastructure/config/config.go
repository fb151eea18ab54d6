package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`

	RedisURL string `envconfig:"REDIS_URL" default:""`

	RateLimitEnabled bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitUserRPM int  `envconfig:"RATE_LIMIT_USER_RPM" default:"100"`
	RateLimitIPRPM   int  `envconfig:"RATE_LIMIT_IP_RPM" default:"600"`

	DefaultStrategy    string        `envconfig:"DEFAULT_STRATEGY" default:"round_robin"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	DispatchTimeout    time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"30s"`
	RoutesFile         string        `envconfig:"ROUTES_FILE" default:""`

	AnalyticsMaxEvents int           `envconfig:"ANALYTICS_MAX_EVENTS" default:"10000"`
	SessionDefaultTTL  time.Duration `envconfig:"SESSION_DEFAULT_TTL" default:"1h"`
	SyncRecordTTL      time.Duration `envconfig:"SYNC_RECORD_TTL" default:"24h"`
	ConnectionGaugeTTL time.Duration `envconfig:"CONNECTION_GAUGE_TTL" default:"5m"`

	JWTPublicKey       string `envconfig:"JWT_PUBLIC_KEY"`
	JWTServiceAudience string `envconfig:"JWT_SERVICE_AUDIENCE" default:"trafficcop"`

	TraceExporter     string `envconfig:"TRACE_EXPORTER" default:"none"`
	TraceOTLPEndpoint string `envconfig:"TRACE_OTLP_ENDPOINT" default:"http://localhost:4318/v1/traces"`
	TraceServiceName  string `envconfig:"TRACE_SERVICE_NAME" default:"trafficcop"`

	Version   string `ignored:"true"`
	Commit    string `ignored:"true"`
	BuildDate string `ignored:"true"`
}

func Load(version, commit, buildDate string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Version, cfg.Commit, cfg.BuildDate = version, commit, buildDate
	return &cfg, nil
}
