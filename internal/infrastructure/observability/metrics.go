package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports traffic control observations as Prometheus metrics.
type Metrics struct {
	Selections          *prometheus.CounterVec
	InstancesRegistered *prometheus.GaugeVec
	RateLimitChecks     *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	StateSyncs          *prometheus.CounterVec
	RoutedRequests      *prometheus.CounterVec
	RouteDuration       *prometheus.HistogramVec
}

var _ application.Metrics = (*Metrics)(nil)

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		Selections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trafficcop_instance_selections_total",
				Help: "Load balancer selections by service, strategy and result",
			},
			[]string{"service", "strategy", "result"},
		),
		InstancesRegistered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trafficcop_registered_instances",
				Help: "Instances registered per service",
			},
			[]string{"service"},
		),
		RateLimitChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trafficcop_rate_limit_checks_total",
				Help: "Rate limit decisions by limit type and outcome",
			},
			[]string{"limit_type", "outcome"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trafficcop_active_sessions",
				Help: "Sessions created and not yet destroyed by this process",
			},
		),
		StateSyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trafficcop_state_syncs_total",
				Help: "Finished state syncs by status",
			},
			[]string{"status"},
		),
		RoutedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trafficcop_gateway_requests_total",
				Help: "Gateway requests by method, service and status",
			},
			[]string{"method", "service", "status"},
		),
		RouteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trafficcop_gateway_request_duration_seconds",
				Help:    "Gateway request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "service"},
		),
	}
}

func (m *Metrics) InstanceSelected(service string, strategy domain.Strategy, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoInstancesAvailable):
		result = "no_instances"
	default:
		result = "error"
	}
	m.Selections.WithLabelValues(service, string(strategy), result).Inc()
}

func (m *Metrics) RegisteredInstances(service string, count int) {
	m.InstancesRegistered.WithLabelValues(service).Set(float64(count))
}

func (m *Metrics) RateLimitChecked(decision *domain.RateLimitDecision) {
	outcome := "allowed"
	switch {
	case decision.FailedOpen():
		outcome = "failed_open"
	case !decision.Allowed:
		outcome = "denied"
	}
	m.RateLimitChecks.WithLabelValues(string(decision.LimitType), outcome).Inc()
}

func (m *Metrics) ActiveSessions(count int64) {
	m.SessionsActive.Set(float64(count))
}

func (m *Metrics) SyncFinished(status domain.SyncStatus) {
	m.StateSyncs.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RequestRouted(method, service string, status int, duration time.Duration) {
	if service == "" {
		service = "unmatched"
	}
	m.RoutedRequests.WithLabelValues(method, service, strconv.Itoa(status)).Inc()
	m.RouteDuration.WithLabelValues(method, service).Observe(duration.Seconds())
}
