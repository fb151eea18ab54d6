package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// Checker scores instances by probing their health check URL once.
type Checker struct {
	client *http.Client
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{client: &http.Client{Timeout: timeout}}
}

// Score is 100 without a health check URL or on a 200 response, 0 on any
// other response or transport failure, and 50 when no probe could be built.
func (c *Checker) Score(ctx context.Context, instance *domain.ServiceInstance) int {
	if instance.HealthCheckURL == "" {
		return domain.HealthScoreHealthy
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instance.HealthCheckURL, nil)
	if err != nil {
		slog.Warn("health check not attempted", "instance_id", instance.ID, "error", err)
		return domain.HealthScoreUnknown
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("health check failed", "instance_id", instance.ID, "error", err)
		return domain.HealthScoreUnhealthy
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return domain.HealthScoreUnhealthy
	}
	return domain.HealthScoreHealthy
}
