package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

// RateLimiter enforces fixed-window request limits backed by KV counters.
// Every failure of the store fails open.
type RateLimiter struct {
	kv      domain.KVStore
	metrics Metrics
	now     func() time.Time
}

func NewRateLimiter(kv domain.KVStore, metrics Metrics) *RateLimiter {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &RateLimiter{kv: kv, metrics: metrics, now: time.Now}
}

// Check counts one request against the limit of identifier. A denied request
// does not increment the counter.
func (l *RateLimiter) Check(ctx context.Context, limitType domain.LimitType, identifier string, limit int) *domain.RateLimitDecision {
	decision := l.check(ctx, limitType, identifier, limit)
	if decision.FailedOpen() {
		slog.Warn("rate limit check failed open",
			"limit_type", limitType,
			"identifier", identifier,
			"error", decision.Err,
		)
	}
	l.metrics.RateLimitChecked(decision)
	return decision
}

func (l *RateLimiter) check(ctx context.Context, limitType domain.LimitType, identifier string, limit int) *domain.RateLimitDecision {
	now := l.now()
	decision := &domain.RateLimitDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(domain.RateLimitWindow),
		LimitType: limitType,
	}

	key, err := domain.RateLimitKey(limitType, identifier)
	if err != nil {
		decision.Err = err
		return decision
	}

	current, err := l.current(ctx, key)
	if err != nil {
		decision.Err = err
		return decision
	}
	if current >= int64(limit) {
		decision.Allowed = false
		decision.Remaining = 0
		return decision
	}

	count, err := l.kv.IncrementCounter(ctx, key, domain.RateLimitWindow)
	if err != nil {
		decision.Err = fmt.Errorf("%w: increment %s: %w", domain.ErrStoreUnavailable, key, err)
		return decision
	}
	decision.Remaining = max(limit-int(count), 0)
	return decision
}

func (l *RateLimiter) current(ctx context.Context, key string) (int64, error) {
	raw, err := l.kv.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed counter %s: %w", key, err)
	}
	return n, nil
}

// Reset clears the per-API counter when apiEndpoint is set, otherwise the
// per-user counter of identifier.
func (l *RateLimiter) Reset(ctx context.Context, identifier, apiEndpoint string) error {
	limitType, id := domain.LimitPerUser, identifier
	if apiEndpoint != "" {
		limitType, id = domain.LimitPerAPI, apiEndpoint
	}
	key, err := domain.RateLimitKey(limitType, id)
	if err != nil {
		return err
	}
	if err := l.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	slog.Info("rate limit reset", "limit_type", limitType, "identifier", id)
	return nil
}
