package application

import (
	"context"
	"testing"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_CountsDownThenDenies(t *testing.T) {
	limiter := NewRateLimiter(memory.NewKVStore(), nil)
	ctx := context.Background()

	for _, want := range []int{4, 3, 2, 1, 0} {
		decision := limiter.Check(ctx, domain.LimitPerUser, "alice", 5)
		require.True(t, decision.Allowed)
		assert.Equal(t, want, decision.Remaining)
		assert.False(t, decision.FailedOpen())
	}

	decision := limiter.Check(ctx, domain.LimitPerUser, "alice", 5)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)

	other := limiter.Check(ctx, domain.LimitPerUser, "bob", 5)
	assert.True(t, other.Allowed)
}

func TestRateLimiter_ResetTimeIsWindowAhead(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(memory.NewKVStore(), nil)
	limiter.now = func() time.Time { return now }

	decision := limiter.Check(context.Background(), domain.LimitPerIP, "10.0.0.1", 1)
	assert.Equal(t, now.Add(time.Minute), decision.ResetAt)

	decision = limiter.Check(context.Background(), domain.LimitPerIP, "10.0.0.1", 1)
	assert.False(t, decision.Allowed)
	assert.Equal(t, now.Add(time.Minute), decision.ResetAt)
}

func TestRateLimiter_ResetReallows(t *testing.T) {
	limiter := NewRateLimiter(memory.NewKVStore(), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Check(ctx, domain.LimitPerUser, "alice", 2)
	}
	require.False(t, limiter.Check(ctx, domain.LimitPerUser, "alice", 2).Allowed)

	require.NoError(t, limiter.Reset(ctx, "alice", ""))

	decision := limiter.Check(ctx, domain.LimitPerUser, "alice", 2)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Remaining)
}

func TestRateLimiter_ResetAPIEndpoint(t *testing.T) {
	limiter := NewRateLimiter(memory.NewKVStore(), nil)
	ctx := context.Background()

	limiter.Check(ctx, domain.LimitPerAPI, "/api/v1/orders", 1)
	require.False(t, limiter.Check(ctx, domain.LimitPerAPI, "/api/v1/orders", 1).Allowed)

	require.NoError(t, limiter.Reset(ctx, "alice", "/api/v1/orders"))
	assert.True(t, limiter.Check(ctx, domain.LimitPerAPI, "/api/v1/orders", 1).Allowed)
}

func TestRateLimiter_GlobalIgnoresIdentifier(t *testing.T) {
	limiter := NewRateLimiter(memory.NewKVStore(), nil)
	ctx := context.Background()

	limiter.Check(ctx, domain.LimitGlobal, "a", 1)
	assert.False(t, limiter.Check(ctx, domain.LimitGlobal, "b", 1).Allowed)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	limiter := NewRateLimiter(failingKV{}, nil)

	decision := limiter.Check(context.Background(), domain.LimitPerUser, "alice", 5)

	assert.True(t, decision.Allowed)
	assert.True(t, decision.FailedOpen())
	assert.ErrorIs(t, decision.Err, domain.ErrStoreUnavailable)
}

func TestRateLimiter_InvalidTypeFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(memory.NewKVStore(), nil)

	decision := limiter.Check(context.Background(), domain.LimitType("per_planet"), "x", 5)

	assert.True(t, decision.Allowed)
	assert.ErrorIs(t, decision.Err, domain.ErrInvalidLimitType)
}

func TestRateLimiter_ResetStoreDown(t *testing.T) {
	limiter := NewRateLimiter(failingKV{}, nil)

	err := limiter.Reset(context.Background(), "alice", "")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
