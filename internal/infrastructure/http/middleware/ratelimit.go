package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/gin-gonic/gin"
)

type RateLimiter interface {
	Check(ctx context.Context, limitType domain.LimitType, identifier string, limit int) *domain.RateLimitDecision
}

// RateLimit limits callers by client IP. A decision that failed open lets
// the request through without headers.
func RateLimit(limiter RateLimiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := limiter.Check(c.Request.Context(), domain.LimitPerIP, c.ClientIP(), limit)
		if decision.FailedOpen() {
			c.Next()
			return
		}

		SetRateLimitHeaders(c, decision)

		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}

func SetRateLimitHeaders(c *gin.Context, decision *domain.RateLimitDecision) {
	if decision == nil || decision.FailedOpen() {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}
