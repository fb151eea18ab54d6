package domain

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitWindow is the fixed window every rate limit counter accumulates over.
const RateLimitWindow = 60 * time.Second

type LimitType string

const (
	LimitPerUser LimitType = "per_user"
	LimitPerAPI  LimitType = "per_api"
	LimitPerIP   LimitType = "per_ip"
	LimitGlobal  LimitType = "global"
)

func ParseLimitType(s string) (LimitType, error) {
	switch LimitType(strings.ToLower(strings.TrimSpace(s))) {
	case LimitPerUser:
		return LimitPerUser, nil
	case LimitPerAPI:
		return LimitPerAPI, nil
	case LimitPerIP:
		return LimitPerIP, nil
	case LimitGlobal:
		return LimitGlobal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLimitType, s)
	}
}

// RateLimitKey returns the store key of the counter for the given limit type.
// The identifier is ignored for the global limit.
func RateLimitKey(limitType LimitType, identifier string) (string, error) {
	switch limitType {
	case LimitPerUser:
		return "rate_limit:user:" + identifier, nil
	case LimitPerAPI:
		return "rate_limit:api:" + identifier, nil
	case LimitPerIP:
		return "rate_limit:ip:" + identifier, nil
	case LimitGlobal:
		return "rate_limit:global", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLimitType, limitType)
	}
}

// RateLimitDecision is the outcome of a rate limit check. Err carries the
// store failure that caused a fail-open decision.
type RateLimitDecision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_time"`
	LimitType LimitType `json:"limit_type"`
	Err       error     `json:"-"`
}

func (d *RateLimitDecision) FailedOpen() bool {
	return d.Err != nil
}
