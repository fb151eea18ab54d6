package domain

import (
	"errors"
	"time"
)

// CallerClaims are the claims trafficcop reads from a bearer token.
type CallerClaims struct {
	Subject   string   `json:"sub"`
	Issuer    string   `json:"iss"`
	Audience  []string `json:"aud,omitempty"`
	ExpiresAt int64    `json:"exp"`
}

func (c *CallerClaims) Valid(now time.Time) error {
	if c.ExpiresAt != 0 && now.Unix() > c.ExpiresAt {
		return ErrTokenExpired
	}
	if c.Subject == "" {
		return ErrTokenInvalidSubject
	}
	return nil
}

func (c *CallerClaims) HasAudience(audience string) bool {
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}

var (
	ErrTokenMissing          = errors.New("token is missing")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenNotYetValid      = errors.New("token is not yet valid")
	ErrTokenInvalidSubject   = errors.New("token has invalid subject")
	ErrTokenAudienceMismatch = errors.New("token audience mismatch")
	ErrTokenInvalidSignature = errors.New("token has invalid signature")
	ErrTokenMalformed        = errors.New("token is malformed")
)
