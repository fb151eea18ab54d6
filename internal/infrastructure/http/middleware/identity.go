package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ContextKeyUserID = "user_id"

	HeaderAuthorization = "Authorization"
	HeaderUserID        = "X-User-ID"
	BearerPrefix        = "Bearer "
)

// UserVerifier resolves the subject of a user bearer token.
type UserVerifier interface {
	UserSubject(token string) (string, error)
}

// Identity resolves the caller of a gateway request and stores it under
// ContextKeyUserID.
//
// With a verifier the caller is the bearer subject, or the client IP when no
// token is sent; X-User-ID is not trusted. Without a verifier the X-User-ID
// header is used, else the client IP. A bearer token that fails verification
// is rejected with 401.
func Identity(verifier UserVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier != nil {
			c.Set(ContextKeyUserID, c.ClientIP())
			if token := extractBearerToken(c); token != "" {
				subject, err := verifier.UserSubject(token)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
						Error:   "invalid_token",
						Message: err.Error(),
					})
					return
				}
				c.Set(ContextKeyUserID, subject)
			}
			c.Next()
			return
		}

		if userID := strings.TrimSpace(c.GetHeader(HeaderUserID)); userID != "" {
			c.Set(ContextKeyUserID, userID)
		} else {
			c.Set(ContextKeyUserID, c.ClientIP())
		}
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	auth := c.GetHeader(HeaderAuthorization)
	if !strings.HasPrefix(auth, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, BearerPrefix))
}
