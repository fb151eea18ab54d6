package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ContextKeyServiceName = "service_name"
	HeaderServiceToken    = "X-Service-Token"
)

// ServiceVerifier resolves the calling service of a service token.
type ServiceVerifier interface {
	ServiceCaller(token string) (string, error)
}

type ServiceAuthMiddleware struct {
	verifier ServiceVerifier
}

func NewServiceAuthMiddleware(verifier ServiceVerifier) *ServiceAuthMiddleware {
	return &ServiceAuthMiddleware{verifier: verifier}
}

func (m *ServiceAuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderServiceToken)
		if token == "" {
			token = extractBearerToken(c)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "missing service token",
			})
			return
		}

		serviceName, err := m.verifier.ServiceCaller(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: err.Error(),
			})
			return
		}

		c.Set(ContextKeyServiceName, serviceName)
		c.Next()
	}
}
