package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/http/middleware"
	"github.com/gin-gonic/gin"
)

const (
	HeaderStrategy  = "X-LB-Strategy"
	HeaderServedBy  = "X-Served-By"
	maxRequestBytes = 10 << 20
)

// GatewayHandler hands every request that matched no internal endpoint to
// the router.
type GatewayHandler struct {
	router *application.Router
}

func NewGatewayHandler(router *application.Router) *GatewayHandler {
	return &GatewayHandler{router: router}
}

func (h *GatewayHandler) Handle(c *gin.Context) {
	req, err := h.buildRequest(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "request_too_large", err.Error())
			return
		}
		badRequest(c, err)
		return
	}

	resp := h.router.Route(c.Request.Context(), req)

	middleware.SetRateLimitHeaders(c, resp.RateLimit)
	for name, values := range resp.Headers {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	if resp.Instance != nil {
		c.Header(HeaderServedBy, resp.Instance.ID)
	}
	if resp.Error != "" {
		_ = c.Error(errors.New(resp.Error))
	}

	c.Status(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
}

func (h *GatewayHandler) buildRequest(c *gin.Context) (*domain.GatewayRequest, error) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes))
		if err != nil {
			return nil, err
		}
	}

	headers := c.Request.Header.Clone()
	headers.Del(HeaderStrategy)

	return &domain.GatewayRequest{
		Method:   c.Request.Method,
		Path:     c.Request.URL.Path,
		RawQuery: c.Request.URL.RawQuery,
		Host:     c.Request.Host,
		Headers:  headers,
		Body:     body,
		UserID:   c.GetString(middleware.ContextKeyUserID),
		ClientIP: c.ClientIP(),
		Strategy: domain.Strategy(c.GetHeader(HeaderStrategy)),
	}, nil
}
