package handler

import (
	"errors"
	"net/http"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/http/middleware"
	"github.com/gin-gonic/gin"
)

type RateLimitHandler struct {
	limiter *application.RateLimiter
}

func NewRateLimitHandler(limiter *application.RateLimiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

type CheckRateLimitRequest struct {
	LimitType  string `json:"limit_type" binding:"required"`
	Identifier string `json:"identifier"`
	Limit      int    `json:"limit" binding:"required,gt=0"`
}

type CheckRateLimitResponse struct {
	*domain.RateLimitDecision
	FailedOpen bool `json:"failed_open,omitempty"`
}

func (h *RateLimitHandler) Check(c *gin.Context) {
	var req CheckRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	limitType, err := domain.ParseLimitType(req.LimitType)
	if err != nil {
		badRequest(c, err)
		return
	}
	if req.Identifier == "" && limitType != domain.LimitGlobal {
		badRequest(c, errors.New("identifier is required for "+string(limitType)))
		return
	}

	decision := h.limiter.Check(c.Request.Context(), limitType, req.Identifier, req.Limit)
	middleware.SetRateLimitHeaders(c, decision)

	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusTooManyRequests
	}
	c.JSON(status, CheckRateLimitResponse{RateLimitDecision: decision, FailedOpen: decision.FailedOpen()})
}

type ResetRateLimitRequest struct {
	Identifier  string `json:"identifier"`
	APIEndpoint string `json:"api_endpoint"`
}

func (h *RateLimitHandler) Reset(c *gin.Context) {
	var req ResetRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Identifier == "" && req.APIEndpoint == "" {
		badRequest(c, errors.New("identifier or api_endpoint is required"))
		return
	}

	if err := h.limiter.Reset(c.Request.Context(), req.Identifier, req.APIEndpoint); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}
