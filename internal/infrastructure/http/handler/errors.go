package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
}

// respondDomainError maps application errors to status codes. Store
// failures are logged and reported without their cause.
func respondDomainError(c *gin.Context, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":    "instance_conflict",
			"message":  conflict.Error(),
			"conflict": conflict,
		})
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, domain.ErrInvalidLimitType),
		errors.Is(err, domain.ErrInvalidTimeRange):
		badRequest(c, err)
	case errors.Is(err, domain.ErrSessionExists):
		respondError(c, http.StatusConflict, "session_exists", err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, domain.ErrSyncNotFound):
		respondError(c, http.StatusNotFound, "sync_not_found", err.Error())
	case errors.Is(err, domain.ErrNoInstancesAvailable):
		respondError(c, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		slog.Error("backing store failure", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusServiceUnavailable, "store_unavailable", "backing store unavailable")
	default:
		slog.Error("unexpected handler error", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
