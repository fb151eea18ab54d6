package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Uptime  string `json:"uptime"`
	Store   string `json:"store"`
}

func HealthHandler(startTime time.Time, version, commit, store string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Version: version,
			Commit:  commit,
			Uptime:  time.Since(startTime).Truncate(time.Second).String(),
			Store:   store,
		})
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadyHandler reports ready once the backing store answers a ping.
func ReadyHandler(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Error:  "backing store unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, ReadyResponse{Status: "ready"})
	}
}
