package handler

import (
	"net/http"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/gin-gonic/gin"
)

type StateHandler struct {
	sync *application.StateSynchronizer
}

func NewStateHandler(sync *application.StateSynchronizer) *StateHandler {
	return &StateHandler{sync: sync}
}

// Sync answers 200 with the completed record, or 502 with the failed one.
func (h *StateHandler) Sync(c *gin.Context) {
	var req domain.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	record := h.sync.Sync(c.Request.Context(), req)
	status := http.StatusOK
	if record.Status == domain.SyncFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, record)
}

func (h *StateHandler) Status(c *gin.Context) {
	record, err := h.sync.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
