package handler

import (
	"net/http"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions *application.SessionManager
}

func NewSessionHandler(sessions *application.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type UpdateSessionRequest struct {
	Data map[string]any `json:"data" binding:"required"`
}

func (h *SessionHandler) Update(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req.Data)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Destroy(c *gin.Context) {
	id := c.Param("id")
	removed, err := h.sessions.Destroy(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if !removed {
		respondError(c, http.StatusNotFound, "session_not_found", "session "+id+" not found")
		return
	}
	c.Status(http.StatusNoContent)
}
