package handler

import (
	"net/http"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analytics *application.TrafficAnalytics
	routes    *application.RouteTable
}

func NewAnalyticsHandler(analytics *application.TrafficAnalytics, routes *application.RouteTable) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, routes: routes}
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	summary, err := h.analytics.Summary(c.Request.Context(), c.DefaultQuery("range", "24h"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *AnalyticsHandler) Routes(c *gin.Context) {
	routes := h.routes.Routes()
	c.JSON(http.StatusOK, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}
