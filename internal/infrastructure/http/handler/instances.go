package handler

import (
	"errors"
	"net/http"

	"github.com/apascualco/trafficcop/internal/application"
	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/gin-gonic/gin"
)

type InstanceHandler struct {
	registry *application.Registry
	balancer *application.LoadBalancer
}

func NewInstanceHandler(registry *application.Registry, balancer *application.LoadBalancer) *InstanceHandler {
	return &InstanceHandler{registry: registry, balancer: balancer}
}

// RegisterInstanceRequest keeps Weight nullable so an explicit zero (a
// drained instance) is told apart from an omitted weight.
type RegisterInstanceRequest struct {
	ID             string            `json:"id"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Weight         *int              `json:"weight"`
	HealthCheckURL string            `json:"health_check_url"`
	Metadata       map[string]string `json:"metadata"`
}

func (r *RegisterInstanceRequest) instance() domain.ServiceInstance {
	weight := domain.DefaultWeight
	if r.Weight != nil {
		weight = *r.Weight
	}
	return domain.ServiceInstance{
		ID:             r.ID,
		Host:           r.Host,
		Port:           r.Port,
		Weight:         weight,
		HealthCheckURL: r.HealthCheckURL,
		Metadata:       r.Metadata,
	}
}

type RegisterInstanceResponse struct {
	Service  string                 `json:"service"`
	Instance domain.ServiceInstance `json:"instance"`
	// Mirrored is false when the registration only exists in this process.
	Mirrored bool `json:"mirrored"`
}

func (h *InstanceHandler) Register(c *gin.Context) {
	service := c.Param("service")

	var req RegisterInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	instance := req.instance()

	err := h.registry.Register(c.Request.Context(), service, instance)
	if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterInstanceResponse{
		Service:  service,
		Instance: instance,
		Mirrored: err == nil,
	})
}

func (h *InstanceHandler) Unregister(c *gin.Context) {
	service, id := c.Param("service"), c.Param("id")

	removed, err := h.registry.Unregister(c.Request.Context(), service, id)
	if !removed {
		respondError(c, http.StatusNotFound, "instance_not_found", "instance "+id+" is not registered under "+service)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service":     service,
		"instance_id": id,
		"mirrored":    err == nil,
	})
}

func (h *InstanceHandler) List(c *gin.Context) {
	service := c.Param("service")
	instances := h.registry.ListInstances(service)
	c.JSON(http.StatusOK, gin.H{
		"service":   service,
		"instances": instances,
		"count":     len(instances),
	})
}

func (h *InstanceHandler) Services(c *gin.Context) {
	services := h.registry.Services()
	c.JSON(http.StatusOK, gin.H{
		"services": services,
		"count":    len(services),
	})
}

func (h *InstanceHandler) Select(c *gin.Context) {
	service := c.Param("service")

	strategy, err := domain.ParseStrategy(c.Query("strategy"))
	if err != nil {
		badRequest(c, err)
		return
	}

	instance, err := h.balancer.Select(c.Request.Context(), service, strategy)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service":  service,
		"strategy": strategy,
		"instance": instance,
	})
}

func (h *InstanceHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.balancer.ServiceHealth(c.Request.Context(), c.Param("service")))
}
