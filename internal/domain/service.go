package domain

import (
	"fmt"
	"strings"
)

type ServiceInstance struct {
	ID             string            `json:"id"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Weight         int               `json:"weight"`
	HealthCheckURL string            `json:"health_check_url,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (i *ServiceInstance) Address() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Validate checks the declared fields. A zero weight is kept as declared.
func (i *ServiceInstance) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if i.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidRequest)
	}
	if i.Port <= 0 || i.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidRequest)
	}
	if i.Weight < 0 {
		return fmt.Errorf("%w: weight must not be negative", ErrInvalidRequest)
	}
	return nil
}

// DefaultWeight is applied by callers that do not declare a weight.
const DefaultWeight = 1

type Strategy string

const (
	StrategyRoundRobin       Strategy = "round_robin"
	StrategyLeastConnections Strategy = "least_connections"
	StrategyWeighted         Strategy = "weighted"
	StrategyHealthBased      Strategy = "health_based"
	StrategyRandom           Strategy = "random"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyRoundRobin, "":
		return StrategyRoundRobin, nil
	case StrategyLeastConnections:
		return StrategyLeastConnections, nil
	case StrategyWeighted:
		return StrategyWeighted, nil
	case StrategyHealthBased:
		return StrategyHealthBased, nil
	case StrategyRandom:
		return StrategyRandom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// Health scores reported by a HealthChecker.
const (
	HealthScoreHealthy   = 100
	HealthScoreUnknown   = 50
	HealthScoreUnhealthy = 0
)

type ServiceHealth struct {
	ServiceName      string           `json:"service_name"`
	TotalInstances   int              `json:"total_instances"`
	HealthyInstances int              `json:"healthy_instances"`
	HealthPercentage float64          `json:"health_percentage"`
	Instances        []InstanceHealth `json:"instances"`
}

type InstanceHealth struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight"`
	Score  int    `json:"score"`
}

// ServiceInstancesKey is the store key mirroring a service's instance list.
func ServiceInstancesKey(serviceName string) string {
	return "load_balancer:services:" + serviceName
}

// ConnectionsKey is the store key of an instance's active connection gauge.
func ConnectionsKey(instanceID string) string {
	return "load_balancer:connections:" + instanceID
}
