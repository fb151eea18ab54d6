package application

import (
	"sync"

	"github.com/apascualco/trafficcop/internal/domain"
)

// Registry keeps the per-service instance lists the load balancer selects
// from and mirrors every list to the KV store.
type Registry struct {
	kv      domain.KVStore
	metrics Metrics

	mu       sync.RWMutex
	services map[string][]*domain.ServiceInstance
	owners   map[string]string

	// mirrorMu serializes writes of the mirrored lists so the store never
	// ends up with an older snapshot than the local one.
	mirrorMu sync.Mutex
}

func NewRegistry(kv domain.KVStore, metrics Metrics) *Registry {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Registry{
		kv:       kv,
		metrics:  metrics,
		services: make(map[string][]*domain.ServiceInstance),
		owners:   make(map[string]string),
	}
}

type mirroredInstances struct {
	Instances []domain.ServiceInstance `json:"instances"`
}
