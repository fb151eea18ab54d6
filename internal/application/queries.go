package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/apascualco/trafficcop/internal/domain"
)

// ListInstances returns copies of the service's instances in registration order.
func (r *Registry) ListInstances(serviceName string) []domain.ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.services[serviceName]
	if len(list) == 0 {
		return nil
	}
	out := make([]domain.ServiceInstance, 0, len(list))
	for _, instance := range list {
		out = append(out, *instance)
	}
	return out
}

func (r *Registry) GetInstance(serviceName, instanceID string) (domain.ServiceInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, instance := range r.services[serviceName] {
		if instance.ID == instanceID {
			return *instance, true
		}
	}
	return domain.ServiceInstance{}, false
}

// Services returns the names of services with at least one instance, sorted.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh replaces the local list of the service with the mirrored one.
// Instances owned by another service locally are skipped.
func (r *Registry) Refresh(ctx context.Context, serviceName string) (int, error) {
	if r.kv == nil {
		return 0, nil
	}

	raw, err := r.kv.Get(ctx, domain.ServiceInstancesKey(serviceName))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	var mirrored mirroredInstances
	if err := json.Unmarshal(raw, &mirrored); err != nil {
		return 0, fmt.Errorf("decode instances of %s: %w", serviceName, err)
	}

	r.mu.Lock()
	for _, old := range r.services[serviceName] {
		delete(r.owners, old.ID)
	}
	list := make([]*domain.ServiceInstance, 0, len(mirrored.Instances))
	for i := range mirrored.Instances {
		instance := mirrored.Instances[i]
		if owner, ok := r.owners[instance.ID]; ok && owner != serviceName {
			slog.Warn("skipping mirrored instance owned by another service",
				"service", serviceName, "instance_id", instance.ID, "owner", owner)
			continue
		}
		if err := instance.Validate(); err != nil {
			slog.Warn("skipping invalid mirrored instance", "service", serviceName, "error", err)
			continue
		}
		list = append(list, &instance)
		r.owners[instance.ID] = serviceName
	}
	if len(list) == 0 {
		delete(r.services, serviceName)
	} else {
		r.services[serviceName] = list
	}
	r.mu.Unlock()

	r.metrics.RegisteredInstances(serviceName, len(list))
	return len(list), nil
}
