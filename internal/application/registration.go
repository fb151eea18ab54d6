package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apascualco/trafficcop/internal/domain"
)

// Register adds the instance to the service. Registering an id again under
// the same service replaces the previous declaration; registering it under a
// different service fails with a *domain.ConflictError.
//
// The local registration stands even when mirroring to the store fails; the
// returned error then wraps domain.ErrStoreUnavailable.
func (r *Registry) Register(ctx context.Context, serviceName string, instance domain.ServiceInstance) error {
	if serviceName == "" {
		return fmt.Errorf("%w: service name is required", domain.ErrInvalidRequest)
	}
	if err := instance.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if owner, ok := r.owners[instance.ID]; ok && owner != serviceName {
		r.mu.Unlock()
		return &domain.ConflictError{
			InstanceID:   instance.ID,
			Requested:    serviceName,
			RegisteredBy: owner,
		}
	}

	stored := instance
	replaced := false
	list := r.services[serviceName]
	for i, existing := range list {
		if existing.ID == instance.ID {
			list[i] = &stored
			replaced = true
			break
		}
	}
	if !replaced {
		r.services[serviceName] = append(list, &stored)
	}
	r.owners[instance.ID] = serviceName
	count := len(r.services[serviceName])
	r.mu.Unlock()

	r.metrics.RegisteredInstances(serviceName, count)
	slog.Info("instance registered",
		"service", serviceName,
		"instance_id", instance.ID,
		"address", instance.Address(),
		"weight", instance.Weight,
		"replaced", replaced,
	)

	return r.mirror(ctx, serviceName)
}

// Unregister removes the instance from the service and reports whether it
// was registered there.
func (r *Registry) Unregister(ctx context.Context, serviceName, instanceID string) (bool, error) {
	r.mu.Lock()
	list := r.services[serviceName]
	idx := -1
	for i, existing := range list {
		if existing.ID == instanceID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false, nil
	}

	next := make([]*domain.ServiceInstance, 0, len(list)-1)
	next = append(next, list[:idx]...)
	next = append(next, list[idx+1:]...)
	if len(next) == 0 {
		delete(r.services, serviceName)
	} else {
		r.services[serviceName] = next
	}
	delete(r.owners, instanceID)
	count := len(next)
	r.mu.Unlock()

	r.metrics.RegisteredInstances(serviceName, count)
	slog.Info("instance unregistered", "service", serviceName, "instance_id", instanceID)

	return true, r.mirror(ctx, serviceName)
}

func (r *Registry) mirror(ctx context.Context, serviceName string) error {
	if r.kv == nil {
		return nil
	}

	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()

	key := domain.ServiceInstancesKey(serviceName)
	instances := r.ListInstances(serviceName)
	if len(instances) == 0 {
		if err := r.kv.Delete(ctx, key); err != nil {
			slog.Warn("failed to remove mirrored instances", "service", serviceName, "error", err)
			return fmt.Errorf("%w: delete %s: %w", domain.ErrStoreUnavailable, key, err)
		}
		return nil
	}

	payload, err := json.Marshal(mirroredInstances{Instances: instances})
	if err != nil {
		return fmt.Errorf("encode instances of %s: %w", serviceName, err)
	}
	if err := r.kv.Set(ctx, key, payload, 0); err != nil {
		slog.Warn("failed to mirror instances", "service", serviceName, "error", err)
		return fmt.Errorf("%w: set %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}
