package application

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

// ConnectionTracker counts in-flight dispatches per instance and mirrors the
// counts to the KV store where least-connections selection reads them.
type ConnectionTracker struct {
	kv  domain.KVStore
	ttl time.Duration

	mu     sync.RWMutex
	gauges map[string]*atomic.Int64
}

func NewConnectionTracker(kv domain.KVStore, ttl time.Duration) *ConnectionTracker {
	return &ConnectionTracker{
		kv:     kv,
		ttl:    ttl,
		gauges: make(map[string]*atomic.Int64),
	}
}

func (t *ConnectionTracker) gauge(instanceID string) *atomic.Int64 {
	t.mu.RLock()
	g, ok := t.gauges[instanceID]
	t.mu.RUnlock()
	if ok {
		return g
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if g, ok = t.gauges[instanceID]; !ok {
		g = &atomic.Int64{}
		t.gauges[instanceID] = g
	}
	return g
}

// Acquire marks a dispatch to the instance as started and returns the func
// that marks it finished.
func (t *ConnectionTracker) Acquire(ctx context.Context, instanceID string) func() {
	g := t.gauge(instanceID)
	t.publish(ctx, instanceID, g.Add(1))

	var once sync.Once
	return func() {
		once.Do(func() {
			n := g.Add(-1)
			if n < 0 {
				g.CompareAndSwap(n, 0)
				n = 0
			}
			t.publish(context.WithoutCancel(ctx), instanceID, n)
		})
	}
}

func (t *ConnectionTracker) Count(instanceID string) int64 {
	return t.gauge(instanceID).Load()
}

func (t *ConnectionTracker) publish(ctx context.Context, instanceID string, count int64) {
	if t.kv == nil {
		return
	}
	value := []byte(strconv.FormatInt(count, 10))
	if err := t.kv.Set(ctx, domain.ConnectionsKey(instanceID), value, t.ttl); err != nil {
		slog.Warn("failed to publish connection count", "instance_id", instanceID, "error", err)
	}
}
