package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apascualco/trafficcop/internal/domain"
)

// InstanceSource lists the instances registered for a service.
type InstanceSource interface {
	ListInstances(serviceName string) []domain.ServiceInstance
}

// LoadBalancer picks one instance of a service per call according to a
// strategy.
type LoadBalancer struct {
	source   InstanceSource
	kv       domain.KVStore
	checker  domain.HealthChecker
	metrics  Metrics
	counters *Counters

	randMu sync.Mutex
	rand   *rand.Rand

	cursorMu sync.RWMutex
	cursors  map[string]*atomic.Uint64
}

type LoadBalancerOption func(*LoadBalancer)

// WithRand sets the source of the weighted and random draws.
func WithRand(r *rand.Rand) LoadBalancerOption {
	return func(lb *LoadBalancer) {
		lb.rand = r
	}
}

func WithHealthChecker(checker domain.HealthChecker) LoadBalancerOption {
	return func(lb *LoadBalancer) {
		lb.checker = checker
	}
}

func WithBalancerMetrics(metrics Metrics) LoadBalancerOption {
	return func(lb *LoadBalancer) {
		lb.metrics = metrics
	}
}

func WithBalancerCounters(counters *Counters) LoadBalancerOption {
	return func(lb *LoadBalancer) {
		lb.counters = counters
	}
}

// NewLoadBalancer reads active connection counts from kv; a nil kv makes
// every instance report zero connections.
func NewLoadBalancer(source InstanceSource, kv domain.KVStore, opts ...LoadBalancerOption) *LoadBalancer {
	lb := &LoadBalancer{
		source:  source,
		kv:      kv,
		metrics: NopMetrics{},
		cursors: make(map[string]*atomic.Uint64),
	}
	for _, opt := range opts {
		opt(lb)
	}
	if lb.rand == nil {
		lb.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return lb
}

// Select returns a copy of the chosen instance. It fails with
// domain.ErrNoInstancesAvailable when the service has no instances.
func (lb *LoadBalancer) Select(ctx context.Context, serviceName string, strategy domain.Strategy) (*domain.ServiceInstance, error) {
	if strategy == "" {
		strategy = domain.StrategyRoundRobin
	}

	selected, err := lb.selectInstance(ctx, serviceName, strategy)
	lb.metrics.InstanceSelected(serviceName, strategy, err)
	if err != nil {
		return nil, err
	}
	if lb.counters != nil {
		lb.counters.LoadBalanced()
	}
	return selected, nil
}

func (lb *LoadBalancer) selectInstance(ctx context.Context, serviceName string, strategy domain.Strategy) (*domain.ServiceInstance, error) {
	instances := lb.source.ListInstances(serviceName)
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoInstancesAvailable, serviceName)
	}

	var idx int
	switch strategy {
	case domain.StrategyRoundRobin:
		idx = lb.roundRobin(serviceName, len(instances))
	case domain.StrategyLeastConnections:
		i, err := lb.leastConnections(ctx, instances)
		if err != nil {
			return nil, err
		}
		idx = i
	case domain.StrategyWeighted:
		idx = lb.weighted(instances)
	case domain.StrategyHealthBased:
		idx = lb.healthBased(ctx, instances)
	case domain.StrategyRandom:
		idx = lb.intN(len(instances))
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStrategy, strategy)
	}

	selected := instances[idx]
	return &selected, nil
}

func (lb *LoadBalancer) cursor(serviceName string) *atomic.Uint64 {
	lb.cursorMu.RLock()
	c, ok := lb.cursors[serviceName]
	lb.cursorMu.RUnlock()
	if ok {
		return c
	}

	lb.cursorMu.Lock()
	defer lb.cursorMu.Unlock()
	if c, ok = lb.cursors[serviceName]; !ok {
		c = &atomic.Uint64{}
		lb.cursors[serviceName] = c
	}
	return c
}

func (lb *LoadBalancer) roundRobin(serviceName string, n int) int {
	next := lb.cursor(serviceName).Add(1) - 1
	return int(next % uint64(n))
}

func (lb *LoadBalancer) leastConnections(ctx context.Context, instances []domain.ServiceInstance) (int, error) {
	best, bestCount := 0, int64(-1)
	for i := range instances {
		count, err := lb.connections(ctx, instances[i].ID)
		if err != nil {
			return 0, err
		}
		if bestCount < 0 || count < bestCount {
			best, bestCount = i, count
		}
	}
	return best, nil
}

func (lb *LoadBalancer) connections(ctx context.Context, instanceID string) (int64, error) {
	if lb.kv == nil {
		return 0, nil
	}
	raw, err := lb.kv.Get(ctx, domain.ConnectionsKey(instanceID))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read connections of %s: %w", domain.ErrStoreUnavailable, instanceID, err)
	}
	count, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		slog.Warn("ignoring malformed connection count", "instance_id", instanceID, "value", string(raw))
		return 0, nil
	}
	return count, nil
}

// weighted draws r in [0, total) and returns the first instance whose
// cumulative weight exceeds r. Zero-weight instances are never drawn unless
// every weight is zero, in which case the first instance is returned.
func (lb *LoadBalancer) weighted(instances []domain.ServiceInstance) int {
	total := 0
	for i := range instances {
		total += instances[i].Weight
	}
	if total <= 0 {
		return 0
	}

	r := lb.intN(total)
	cumulative := 0
	for i := range instances {
		cumulative += instances[i].Weight
		if cumulative > r {
			return i
		}
	}
	return len(instances) - 1
}

// healthBased scores all instances concurrently and returns the best one,
// the first in registration order on ties.
func (lb *LoadBalancer) healthBased(ctx context.Context, instances []domain.ServiceInstance) int {
	scores := lb.scores(ctx, instances)
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

func (lb *LoadBalancer) scores(ctx context.Context, instances []domain.ServiceInstance) []int {
	scores := make([]int, len(instances))
	if lb.checker == nil {
		for i := range scores {
			scores[i] = domain.HealthScoreHealthy
		}
		return scores
	}

	var wg sync.WaitGroup
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scores[i] = lb.checker.Score(ctx, &instances[i])
		}(i)
	}
	wg.Wait()
	return scores
}

func (lb *LoadBalancer) intN(n int) int {
	lb.randMu.Lock()
	defer lb.randMu.Unlock()
	return lb.rand.IntN(n)
}

// ServiceHealth scores every instance of the service. An instance counts as
// healthy when its score is above the unknown score.
func (lb *LoadBalancer) ServiceHealth(ctx context.Context, serviceName string) domain.ServiceHealth {
	instances := lb.source.ListInstances(serviceName)
	health := domain.ServiceHealth{
		ServiceName:    serviceName,
		TotalInstances: len(instances),
		Instances:      make([]domain.InstanceHealth, 0, len(instances)),
	}
	if len(instances) == 0 {
		return health
	}

	scores := lb.scores(ctx, instances)
	for i, instance := range instances {
		if scores[i] > domain.HealthScoreUnknown {
			health.HealthyInstances++
		}
		health.Instances = append(health.Instances, domain.InstanceHealth{
			ID:     instance.ID,
			Host:   instance.Host,
			Port:   instance.Port,
			Weight: instance.Weight,
			Score:  scores[i],
		})
	}
	health.HealthPercentage = float64(health.HealthyInstances) / float64(health.TotalInstances) * 100
	return health
}
