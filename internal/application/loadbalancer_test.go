package application

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/memory"
)

func registryWith(t *testing.T, serviceName string, instances ...domain.ServiceInstance) *Registry {
	t.Helper()
	registry := NewRegistry(nil, nil)
	for _, instance := range instances {
		if err := registry.Register(context.Background(), serviceName, instance); err != nil {
			t.Fatalf("register %s: %v", instance.ID, err)
		}
	}
	return registry
}

func threeInstances() []domain.ServiceInstance {
	return []domain.ServiceInstance{
		{ID: "instance-1", Host: "host1", Port: 8081, Weight: 1},
		{ID: "instance-2", Host: "host2", Port: 8082, Weight: 1},
		{ID: "instance-3", Host: "host3", Port: 8083, Weight: 1},
	}
}

func TestRoundRobin_Distributes(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil)
	ctx := context.Background()

	expected := []string{"instance-1", "instance-2", "instance-3", "instance-1"}
	for i, want := range expected {
		selected, err := lb.Select(ctx, "users", domain.StrategyRoundRobin)
		if err != nil {
			t.Fatalf("select %d: unexpected error: %v", i, err)
		}
		if selected.ID != want {
			t.Errorf("select %d: expected %s, got %s", i, want, selected.ID)
		}
	}
}

func TestRoundRobin_EvenOverManyRounds(t *testing.T) {
	instances := threeInstances()
	lb := NewLoadBalancer(registryWith(t, "users", instances...), nil)

	counts := make(map[string]int)
	for i := 0; i < 10*len(instances); i++ {
		selected, err := lb.Select(context.Background(), "users", domain.StrategyRoundRobin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[selected.ID]++
	}

	for _, instance := range instances {
		if counts[instance.ID] != 10 {
			t.Errorf("%s: expected 10 selections, got %d", instance.ID, counts[instance.ID])
		}
	}
}

func TestRoundRobin_CursorPerService(t *testing.T) {
	registry := registryWith(t, "users", threeInstances()...)
	if err := registry.Register(context.Background(), "orders", domain.ServiceInstance{ID: "order-1", Host: "o", Port: 9000}); err != nil {
		t.Fatalf("register: %v", err)
	}
	lb := NewLoadBalancer(registry, nil)
	ctx := context.Background()

	if _, err := lb.Select(ctx, "orders", domain.StrategyRoundRobin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	selected, err := lb.Select(ctx, "users", domain.StrategyRoundRobin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != "instance-1" {
		t.Errorf("expected users cursor to start at instance-1, got %s", selected.ID)
	}
}

func TestRoundRobin_Concurrent(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil)

	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			selected, err := lb.Select(context.Background(), "users", domain.StrategyRoundRobin)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			counts[selected.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range counts {
		if count != 100 {
			t.Errorf("%s: expected 100 selections, got %d", id, count)
		}
	}
}

func TestSelect_NoInstances(t *testing.T) {
	lb := NewLoadBalancer(NewRegistry(nil, nil), nil)

	for _, strategy := range []domain.Strategy{
		domain.StrategyRoundRobin,
		domain.StrategyLeastConnections,
		domain.StrategyWeighted,
		domain.StrategyHealthBased,
		domain.StrategyRandom,
	} {
		_, err := lb.Select(context.Background(), "ghost", strategy)
		if !errors.Is(err, domain.ErrNoInstancesAvailable) {
			t.Errorf("%s: expected ErrNoInstancesAvailable, got %v", strategy, err)
		}
	}
}

func TestSelect_UnknownStrategy(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil)

	_, err := lb.Select(context.Background(), "users", domain.Strategy("fastest"))
	if !errors.Is(err, domain.ErrInvalidStrategy) {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
}

func TestLeastConnections_PicksMinimum(t *testing.T) {
	kv := memory.NewKVStore()
	ctx := context.Background()
	_ = kv.Set(ctx, domain.ConnectionsKey("instance-1"), []byte("5"), 0)
	_ = kv.Set(ctx, domain.ConnectionsKey("instance-2"), []byte("2"), 0)
	_ = kv.Set(ctx, domain.ConnectionsKey("instance-3"), []byte("7"), 0)

	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), kv)

	selected, err := lb.Select(ctx, "users", domain.StrategyLeastConnections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != "instance-2" {
		t.Errorf("expected instance-2, got %s", selected.ID)
	}
}

func TestLeastConnections_MissingCountsAreZeroAndTiesGoFirst(t *testing.T) {
	kv := memory.NewKVStore()
	ctx := context.Background()
	_ = kv.Set(ctx, domain.ConnectionsKey("instance-1"), []byte("1"), 0)

	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), kv)

	selected, err := lb.Select(ctx, "users", domain.StrategyLeastConnections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != "instance-2" {
		t.Errorf("expected instance-2, got %s", selected.ID)
	}
}

func TestLeastConnections_StoreDown(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), failingKV{})

	_, err := lb.Select(context.Background(), "users", domain.StrategyLeastConnections)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLeastConnections_FollowsTracker(t *testing.T) {
	kv := memory.NewKVStore()
	tracker := NewConnectionTracker(kv, 0)
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), kv)
	ctx := context.Background()

	release1 := tracker.Acquire(ctx, "instance-1")
	release2 := tracker.Acquire(ctx, "instance-2")

	selected, err := lb.Select(ctx, "users", domain.StrategyLeastConnections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != "instance-3" {
		t.Errorf("expected instance-3, got %s", selected.ID)
	}

	release1()
	release1()
	release2()
	if tracker.Count("instance-1") != 0 {
		t.Errorf("expected released gauge to be 0, got %d", tracker.Count("instance-1"))
	}
}

func TestWeighted_Distribution(t *testing.T) {
	registry := registryWith(t, "users",
		domain.ServiceInstance{ID: "heavy", Host: "h1", Port: 8081, Weight: 3},
		domain.ServiceInstance{ID: "light", Host: "h2", Port: 8082, Weight: 1},
	)
	lb := NewLoadBalancer(registry, nil, WithRand(rand.New(rand.NewPCG(42, 1024))))

	const runs = 10000
	heavy := 0
	for i := 0; i < runs; i++ {
		selected, err := lb.Select(context.Background(), "users", domain.StrategyWeighted)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID == "heavy" {
			heavy++
		}
	}

	share := float64(heavy) / runs
	if share < 0.72 || share > 0.78 {
		t.Errorf("expected heavy share within 0.75 +/- 0.03, got %.4f", share)
	}
}

func TestWeighted_ZeroTotalFallsBackToFirst(t *testing.T) {
	registry := registryWith(t, "users",
		domain.ServiceInstance{ID: "a", Host: "h1", Port: 8081, Weight: 0},
		domain.ServiceInstance{ID: "b", Host: "h2", Port: 8082, Weight: 0},
	)
	lb := NewLoadBalancer(registry, nil)

	for i := 0; i < 5; i++ {
		selected, err := lb.Select(context.Background(), "users", domain.StrategyWeighted)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != "a" {
			t.Errorf("expected a, got %s", selected.ID)
		}
	}
}

func TestWeighted_ZeroWeightNeverDrawn(t *testing.T) {
	registry := registryWith(t, "users",
		domain.ServiceInstance{ID: "off", Host: "h1", Port: 8081, Weight: 0},
		domain.ServiceInstance{ID: "on", Host: "h2", Port: 8082, Weight: 2},
	)
	lb := NewLoadBalancer(registry, nil, WithRand(rand.New(rand.NewPCG(7, 7))))

	for i := 0; i < 100; i++ {
		selected, _ := lb.Select(context.Background(), "users", domain.StrategyWeighted)
		if selected.ID != "on" {
			t.Fatalf("zero weight instance selected on draw %d", i)
		}
	}
}

func TestHealthBased_HighestScoreFirstOnTies(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil,
		WithHealthChecker(fixedScores{"instance-1": 0, "instance-2": 100, "instance-3": 100}))

	selected, err := lb.Select(context.Background(), "users", domain.StrategyHealthBased)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != "instance-2" {
		t.Errorf("expected instance-2, got %s", selected.ID)
	}
}

func TestHealthBased_UnknownRanksBetween(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil,
		WithHealthChecker(fixedScores{"instance-1": 0, "instance-2": 50, "instance-3": 0}))

	selected, err := lb.Select(context.Background(), "users", domain.StrategyHealthBased)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != "instance-2" {
		t.Errorf("expected instance-2, got %s", selected.ID)
	}
}

func TestRandom_StaysInSet(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil,
		WithRand(rand.New(rand.NewPCG(1, 2))))

	seen := make(map[string]bool)
	for i := 0; i < 300; i++ {
		selected, err := lb.Select(context.Background(), "users", domain.StrategyRandom)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[selected.ID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all 3 instances to be drawn, got %v", seen)
	}
}

func TestSelect_CountsOperations(t *testing.T) {
	counters := NewCounters()
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil, WithBalancerCounters(counters))

	_, _ = lb.Select(context.Background(), "users", domain.StrategyRoundRobin)
	_, _ = lb.Select(context.Background(), "ghost", domain.StrategyRoundRobin)

	if got := counters.Snapshot().LoadBalancingOperations; got != 1 {
		t.Errorf("expected 1 load balancing operation, got %d", got)
	}
}

func TestServiceHealth(t *testing.T) {
	lb := NewLoadBalancer(registryWith(t, "users", threeInstances()...), nil,
		WithHealthChecker(fixedScores{"instance-1": 100, "instance-2": 50, "instance-3": 0}))

	health := lb.ServiceHealth(context.Background(), "users")

	if health.TotalInstances != 3 {
		t.Errorf("expected 3 instances, got %d", health.TotalInstances)
	}
	if health.HealthyInstances != 1 {
		t.Errorf("expected 1 healthy instance, got %d", health.HealthyInstances)
	}
	if len(health.Instances) != 3 || health.Instances[1].Score != 50 {
		t.Errorf("unexpected instance scores: %+v", health.Instances)
	}
}
