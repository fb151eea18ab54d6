package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

var errStoreDown = errors.New("connection refused")

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (failingKV) Set(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (failingKV) Delete(context.Context, string) error { return errStoreDown }
func (failingKV) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errStoreDown
}
func (failingKV) Ping(context.Context) error { return errStoreDown }

type fixedScores map[string]int

func (f fixedScores) Score(_ context.Context, instance *domain.ServiceInstance) int {
	return f[instance.ID]
}

type stubSelector struct {
	instance *domain.ServiceInstance
	err      error
	calls    int
}

func (s *stubSelector) Select(context.Context, string, domain.Strategy) (*domain.ServiceInstance, error) {
	s.calls++
	return s.instance, s.err
}

type stubDispatcher struct {
	result *domain.DispatchResult
	err    error
	calls  int
}

func (d *stubDispatcher) Dispatch(context.Context, *domain.ServiceInstance, *domain.GatewayRequest) (*domain.DispatchResult, error) {
	d.calls++
	return d.result, d.err
}

type recordedEvents struct {
	mu     sync.Mutex
	events []domain.RequestEvent
}

func (r *recordedEvents) Record(_ context.Context, event domain.RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type stateStoreFunc func(context.Context, domain.SyncRequest) (bool, error)

func (f stateStoreFunc) SyncState(ctx context.Context, req domain.SyncRequest) (bool, error) {
	return f(ctx, req)
}

type failingEventLog struct{}

func (failingEventLog) Append(context.Context, domain.RequestEvent) error { return errStoreDown }
func (failingEventLog) Since(context.Context, time.Time) ([]domain.RequestEvent, error) {
	return nil, errStoreDown
}
