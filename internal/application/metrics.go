package application

import (
	"sync/atomic"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

// Metrics receives observations from the traffic control components.
type Metrics interface {
	InstanceSelected(service string, strategy domain.Strategy, err error)
	RegisteredInstances(service string, count int)
	RateLimitChecked(decision *domain.RateLimitDecision)
	ActiveSessions(count int64)
	SyncFinished(status domain.SyncStatus)
	RequestRouted(method, service string, status int, duration time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) InstanceSelected(string, domain.Strategy, error)  {}
func (NopMetrics) RegisteredInstances(string, int)                  {}
func (NopMetrics) RateLimitChecked(*domain.RateLimitDecision)       {}
func (NopMetrics) ActiveSessions(int64)                             {}
func (NopMetrics) SyncFinished(domain.SyncStatus)                   {}
func (NopMetrics) RequestRouted(string, string, int, time.Duration) {}

// Counters are the process-local running traffic counters. They are not
// authoritative across processes.
type Counters struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	activeSessions     atomic.Int64
	stateSyncOps       atomic.Int64
	loadBalancingOps   atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordRequest(success bool) {
	c.totalRequests.Add(1)
	if success {
		c.successfulRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
	}
}

func (c *Counters) SessionOpened() int64 {
	return c.activeSessions.Add(1)
}

// SessionClosed decrements the active session gauge, never below zero.
func (c *Counters) SessionClosed() int64 {
	for {
		cur := c.activeSessions.Load()
		if cur <= 0 {
			return 0
		}
		if c.activeSessions.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

func (c *Counters) StateSynced() {
	c.stateSyncOps.Add(1)
}

func (c *Counters) LoadBalanced() {
	c.loadBalancingOps.Add(1)
}

func (c *Counters) Snapshot() domain.TrafficCounters {
	return domain.TrafficCounters{
		TotalRequests:           c.totalRequests.Load(),
		SuccessfulRequests:      c.successfulRequests.Load(),
		FailedRequests:          c.failedRequests.Load(),
		ActiveSessions:          c.activeSessions.Load(),
		StateSyncOperations:     c.stateSyncOps.Load(),
		LoadBalancingOperations: c.loadBalancingOps.Load(),
	}
}
