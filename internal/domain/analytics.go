package domain

import "time"

// RequestEvent is the summary of one gateway request forwarded to traffic analytics.
type RequestEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id"`
	Method       string    `json:"method"`
	Endpoint     string    `json:"endpoint"`
	Service      string    `json:"service,omitempty"`
	InstanceID   string    `json:"instance_id,omitempty"`
	StatusCode   int       `json:"status_code"`
	ResponseTime float64   `json:"response_time_ms"`
}

type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

// TrafficCounters are the raw running counters of this process.
type TrafficCounters struct {
	TotalRequests           int64 `json:"total_requests"`
	SuccessfulRequests      int64 `json:"successful_requests"`
	FailedRequests          int64 `json:"failed_requests"`
	ActiveSessions          int64 `json:"active_sessions"`
	StateSyncOperations     int64 `json:"state_sync_operations"`
	LoadBalancingOperations int64 `json:"load_balancing_operations"`
}

type AnalyticsSource string

const (
	SourceEvents   AnalyticsSource = "events"
	SourceCounters AnalyticsSource = "counters"
)

// AnalyticsSummary holds derived statistics when Source is events; when the
// event log is unavailable only Counters is populated.
type AnalyticsSummary struct {
	Source              AnalyticsSource `json:"source"`
	TimeRange           string          `json:"time_range"`
	GeneratedAt         time.Time       `json:"generated_at"`
	TotalRequests       int             `json:"total_requests"`
	UniqueUsers         int             `json:"unique_users"`
	AverageResponseTime float64         `json:"average_response_time_ms"`
	ErrorRate           float64         `json:"error_rate"`
	TopEndpoints        []EndpointCount `json:"top_endpoints,omitempty"`
	RequestsByHour      map[int]int     `json:"requests_by_hour,omitempty"`
	Counters            TrafficCounters `json:"counters"`
}
