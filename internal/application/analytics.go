package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

const topEndpointsLimit = 10

// TrafficAnalytics keeps request events in the event log and summarizes
// them on demand.
type TrafficAnalytics struct {
	log      domain.EventLog
	counters *Counters
	now      func() time.Time
}

// NewTrafficAnalytics accepts a nil log; summaries then only carry counters.
func NewTrafficAnalytics(log domain.EventLog, counters *Counters) *TrafficAnalytics {
	if counters == nil {
		counters = NewCounters()
	}
	return &TrafficAnalytics{log: log, counters: counters, now: time.Now}
}

func (a *TrafficAnalytics) Record(ctx context.Context, event domain.RequestEvent) {
	if a.log == nil {
		return
	}
	if err := a.log.Append(ctx, event); err != nil {
		slog.Warn("failed to record request event", "endpoint", event.Endpoint, "error", err)
	}
}

// Summary covers events within timeRange: empty or "all" for every retained
// event, "7d" style day counts, or any time.ParseDuration value.
func (a *TrafficAnalytics) Summary(ctx context.Context, timeRange string) (*domain.AnalyticsSummary, error) {
	window, err := parseTimeRange(timeRange)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	summary := &domain.AnalyticsSummary{
		Source:      domain.SourceCounters,
		TimeRange:   timeRange,
		GeneratedAt: now,
		Counters:    a.counters.Snapshot(),
	}
	if summary.TimeRange == "" {
		summary.TimeRange = "all"
	}
	if a.log == nil {
		return summary, nil
	}

	var since time.Time
	if window > 0 {
		since = now.Add(-window)
	}
	events, err := a.log.Since(ctx, since)
	if err != nil {
		slog.Warn("event log unavailable, reporting counters only", "error", err)
		return summary, nil
	}
	if len(events) == 0 {
		return summary, nil
	}

	summarize(summary, events)
	return summary, nil
}

func summarize(summary *domain.AnalyticsSummary, events []domain.RequestEvent) {
	users := make(map[string]struct{})
	endpoints := make(map[string]int)
	byHour := make(map[int]int)
	var totalTime float64
	var errorCount int

	for _, event := range events {
		if event.UserID != "" {
			users[event.UserID] = struct{}{}
		}
		endpoints[event.Endpoint]++
		byHour[event.Timestamp.UTC().Hour()]++
		totalTime += event.ResponseTime
		if event.StatusCode >= 400 {
			errorCount++
		}
	}

	summary.Source = domain.SourceEvents
	summary.TotalRequests = len(events)
	summary.UniqueUsers = len(users)
	summary.AverageResponseTime = totalTime / float64(len(events))
	summary.ErrorRate = float64(errorCount) / float64(len(events))
	summary.RequestsByHour = byHour
	summary.TopEndpoints = topEndpoints(endpoints, topEndpointsLimit)
}

func topEndpoints(counts map[string]int, limit int) []domain.EndpointCount {
	out := make([]domain.EndpointCount, 0, len(counts))
	for endpoint, count := range counts {
		out = append(out, domain.EndpointCount{Endpoint: endpoint, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func parseTimeRange(timeRange string) (time.Duration, error) {
	timeRange = strings.TrimSpace(timeRange)
	if timeRange == "" || timeRange == "all" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(timeRange, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", domain.ErrInvalidTimeRange, timeRange)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(timeRange)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidTimeRange, timeRange)
	}
	return d, nil
}
