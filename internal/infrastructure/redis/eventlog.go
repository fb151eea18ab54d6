package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/redis/go-redis/v9"
)

const eventLogKey = "traffic_analytics:events"

// EventLog is a capped Redis list of request events, newest at the head.
type EventLog struct {
	client    redis.UniversalClient
	maxEvents int64
}

func NewEventLog(client redis.UniversalClient, maxEvents int) *EventLog {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	return &EventLog{client: client, maxEvents: int64(maxEvents)}
}

func (l *EventLog) Append(ctx context.Context, event domain.RequestEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, eventLogKey, payload)
		pipe.LTrim(ctx, eventLogKey, 0, l.maxEvents-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append event: %w", err)
	}
	return nil
}

func (l *EventLog) Since(ctx context.Context, t time.Time) ([]domain.RequestEvent, error) {
	raw, err := l.client.LRange(ctx, eventLogKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read events: %w", err)
	}

	events := make([]domain.RequestEvent, 0, len(raw))
	for _, item := range raw {
		var event domain.RequestEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			slog.Warn("skipping malformed request event", "error", err)
			continue
		}
		if event.Timestamp.Before(t) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
