package memory

import (
	"context"
	"sync"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

// EventLog keeps the most recent events in a ring buffer.
type EventLog struct {
	mu     sync.Mutex
	events []domain.RequestEvent
	next   int
	full   bool
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventLog{events: make([]domain.RequestEvent, capacity)}
}

func (l *EventLog) Append(_ context.Context, event domain.RequestEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events[l.next] = event
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

func (l *EventLog) Since(_ context.Context, t time.Time) ([]domain.RequestEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.events)
	}
	out := make([]domain.RequestEvent, 0, size)
	for i := 1; i <= size; i++ {
		idx := (l.next - i + len(l.events)) % len(l.events)
		event := l.events[idx]
		if event.Timestamp.Before(t) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}
