package tracing

import (
	"context"
	"log/slog"
	"time"
)

type SpanKind int

const (
	SpanKindServer SpanKind = iota
	SpanKindClient
	SpanKindInternal
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	case SpanKindInternal:
		return "INTERNAL"
	default:
		return "UNSPECIFIED"
	}
}

// SpanData is one finished span. Attribute values may be string, bool,
// int, int64 or float64; anything else is exported as its string form.
type SpanData struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Kind         SpanKind
	StartTime    time.Time
	EndTime      time.Time
	StatusCode   int
	Err          string
	Attributes   map[string]any
}

type SpanExporter interface {
	Export(ctx context.Context, span SpanData)
	Shutdown(ctx context.Context) error
}

type Config struct {
	Exporter      string
	Endpoint      string
	ServiceName   string
	BatchSize     int
	FlushInterval time.Duration
}

// NewExporter returns the OTLP/HTTP exporter when cfg.Exporter is "otlp"
// and a no-op exporter otherwise.
func NewExporter(cfg Config) SpanExporter {
	if cfg.Exporter != "otlp" {
		slog.Debug("trace exporter disabled", "exporter", cfg.Exporter)
		return NoopExporter{}
	}
	if cfg.Endpoint == "" {
		slog.Warn("otlp trace exporter requested without endpoint, tracing disabled")
		return NoopExporter{}
	}
	slog.Info("trace exporter enabled",
		"exporter", "otlp",
		"endpoint", cfg.Endpoint,
		"service_name", cfg.ServiceName,
	)
	return NewOTLPExporter(cfg)
}
