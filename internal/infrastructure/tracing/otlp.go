package tracing

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 5 * time.Second
	instrumentationScope = "github.com/apascualco/trafficcop"
)

// OTLPExporter batches spans and posts them as protobuf to an OTLP/HTTP
// traces endpoint.
type OTLPExporter struct {
	endpoint      string
	serviceName   string
	batchSize     int
	flushInterval time.Duration
	client        *http.Client

	spans   chan SpanData
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

func NewOTLPExporter(cfg Config) *OTLPExporter {
	e := &OTLPExporter{
		endpoint:      cfg.Endpoint,
		serviceName:   cfg.ServiceName,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		client:        &http.Client{Timeout: 10 * time.Second},
		spans:         make(chan SpanData, defaultBufferSize),
		done:          make(chan struct{}),
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	if e.flushInterval <= 0 {
		e.flushInterval = defaultFlushInterval
	}
	e.wg.Add(1)
	go e.batchLoop()
	return e
}

// Export never blocks; spans are dropped while the buffer is full.
func (e *OTLPExporter) Export(_ context.Context, span SpanData) {
	select {
	case e.spans <- span:
	default:
		if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("otlp exporter buffer full, dropping spans", "dropped", n)
		}
	}
}

func (e *OTLPExporter) Dropped() uint64 {
	return e.dropped.Load()
}

// Shutdown flushes buffered spans. It is safe to call more than once.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	e.stop.Do(func() { close(e.done) })

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *OTLPExporter) batchLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	batch := make([]SpanData, 0, e.batchSize)
	add := func(span SpanData) {
		batch = append(batch, span)
		if len(batch) >= e.batchSize {
			e.flush(batch)
			batch = make([]SpanData, 0, e.batchSize)
		}
	}

	for {
		select {
		case span := <-e.spans:
			add(span)
		case <-ticker.C:
			if len(batch) > 0 {
				e.flush(batch)
				batch = make([]SpanData, 0, e.batchSize)
			}
		case <-e.done:
			for {
				select {
				case span := <-e.spans:
					add(span)
				default:
					if len(batch) > 0 {
						e.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (e *OTLPExporter) flush(batch []SpanData) {
	if err := e.send(batch); err != nil {
		slog.Error("otlp exporter failed to send spans", "error", err, "count", len(batch))
	}
}

func (e *OTLPExporter) send(batch []SpanData) error {
	body, err := proto.Marshal(e.buildProto(batch))
	if err != nil {
		return fmt.Errorf("marshal spans: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector responded %d", resp.StatusCode)
	}
	return nil
}

func (e *OTLPExporter) buildProto(batch []SpanData) *tracepb.TracesData {
	spans := make([]*tracepb.Span, 0, len(batch))
	for _, s := range batch {
		spans = append(spans, spanDataToProto(s))
	}

	return &tracepb.TracesData{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: toProtoAttributes(map[string]any{"service.name": e.serviceName}),
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: instrumentationScope},
				Spans: spans,
			}},
		}},
	}
}

func spanDataToProto(s SpanData) *tracepb.Span {
	traceID, _ := hex.DecodeString(s.TraceID)
	spanID, _ := hex.DecodeString(s.SpanID)

	span := &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		Name:              s.Name,
		Kind:              toProtoSpanKind(s.Kind),
		StartTimeUnixNano: uint64(s.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(s.EndTime.UnixNano()),
		Status:            toProtoStatus(s),
		Attributes:        toProtoAttributes(s.Attributes),
	}

	if s.ParentSpanID != "" {
		span.ParentSpanId, _ = hex.DecodeString(s.ParentSpanID)
	}
	return span
}

func toProtoSpanKind(k SpanKind) tracepb.Span_SpanKind {
	switch k {
	case SpanKindServer:
		return tracepb.Span_SPAN_KIND_SERVER
	case SpanKindClient:
		return tracepb.Span_SPAN_KIND_CLIENT
	case SpanKindInternal:
		return tracepb.Span_SPAN_KIND_INTERNAL
	default:
		return tracepb.Span_SPAN_KIND_UNSPECIFIED
	}
}

func toProtoStatus(s SpanData) *tracepb.Status {
	if s.Err != "" || s.StatusCode >= 500 {
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR, Message: s.Err}
	}
	return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK}
}

// toProtoAttributes sorts keys so exported spans are stable.
func toProtoAttributes(attrs map[string]any) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]*commonpb.KeyValue, 0, len(attrs))
	for _, k := range keys {
		kvs = append(kvs, &commonpb.KeyValue{Key: k, Value: toAnyValue(attrs[k])})
	}
	return kvs
}

func toAnyValue(v any) *commonpb.AnyValue {
	switch val := v.(type) {
	case string:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: val}}
	case bool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: val}}
	case int:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(val)}}
	case int64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: val}}
	case float64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: val}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: fmt.Sprint(val)}}
	}
}
