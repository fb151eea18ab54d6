package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/apascualco/trafficcop/internal/infrastructure/tracing"
)

const maxResponseBytes = 10 << 20

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Dispatcher forwards gateway requests over HTTP to the selected instance.
type Dispatcher struct {
	client   *http.Client
	exporter tracing.SpanExporter
}

type Option func(*Dispatcher)

// WithSpanExporter records every upstream call as a client span and
// propagates the trace context to the instance.
func WithSpanExporter(exporter tracing.SpanExporter) Option {
	return func(d *Dispatcher) { d.exporter = exporter }
}

func NewDispatcher(timeout time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:   &http.Client{Timeout: timeout},
		exporter: tracing.NoopExporter{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, instance *domain.ServiceInstance, req *domain.GatewayRequest) (*domain.DispatchResult, error) {
	target := &url.URL{
		Scheme:   "http",
		Host:     instance.Address(),
		Path:     req.Path,
		RawQuery: req.RawQuery,
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrDispatchFailure, err)
	}
	out.Header = forwardHeaders(req)

	parent, _ := tracing.FromContext(ctx)
	span := parent.Child()
	out.Header.Set(tracing.HeaderTraceparent, span.Traceparent())
	if span.State != "" {
		out.Header.Set(tracing.HeaderTracestate, span.State)
	}

	start := time.Now()
	resp, err := d.client.Do(out)
	if err != nil {
		d.record(ctx, span, start, instance, req, 0, err)
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrDispatchFailure, req.Method, instance.Address(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err == nil && len(payload) > maxResponseBytes {
		err = fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}
	if err != nil {
		d.record(ctx, span, start, instance, req, resp.StatusCode, err)
		return nil, fmt.Errorf("%w: read response from %s: %w", domain.ErrDispatchFailure, instance.Address(), err)
	}
	d.record(ctx, span, start, instance, req, resp.StatusCode, nil)

	headers := resp.Header.Clone()
	stripHopByHop(headers)
	headers.Del("Content-Length")

	return &domain.DispatchResult{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       payload,
	}, nil
}

func (d *Dispatcher) record(ctx context.Context, span tracing.TraceContext, start time.Time, instance *domain.ServiceInstance, req *domain.GatewayRequest, status int, err error) {
	data := tracing.SpanData{
		TraceID:      span.TraceID,
		SpanID:       span.SpanID,
		ParentSpanID: span.ParentID,
		Name:         "dispatch " + req.Service,
		Kind:         tracing.SpanKindClient,
		StartTime:    start,
		EndTime:      time.Now(),
		StatusCode:   status,
		Attributes: map[string]any{
			"http.method":      req.Method,
			"http.target":      req.Path,
			"http.status_code": status,
			"peer.service":     req.Service,
			"peer.instance":    instance.ID,
			"net.peer.name":    instance.Host,
			"net.peer.port":    instance.Port,
		},
	}
	if err != nil {
		data.Err = err.Error()
	}
	d.exporter.Export(ctx, data)
}

func forwardHeaders(req *domain.GatewayRequest) http.Header {
	headers := req.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	stripHopByHop(headers)

	if req.ClientIP != "" {
		clientIP := req.ClientIP
		if prior := headers.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		headers.Set("X-Forwarded-For", clientIP)
	}
	if req.Host != "" {
		headers.Set("X-Forwarded-Host", req.Host)
	}
	if headers.Get("X-Forwarded-Proto") == "" {
		headers.Set("X-Forwarded-Proto", "http")
	}
	if req.Service != "" {
		headers.Set("X-Forwarded-Service", req.Service)
	}
	if req.UserID != "" {
		headers.Set("X-User-ID", req.UserID)
	}
	return headers
}

// stripHopByHop removes the fixed hop-by-hop set plus any header the
// Connection header names.
func stripHopByHop(headers http.Header) {
	for _, value := range headers.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				headers.Del(name)
			}
		}
	}
	for _, h := range hopByHopHeaders {
		headers.Del(h)
	}
}
