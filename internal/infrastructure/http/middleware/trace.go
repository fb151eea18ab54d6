package middleware

import (
	"context"
	"time"

	"github.com/apascualco/trafficcop/internal/infrastructure/tracing"
	"github.com/gin-gonic/gin"
)

const (
	ContextKeyTraceID = "trace_id"
	ContextKeySpanID  = "span_id"
)

// Trace continues an incoming W3C trace, or starts one, and records the
// request as a server span. The trace context is stored on the request
// context so downstream dispatch spans become its children.
func Trace(exporter tracing.SpanExporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		incoming, ok := tracing.ParseTraceparent(c.GetHeader(tracing.HeaderTraceparent))
		if ok {
			incoming.State = c.GetHeader(tracing.HeaderTracestate)
		}
		tc := incoming.Child()

		c.Set(ContextKeyTraceID, tc.TraceID)
		c.Set(ContextKeySpanID, tc.SpanID)
		c.Request = c.Request.WithContext(tracing.ContextWithTrace(c.Request.Context(), tc))

		c.Header(tracing.HeaderTraceparent, tc.Traceparent())
		if tc.State != "" {
			c.Header(tracing.HeaderTracestate, tc.State)
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "gateway"
		}
		status := c.Writer.Status()

		span := tracing.SpanData{
			TraceID:      tc.TraceID,
			SpanID:       tc.SpanID,
			ParentSpanID: tc.ParentID,
			Name:         c.Request.Method + " " + route,
			Kind:         tracing.SpanKindServer,
			StartTime:    start,
			EndTime:      time.Now(),
			StatusCode:   status,
			Attributes: map[string]any{
				"http.method":      c.Request.Method,
				"http.target":      c.Request.URL.Path,
				"http.route":       route,
				"http.status_code": status,
				"net.peer.ip":      c.ClientIP(),
			},
		}
		if requestID := c.GetString(ContextKeyRequestID); requestID != "" {
			span.Attributes["request.id"] = requestID
		}
		if len(c.Errors) > 0 {
			span.Err = c.Errors.String()
		}

		exporter.Export(context.WithoutCancel(c.Request.Context()), span)
	}
}
