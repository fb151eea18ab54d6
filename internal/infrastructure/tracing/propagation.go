package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	HeaderTraceparent = "Traceparent"
	HeaderTracestate  = "Tracestate"
)

var (
	traceparentPattern = regexp.MustCompile(`^00-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})$`)
	zeroTraceID        = strings.Repeat("0", 32)
	zeroSpanID         = strings.Repeat("0", 16)
)

// TraceContext is the W3C trace context of the span currently in flight.
type TraceContext struct {
	TraceID  string
	SpanID   string
	ParentID string
	Flags    string
	State    string
}

// ParseTraceparent accepts version 00 headers only. All-zero ids are rejected.
func ParseTraceparent(header string) (TraceContext, bool) {
	m := traceparentPattern.FindStringSubmatch(header)
	if len(m) != 4 || m[1] == zeroTraceID || m[2] == zeroSpanID {
		return TraceContext{}, false
	}
	return TraceContext{TraceID: m[1], SpanID: m[2], Flags: m[3]}, true
}

func (tc TraceContext) Traceparent() string {
	flags := tc.Flags
	if flags == "" {
		flags = "01"
	}
	return fmt.Sprintf("00-%s-%s-%s", tc.TraceID, tc.SpanID, flags)
}

// Child starts a new span under tc, or a new trace when tc is empty.
func (tc TraceContext) Child() TraceContext {
	child := TraceContext{
		TraceID:  tc.TraceID,
		SpanID:   NewSpanID(),
		ParentID: tc.SpanID,
		Flags:    tc.Flags,
		State:    tc.State,
	}
	if child.TraceID == "" {
		child.TraceID = NewTraceID()
		child.ParentID = ""
	}
	if child.Flags == "" {
		child.Flags = "01"
	}
	return child
}

func NewTraceID() string {
	return randomHex(16)
}

func NewSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type traceContextKey struct{}

func ContextWithTrace(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

func FromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey{}).(TraceContext)
	return tc, ok
}
