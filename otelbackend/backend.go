// Package otelbackend implements segmentz.Backend on OpenTelemetry spans.
//
// Namespaces, annotations and metadata become span attributes:
//
//	segmentz.namespace     the subsegment namespace
//	annotation.<key>       annotations
//	metadata.<ns>.<key>    metadata, non-primitive values serialized as JSON
//
// Usage:
//
//	backend := otelbackend.New(otel.Tracer("checkout"))
//	tracing := segmentz.NewTracing(backend, segmentz.NewEnvServiceName())
package otelbackend

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/zoobzio/segmentz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used when New is given nil.
const InstrumentationName = "github.com/zoobzio/segmentz"

// contextKey is a unique type for storing values in context to avoid collisions.
type contextKey struct{}

// Backend drives OpenTelemetry spans for a segmentz.Tracing facade.
type Backend struct {
	tracer trace.Tracer
}

var _ segmentz.Backend = (*Backend)(nil)

// New creates a backend on tracer. A nil tracer uses the global provider.
func New(tracer trace.Tracer) *Backend {
	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}
	return &Backend{tracer: tracer}
}

// CurrentSpan returns the recording span carried by ctx.
func (*Backend) CurrentSpan(ctx context.Context) (segmentz.Span, bool) {
	span := fromContext(ctx)
	if span == nil || !span.recording() {
		return nil, false
	}
	return span, true
}

// BeginSpan starts an internal span as a child of the span carried by ctx.
func (b *Backend) BeginSpan(ctx context.Context, name segmentz.Key) (context.Context, segmentz.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, otelSpan := b.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal)) //nolint:spancheck
	span := &Span{span: otelSpan, name: name}
	return context.WithValue(ctx, contextKey{}, span), span
}

// EndSpan ends the span carried by ctx.
func (*Backend) EndSpan(ctx context.Context) {
	if span := fromContext(ctx); span != nil {
		span.end()
	}
}

// SetTraceEntity returns a context whose parent span is entity.
// Entities from other backends are converted through their hex IDs;
// segmentz trace IDs of the form 1-<8 hex>-<24 hex> are accepted.
// An entity that cannot be converted clears the ambient identity.
func (*Backend) SetTraceEntity(ctx context.Context, entity segmentz.Entity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	sc := trace.SpanContext{}
	switch e := entity.(type) {
	case *Span:
		if e != nil {
			return context.WithValue(trace.ContextWithSpan(ctx, e.span), contextKey{}, e)
		}
	case nil:
	default:
		if converted, ok := spanContextOf(entity); ok {
			sc = converted
		}
	}
	// Drop any wrapper carried by ctx so it cannot shadow the new parent.
	return context.WithValue(trace.ContextWithSpanContext(ctx, sc), contextKey{}, (*Span)(nil))
}

// TraceEntity returns the span carried by ctx when its context is valid.
func (*Backend) TraceEntity(ctx context.Context) (segmentz.Entity, bool) {
	span := fromContext(ctx)
	if span == nil || !span.span.SpanContext().IsValid() {
		return nil, false
	}
	return span, true
}

// fromContext returns the wrapper for the OpenTelemetry span in ctx, wrapping
// spans started outside this backend on the fly.
// Wrappers are matched by span context: non-recording and no-op spans hold a
// TraceState and panic when compared with ==.
func fromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}

	otelSpan := trace.SpanFromContext(ctx)
	if span, ok := ctx.Value(contextKey{}).(*Span); ok && span != nil &&
		span.span.SpanContext().Equal(otelSpan.SpanContext()) {
		return span
	}
	if !otelSpan.SpanContext().IsValid() {
		return nil
	}
	return &Span{span: otelSpan}
}

func spanContextOf(entity segmentz.Entity) (trace.SpanContext, bool) {
	traceID, err := trace.TraceIDFromHex(normalizeTraceID(entity.TraceID()))
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(entity.ID())
	if err != nil {
		return trace.SpanContext{}, false
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return sc, sc.IsValid()
}

// normalizeTraceID turns 1-<8 hex>-<24 hex> into 32 hex characters.
func normalizeTraceID(id string) string {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != "1" || len(parts[1]) != 8 || len(parts[2]) != 24 {
		return id
	}
	joined := parts[1] + parts[2]
	if _, err := hex.DecodeString(joined); err != nil {
		return id
	}
	return joined
}
