package otelbackend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/segmentz/otelbackend"
)

type order struct {
	ID    string `json:"id"`
	Items int    `json:"items"`
}

func TestSpanMetadataAttributes(t *testing.T) {
	t.Parallel()

	backend, exporter := setupTestTracer(t)

	ctx, span := backend.BeginSpan(context.Background(), "metadata")
	span.PutMetadata("orders", "id", "o-1")
	span.PutMetadata("orders", "paid", true)
	span.PutMetadata("orders", "count", 3)
	span.PutMetadata("orders", "total", 9.5)
	span.PutMetadata("orders", "tags", []string{"a", "b"})
	span.PutMetadata("orders", "timeout", 2*time.Second)
	span.PutMetadata("orders", "order", order{ID: "o-1", Items: 2})
	backend.EndSpan(ctx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := attributeMap(spans[0].Attributes)

	assert.Equal(t, "o-1", attrs["metadata.orders.id"].AsString())
	assert.True(t, attrs["metadata.orders.paid"].AsBool())
	assert.Equal(t, int64(3), attrs["metadata.orders.count"].AsInt64())
	assert.InDelta(t, 9.5, attrs["metadata.orders.total"].AsFloat64(), 0.0001)
	assert.Equal(t, []string{"a", "b"}, attrs["metadata.orders.tags"].AsStringSlice())
	assert.Equal(t, "2s", attrs["metadata.orders.timeout"].AsString())
	assert.JSONEq(t, `{"id":"o-1","items":2}`, attrs["metadata.orders.order"].AsString())
}

func TestSpanIgnoresWritesAfterEnd(t *testing.T) {
	t.Parallel()

	backend, exporter := setupTestTracer(t)

	ctx, span := backend.BeginSpan(context.Background(), "closed")
	span.SetNamespace("before")
	backend.EndSpan(ctx)

	span.SetNamespace("after")
	span.PutAnnotation("late", "value")
	backend.EndSpan(ctx)

	assert.Equal(t, "before", span.Namespace())
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	_, late := attributeMap(spans[0].Attributes)["annotation.late"]
	assert.False(t, late)

	_, ok := backend.CurrentSpan(ctx)
	assert.False(t, ok)
}

func TestSpanEntityIDs(t *testing.T) {
	t.Parallel()

	backend, exporter := setupTestTracer(t)

	ctx, span := backend.BeginSpan(context.Background(), "ids")
	entity, ok := backend.TraceEntity(ctx)
	require.True(t, ok)
	backend.EndSpan(ctx)

	stub := exporter.GetSpans()[0]
	assert.Equal(t, stub.SpanContext.TraceID().String(), entity.TraceID())
	assert.Equal(t, stub.SpanContext.SpanID().String(), entity.ID())
	assert.Equal(t, "ids", span.Name())
	assert.Equal(t, stub.SpanContext.SpanID(), span.(*otelbackend.Span).OTel().SpanContext().SpanID())
}

func TestNewWithNilTracer(t *testing.T) {
	t.Parallel()

	backend := otelbackend.New(nil)
	ctx, span := backend.BeginSpan(context.Background(), "global")
	assert.NotNil(t, span)
	assert.NotPanics(t, func() { backend.EndSpan(ctx) })
}
