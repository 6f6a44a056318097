package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zoobzio/segmentz"
	"github.com/zoobzio/segmentz/otelbackend"
)

// shape is a backend-neutral view of a finished subsegment.
type shape struct {
	name   string
	parent string
}

// runScenario drives the same request through any backend: a request
// subsegment, a nested query and a worker hand-off.
func runScenario(t *testing.T, tracing *segmentz.Tracing) {
	t.Helper()

	err := tracing.WithSubsegment(context.Background(), "request", func(ctx context.Context, _ segmentz.Span) error {
		tracing.PutAnnotation(ctx, "route", "/orders")

		if err := tracing.WithSubsegmentNamespace(ctx, "db", "query", func(ctx context.Context, _ segmentz.Span) error {
			tracing.PutMetadata(ctx, "rows", 3)
			return nil
		}); err != nil {
			return err
		}

		entity, ok := tracing.CurrentEntity(ctx)
		require.True(t, ok)

		done := make(chan error, 1)
		go func() {
			done <- tracing.WithEntitySubsegment(context.Background(), "worker", entity, nil)
		}()
		return <-done
	})
	require.NoError(t, err)
}

func TestBackendsProduceSameTree(t *testing.T) {
	want := []shape{
		{name: "## query", parent: "## request"},
		{name: "## worker", parent: "## request"},
		{name: "## request", parent: ""},
	}

	t.Run("in-process", func(t *testing.T) {
		h := NewHarness(t, "orders")
		runScenario(t, h.Tracing)

		segments := h.Collector.Export()
		require.Len(t, segments, 3)

		names := make(map[string]string, len(segments))
		for _, s := range segments {
			names[s.ID] = s.Name
		}
		got := make([]shape, 0, len(segments))
		for _, s := range segments {
			got = append(got, shape{name: s.Name, parent: names[s.ParentID]})
		}
		assert.ElementsMatch(t, want, got)

		query := One(t, segments, "## query")
		assert.Equal(t, "db", query.Namespace)
		assert.Equal(t, 3, query.Metadata["db"]["rows"])
	})

	t.Run("opentelemetry", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

		backend := otelbackend.New(provider.Tracer("parity"))
		runScenario(t, segmentz.NewTracing(backend, segmentz.StaticServiceName("orders")))

		ended := recorder.Ended()
		require.Len(t, ended, 3)

		names := make(map[string]string, len(ended))
		for _, s := range ended {
			names[s.SpanContext().SpanID().String()] = s.Name()
		}
		got := make([]shape, 0, len(ended))
		for _, s := range ended {
			got = append(got, shape{name: s.Name(), parent: names[s.Parent().SpanID().String()]})
		}
		assert.ElementsMatch(t, want, got)

		traceID := ended[0].SpanContext().TraceID()
		for _, s := range ended {
			assert.Equal(t, traceID, s.SpanContext().TraceID(), s.Name())
		}
	})
}
