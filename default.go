package segmentz

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	defaultTracing atomic.Pointer[Tracing]
	defaultOnce    sync.Once
)

// Default returns the process-wide facade used by the package-level functions.
// Unless SetDefault was called first, it is built once from the environment:
// an in-process Tracer with one collector named "default", or NoopBackend
// when POWERTOOLS_TRACE_DISABLED is set.
func Default() *Tracing {
	defaultOnce.Do(func() {
		if defaultTracing.Load() != nil {
			return
		}
		t, err := NewTracingFromConfig(LoadConfigOrDefault())
		if err != nil {
			t = NewTracing(New(), NewEnvServiceName())
		}
		defaultTracing.CompareAndSwap(nil, t)
	})
	return defaultTracing.Load()
}

// SetDefault replaces the process-wide facade.
func SetDefault(t *Tracing) {
	if t == nil {
		return
	}
	defaultTracing.Store(t)
}

// NewTracingFromConfig builds a facade over an in-process Tracer sized by cfg.
// The tracer's "default" collector is reachable through DefaultCollector.
func NewTracingFromConfig(cfg *Config) (*Tracing, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := NewLoggerOrNop(cfg.Logging)
	resolver := StaticServiceName(cfg.Service.Name)
	if cfg.Service.Name == "" {
		resolver = DefaultServiceName
	}

	if cfg.Service.TracingDisable {
		logger.Info("tracing disabled, subsegments will not be recorded")
		return NewTracing(NoopBackend{}, resolver, WithLogger(logger)), nil
	}

	tracer := New().WithLogger(logger)
	if cfg.Collector.AsyncWorkers > 0 {
		if err := tracer.EnableWorkerPool(cfg.Collector.AsyncWorkers, cfg.Collector.AsyncQueue); err != nil {
			return nil, err
		}
	}
	if cfg.Collector.BufferSize > 0 {
		tracer.AddCollector(defaultCollectorName, NewCollector(defaultCollectorName, cfg.Collector.BufferSize))
	}

	logger.Debug("tracing initialized",
		zap.String("service", string(resolver)),
		zap.Int("collector_buffer", cfg.Collector.BufferSize),
		zap.Int("async_workers", cfg.Collector.AsyncWorkers),
	)
	return NewTracing(tracer, resolver, WithLogger(logger)), nil
}

const defaultCollectorName = "default"

// DefaultCollector returns the "default" collector of t's in-process tracer.
func DefaultCollector(t *Tracing) (*Collector, bool) {
	if t == nil {
		return nil, false
	}
	tracer, ok := t.backend.(*Tracer)
	if !ok {
		return nil, false
	}
	return tracer.Collector(defaultCollectorName)
}

// PutAnnotation calls Default().PutAnnotation.
func PutAnnotation(ctx context.Context, key, value string) {
	Default().PutAnnotation(ctx, key, value)
}

// PutMetadata calls Default().PutMetadata.
func PutMetadata(ctx context.Context, key string, value any) {
	Default().PutMetadata(ctx, key, value)
}

// PutMetadataWithNamespace calls Default().PutMetadataWithNamespace.
func PutMetadataWithNamespace(ctx context.Context, namespace, key string, value any) {
	Default().PutMetadataWithNamespace(ctx, namespace, key, value)
}

// CurrentEntity calls Default().CurrentEntity.
func CurrentEntity(ctx context.Context) (Entity, bool) {
	return Default().CurrentEntity(ctx)
}

// WithSubsegment calls Default().WithSubsegment.
func WithSubsegment(ctx context.Context, name string, work Work) error {
	return Default().WithSubsegment(ctx, name, work)
}

// WithSubsegmentNamespace calls Default().WithSubsegmentNamespace.
func WithSubsegmentNamespace(ctx context.Context, namespace, name string, work Work) error {
	return Default().WithSubsegmentNamespace(ctx, namespace, name, work)
}

// WithEntitySubsegment calls Default().WithEntitySubsegment.
func WithEntitySubsegment(ctx context.Context, name string, entity Entity, work Work) error {
	return Default().WithEntitySubsegment(ctx, name, entity, work)
}

// WithEntitySubsegmentNamespace calls Default().WithEntitySubsegmentNamespace.
func WithEntitySubsegmentNamespace(ctx context.Context, namespace, name string, entity Entity, work Work) error {
	return Default().WithEntitySubsegmentNamespace(ctx, namespace, name, entity, work)
}
