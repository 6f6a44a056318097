package segmentz

import (
	"context"

	"go.uber.org/zap"
)

// Tracing is the facade application code talks to.
// Safe for concurrent use by multiple goroutines.
type Tracing struct {
	backend  Backend
	resolver ServiceNameResolver
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Tracing.
type Option func(*Tracing)

// WithLogger sets the logger used for absent-context diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracing) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics enables facade counters.
func WithMetrics(metrics *Metrics) Option {
	return func(t *Tracing) {
		t.metrics = metrics
	}
}

// NewTracing creates a facade over backend. A nil backend disables tracing,
// a nil resolver resolves to DefaultServiceName.
func NewTracing(backend Backend, resolver ServiceNameResolver, opts ...Option) *Tracing {
	if backend == nil {
		backend = NoopBackend{}
	}
	if resolver == nil {
		resolver = StaticServiceName(DefaultServiceName)
	}

	t := &Tracing{
		backend:  backend,
		resolver: resolver,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Backend returns the backend the facade drives.
func (t *Tracing) Backend() Backend {
	return t.backend
}

// PutAnnotation sets key on the current subsegment.
// Without a current subsegment this does nothing.
func (t *Tracing) PutAnnotation(ctx context.Context, key, value string) {
	span, ok := t.current(ctx, "annotation")
	if !ok {
		return
	}
	span.PutAnnotation(key, value)
}

// PutMetadata records value on the current subsegment under the current
// subsegment's namespace, or the service name when it has none.
// Without a current subsegment this does nothing.
func (t *Tracing) PutMetadata(ctx context.Context, key string, value any) {
	span, ok := t.current(ctx, "metadata")
	if !ok {
		return
	}

	namespace := span.Namespace()
	if namespace == "" {
		namespace = t.resolver.ServiceName()
	}
	span.PutMetadata(namespace, key, value)
}

// PutMetadataWithNamespace records value on the current subsegment under namespace.
// Without a current subsegment this does nothing.
func (t *Tracing) PutMetadataWithNamespace(ctx context.Context, namespace, key string, value any) {
	span, ok := t.current(ctx, "metadata")
	if !ok {
		return
	}
	span.PutMetadata(namespace, key, value)
}

func (t *Tracing) current(ctx context.Context, operation string) (Span, bool) {
	span, ok := t.backend.CurrentSpan(ctx)
	if !ok || span == nil {
		t.logger.Debug("no current subsegment, dropping write", zap.String("operation", operation))
		t.metrics.writeWithoutSubsegment(operation)
		return nil, false
	}
	return span, true
}

// CurrentEntity returns the trace identity carried by ctx. Capture it before
// handing work to another goroutine and pass it to WithEntitySubsegment there.
func (t *Tracing) CurrentEntity(ctx context.Context) (Entity, bool) {
	return t.backend.TraceEntity(ctx)
}

// WithSubsegment runs work inside a new subsegment named "## "+name in the
// service name namespace. The subsegment is closed before WithSubsegment
// returns, whether work returns an error or panics. work's error is returned
// as is.
func (t *Tracing) WithSubsegment(ctx context.Context, name string, work Work) error {
	return t.run(ctx, t.resolver.ServiceName(), name, work)
}

// WithSubsegmentNamespace is WithSubsegment with an explicit namespace.
func (t *Tracing) WithSubsegmentNamespace(ctx context.Context, namespace, name string, work Work) error {
	return t.run(ctx, namespace, name, work)
}

// WithEntitySubsegment is WithSubsegment for work running on a goroutine that
// does not carry the originating trace. ctx is re-seeded with entity before
// the subsegment is opened.
func (t *Tracing) WithEntitySubsegment(ctx context.Context, name string, entity Entity, work Work) error {
	ctx = t.backend.SetTraceEntity(ctx, entity)
	return t.run(ctx, t.resolver.ServiceName(), name, work)
}

// WithEntitySubsegmentNamespace is WithEntitySubsegment with an explicit namespace.
func (t *Tracing) WithEntitySubsegmentNamespace(ctx context.Context, namespace, name string, entity Entity, work Work) error {
	ctx = t.backend.SetTraceEntity(ctx, entity)
	return t.run(ctx, namespace, name, work)
}

func (t *Tracing) run(ctx context.Context, namespace, name string, work Work) error {
	if ctx == nil {
		ctx = context.Background()
	}

	spanCtx, span := t.backend.BeginSpan(ctx, SubsegmentPrefix+name)
	t.metrics.subsegmentStarted(namespace)
	defer func() {
		t.backend.EndSpan(spanCtx)
		t.metrics.subsegmentEnded(namespace)
	}()

	span.SetNamespace(namespace)

	if work == nil {
		return nil
	}
	return work(spanCtx, span)
}

// SubsegmentValue runs work inside a subsegment like WithSubsegment and
// returns its value.
func SubsegmentValue[T any](ctx context.Context, t *Tracing, name string, work func(ctx context.Context, span Span) (T, error)) (T, error) {
	if t == nil {
		t = Default()
	}
	return SubsegmentValueNamespace(ctx, t, t.resolver.ServiceName(), name, work)
}

// SubsegmentValueNamespace is SubsegmentValue with an explicit namespace.
func SubsegmentValueNamespace[T any](ctx context.Context, t *Tracing, namespace, name string, work func(ctx context.Context, span Span) (T, error)) (T, error) {
	if t == nil {
		t = Default()
	}

	var value T
	var inner Work
	if work != nil {
		inner = func(ctx context.Context, span Span) error {
			var err error
			value, err = work(ctx, span)
			return err
		}
	}
	err := t.run(ctx, namespace, name, inner)
	return value, err
}
