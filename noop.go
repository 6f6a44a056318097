package segmentz

import "context"

// NoopBackend never has a current subsegment. BeginSpan hands out spans that
// discard every write, so wrapped work still runs when tracing is disabled.
type NoopBackend struct{}

// CurrentSpan always reports no subsegment.
func (NoopBackend) CurrentSpan(context.Context) (Span, bool) {
	return nil, false
}

// BeginSpan returns ctx unchanged and a span that records nothing.
func (NoopBackend) BeginSpan(ctx context.Context, name Key) (context.Context, Span) {
	return ctx, noopSpan{name: name}
}

// EndSpan does nothing.
func (NoopBackend) EndSpan(context.Context) {}

// SetTraceEntity returns ctx unchanged.
func (NoopBackend) SetTraceEntity(ctx context.Context, _ Entity) context.Context {
	return ctx
}

// TraceEntity always reports no entity.
func (NoopBackend) TraceEntity(context.Context) (Entity, bool) {
	return nil, false
}

type noopSpan struct {
	name string
}

func (s noopSpan) Name() string                  { return s.name }
func (noopSpan) Namespace() string               { return "" }
func (noopSpan) SetNamespace(string)             {}
func (noopSpan) PutAnnotation(string, string)    {}
func (noopSpan) PutMetadata(string, string, any) {}
