// Package segmentz provides a small tracing facade for annotating the current
// subsegment and wrapping units of work in child subsegments.
//
// segmentz sits between application code and a trace backend. Application
// code never looks up or nil-checks the current subsegment itself: writes made
// while no subsegment is current are silently dropped.
//
// Core Components:
//   - Tracing: the facade. Annotations, metadata and scoped subsegments.
//   - Backend: the trace backend contract the facade drives.
//   - Tracer: an in-process Backend with collectors and completion handlers.
//   - Collector: Buffers completed segments for export.
//
// Basic Usage:
//
//	tracer := segmentz.New()
//	defer tracer.Close()
//
//	tracing := segmentz.NewTracing(tracer, segmentz.StaticServiceName("checkout"))
//
//	err := tracing.WithSubsegment(ctx, "DB Call", func(ctx context.Context, span segmentz.Span) error {
//		tracing.PutAnnotation(ctx, "rows", "5")
//		return nil
//	})
//
// Context Propagation:
//
// The current subsegment travels in context.Context. Work handed to another
// goroutine that does not receive the caller's context loses its lineage; use
// CurrentEntity before the hand-off and WithEntitySubsegment on the receiving
// side to re-establish it.
//
//	entity, _ := tracing.CurrentEntity(ctx)
//	jobs <- Job{Entity: entity}
//
//	// worker goroutine
//	tracing.WithEntitySubsegment(workerCtx, "process", job.Entity, work)
//
// Resource Cleanup:
//
// Call tracer.Close() to properly shut down all background goroutines.
package segmentz

import "context"

// SubsegmentPrefix marks subsegments created through the facade.
const SubsegmentPrefix = "## "

// Key represents a subsegment display name.
type Key = string

// Entity is an opaque handle on a position in a trace tree.
// Capture it with CurrentEntity and hand it to another goroutine to keep
// subsegments created there attached to the same trace.
type Entity interface {
	TraceID() string
	ID() string
}

// Span is a subsegment as seen by the facade.
// Implementations must ignore writes once the subsegment is closed.
type Span interface {
	Name() string
	Namespace() string
	SetNamespace(namespace string)
	PutAnnotation(key, value string)
	PutMetadata(namespace, key string, value any)
}

// Backend is the trace backend driven by Tracing.
type Backend interface {
	// CurrentSpan returns the open subsegment carried by ctx, if any.
	CurrentSpan(ctx context.Context) (Span, bool)
	// BeginSpan opens a child of the entity carried by ctx. The returned
	// context carries the new subsegment as current.
	BeginSpan(ctx context.Context, name Key) (context.Context, Span)
	// EndSpan closes the subsegment current in ctx.
	EndSpan(ctx context.Context)
	// SetTraceEntity overwrites the ambient trace identity carried by ctx.
	SetTraceEntity(ctx context.Context, entity Entity) context.Context
	// TraceEntity returns the ambient trace identity carried by ctx.
	TraceEntity(ctx context.Context) (Entity, bool)
}

// Work is a unit of work run inside a subsegment.
type Work func(ctx context.Context, span Span) error
