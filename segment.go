package segmentz

import (
	"context"
	"sync"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "segmentz"
)

// Segment is the record of a single unit of work in a trace.
// Segments handed to collectors and handlers are copies and safe to keep.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Segment struct {
	Annotations map[string]any            `json:"annotations,omitempty"`
	Metadata    map[string]map[string]any `json:"metadata,omitempty"`
	StartTime   time.Time                 `json:"start_time"`
	EndTime     time.Time                 `json:"end_time,omitempty"`
	Duration    time.Duration             `json:"duration"`
	TraceID     string                    `json:"trace_id"`
	ID          string                    `json:"id"`
	ParentID    string                    `json:"parent_id,omitempty"`
	Name        string                    `json:"name"`
	Namespace   string                    `json:"namespace,omitempty"`
}

// clone returns a copy that shares no maps with s.
// Metadata values themselves are not copied.
func (s *Segment) clone() Segment {
	out := *s
	if s.Annotations != nil {
		out.Annotations = make(map[string]any, len(s.Annotations))
		for k, v := range s.Annotations {
			out.Annotations[k] = v
		}
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]map[string]any, len(s.Metadata))
		for ns, entries := range s.Metadata {
			inner := make(map[string]any, len(entries))
			for k, v := range entries {
				inner[k] = v
			}
			out.Metadata[ns] = inner
		}
	}
	return out
}

// Subsegment wraps a Segment with thread-safe writes and lifecycle management.
// Safe for concurrent use by multiple goroutines.
// Every write is a no-op once the subsegment is closed.
type Subsegment struct {
	segment *Segment
	tracer  *Tracer
	mu      sync.Mutex
}

// Name returns the display name.
func (s *Subsegment) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.Name
}

// Namespace returns the namespace, empty if none was set.
func (s *Subsegment) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.Namespace
}

// SetNamespace sets the namespace.
func (s *Subsegment) SetNamespace(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closedLocked() {
		return
	}
	s.segment.Namespace = namespace
}

// PutAnnotation records a string annotation, replacing any previous value.
func (s *Subsegment) PutAnnotation(key, value string) {
	s.putAnnotation(key, value)
}

// PutIntAnnotation records an integer annotation.
func (s *Subsegment) PutIntAnnotation(key string, value int64) {
	s.putAnnotation(key, value)
}

// PutBoolAnnotation records a boolean annotation.
func (s *Subsegment) PutBoolAnnotation(key string, value bool) {
	s.putAnnotation(key, value)
}

func (s *Subsegment) putAnnotation(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closedLocked() {
		return
	}

	if s.segment.Annotations == nil {
		s.segment.Annotations = make(map[string]any)
	}
	s.segment.Annotations[key] = value
}

// Annotation retrieves an annotation by key.
func (s *Subsegment) Annotation(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.segment.Annotations == nil {
		return nil, false
	}
	value, ok := s.segment.Annotations[key]
	return value, ok
}

// PutMetadata records value under namespace and key, replacing any previous value.
func (s *Subsegment) PutMetadata(namespace, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closedLocked() {
		return
	}

	if s.segment.Metadata == nil {
		s.segment.Metadata = make(map[string]map[string]any)
	}
	entries, ok := s.segment.Metadata[namespace]
	if !ok {
		entries = make(map[string]any)
		s.segment.Metadata[namespace] = entries
	}
	entries[key] = value
}

// Metadata retrieves a metadata value by namespace and key.
func (s *Subsegment) Metadata(namespace, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.segment.Metadata[namespace]
	if !ok {
		return nil, false
	}
	value, ok := entries[key]
	return value, ok
}

// TraceID returns the trace ID of this subsegment.
func (s *Subsegment) TraceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.TraceID
}

// ID returns the subsegment ID.
func (s *Subsegment) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.ID
}

// ParentID returns the ID of the entity this subsegment was opened under.
func (s *Subsegment) ParentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.ParentID
}

// Closed reports whether the subsegment has been closed.
func (s *Subsegment) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedLocked()
}

func (s *Subsegment) closedLocked() bool {
	return !s.segment.EndTime.IsZero()
}

// Record returns a copy of the current state.
func (s *Subsegment) Record() Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.clone()
}

// Close completes the subsegment and sends it to the tracer for collection.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subsegment) Close() {
	s.mu.Lock()

	// Prevent double-closing.
	if s.closedLocked() {
		s.mu.Unlock()
		return
	}

	s.segment.EndTime = s.tracer.clock.Now()
	s.segment.Duration = s.segment.EndTime.Sub(s.segment.StartTime)
	record := s.segment.clone()
	s.mu.Unlock()

	// Handlers run outside the lock so they may read the subsegment.
	s.tracer.collectSegment(record)
}

// Context creates a new context with this subsegment as current.
func (s *Subsegment) Context(parent context.Context) context.Context {
	bundle := &contextBundle{tracer: s.tracer, current: s, entity: s}
	return context.WithValue(parent, bundleKey, bundle)
}

// SubsegmentFromContext extracts the current subsegment from a context.
// Returns nil if no subsegment is present.
func SubsegmentFromContext(ctx context.Context) *Subsegment {
	if bundle := bundleFrom(ctx); bundle != nil {
		return bundle.current
	}
	return nil
}

func bundleFrom(ctx context.Context) *contextBundle {
	if ctx == nil {
		return nil
	}
	bundle, _ := ctx.Value(bundleKey).(*contextBundle)
	return bundle
}
