package otelbackend

import (
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys and prefixes written by Span.
const (
	NamespaceKey      = attribute.Key("segmentz.namespace")
	AnnotationPrefix  = "annotation."
	MetadataKeyPrefix = "metadata."
)

// Span adapts an OpenTelemetry span to segmentz.Span and segmentz.Entity.
// Writes after the span ends are ignored.
type Span struct {
	span      trace.Span
	name      string
	namespace string
	mu        sync.Mutex
	ended     bool
}

// OTel returns the underlying OpenTelemetry span.
func (s *Span) OTel() trace.Span {
	return s.span
}

// Name returns the name the span was started with.
// Spans started outside this backend have no name.
func (s *Span) Name() string {
	return s.name
}

// Namespace returns the namespace set through this wrapper.
func (s *Span) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespace
}

// SetNamespace records the namespace as the segmentz.namespace attribute.
func (s *Span) SetNamespace(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.namespace = namespace
	s.span.SetAttributes(NamespaceKey.String(namespace))
}

// PutAnnotation records key as a string attribute.
func (s *Span) PutAnnotation(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.span.SetAttributes(attribute.String(AnnotationPrefix+key, value))
}

// PutMetadata records value as an attribute under metadata.<namespace>.<key>.
func (s *Span) PutMetadata(namespace, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.span.SetAttributes(metadataAttribute(MetadataKeyPrefix+namespace+"."+key, value))
}

// TraceID returns the hex trace ID.
func (s *Span) TraceID() string {
	return s.span.SpanContext().TraceID().String()
}

// ID returns the hex span ID.
func (s *Span) ID() string {
	return s.span.SpanContext().SpanID().String()
}

func (s *Span) recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended && s.span.IsRecording()
}

func (s *Span) end() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	s.span.End()
}

func metadataAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	}

	encoded, err := sonic.MarshalString(value)
	if err != nil {
		encoded = fmt.Sprintf("%v", value)
	}
	return attribute.String(key, encoded)
}
