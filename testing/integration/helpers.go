package integration

import (
	"testing"
	"time"

	"github.com/zoobzio/segmentz"
)

// Harness bundles a tracer, a facade over it and a sync-mode collector.
type Harness struct {
	Tracer    *segmentz.Tracer
	Tracing   *segmentz.Tracing
	Collector *segmentz.Collector
	t         *testing.T
}

// NewHarness builds a Harness for service. The tracer is closed on cleanup.
func NewHarness(t *testing.T, service string) *Harness {
	t.Helper()

	tracer := segmentz.New()
	t.Cleanup(tracer.Close)

	collector := segmentz.NewCollector("integration", 1000)
	collector.SetSyncMode(true)
	tracer.AddCollector("integration", collector)

	return &Harness{
		Tracer:    tracer,
		Tracing:   segmentz.NewTracing(tracer, segmentz.StaticServiceName(service)),
		Collector: collector,
		t:         t,
	}
}

// WaitForSegments polls the collector until expected segments are buffered.
func (h *Harness) WaitForSegments(expected int, timeout time.Duration) []segmentz.Segment {
	h.t.Helper()

	var collected []segmentz.Segment
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		collected = append(collected, h.Collector.Export()...)
		if len(collected) >= expected {
			return collected
		}
		<-ticker.C
	}

	h.t.Fatalf("timed out waiting for %d segments, got %d", expected, len(collected))
	return nil
}

// SegmentsByName indexes segments by display name.
func SegmentsByName(segments []segmentz.Segment) map[string][]segmentz.Segment {
	out := make(map[string][]segmentz.Segment)
	for _, s := range segments {
		out[s.Name] = append(out[s.Name], s)
	}
	return out
}

// One returns the single segment named name or fails the test.
func One(t *testing.T, segments []segmentz.Segment, name string) segmentz.Segment {
	t.Helper()

	found := SegmentsByName(segments)[name]
	if len(found) != 1 {
		t.Fatalf("expected one %q segment, got %d", name, len(found))
	}
	return found[0]
}

// AssertChildOf fails unless child is a direct child of parent in the same trace.
func AssertChildOf(t *testing.T, child, parent segmentz.Segment) {
	t.Helper()

	if child.TraceID != parent.TraceID {
		t.Errorf("%s trace %s, want %s", child.Name, child.TraceID, parent.TraceID)
	}
	if child.ParentID != parent.ID {
		t.Errorf("%s parent %s, want %s (%s)", child.Name, child.ParentID, parent.ID, parent.Name)
	}
}
