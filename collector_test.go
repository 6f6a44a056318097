package segmentz

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test-collector", 100)
	defer collector.Close()

	if collector.Name() != "test-collector" {
		t.Errorf("Expected name 'test-collector', got %s", collector.Name())
	}
	if collector.Count() != 0 {
		t.Errorf("Expected 0 segments initially, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped segments initially, got %d", collector.DroppedCount())
	}
}

func TestCollectorBasicCollection(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true) // Enable sync for deterministic testing.
	defer collector.Close()

	collector.Collect(&Segment{ID: "segment-1", TraceID: "trace-1", Name: "## DB Call"})

	if collector.Count() != 1 {
		t.Errorf("Expected 1 segment, got %d", collector.Count())
	}

	segments := collector.Export()
	if len(segments) != 1 {
		t.Fatalf("Expected 1 exported segment, got %d", len(segments))
	}
	if segments[0].ID != "segment-1" {
		t.Errorf("Expected ID 'segment-1', got %s", segments[0].ID)
	}

	// After export, collector should be empty.
	if collector.Count() != 0 {
		t.Errorf("Expected 0 segments after export, got %d", collector.Count())
	}
	if collector.Export() != nil {
		t.Error("Expected nil export from empty collector")
	}
}

func TestCollectorNilSegment(t *testing.T) {
	collector := NewCollector("test", 10)
	defer collector.Close()

	collector.Collect(nil)

	if collector.DroppedCount() != 1 {
		t.Errorf("Expected nil segment to count as dropped, got %d", collector.DroppedCount())
	}
}

func TestCollectorBackpressure(t *testing.T) {
	collector := NewCollector("test", 2)
	defer collector.Close()

	// Flood faster than the collector goroutine drains.
	for i := 0; i < 1000; i++ {
		collector.Collect(&Segment{ID: fmt.Sprintf("segment-%d", i)})
	}

	time.Sleep(50 * time.Millisecond)

	total := int64(collector.Count()) + collector.DroppedCount()
	if total != 1000 {
		t.Errorf("Expected buffered+dropped to be 1000, got %d", total)
	}
	if collector.DroppedCount() == 0 {
		t.Error("Expected some segments to be dropped under backpressure")
	}
}

func TestCollectorBufferGrowth(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	for i := 0; i < 100; i++ {
		collector.Collect(&Segment{ID: fmt.Sprintf("segment-%d", i)})
	}

	if collector.Count() != 100 {
		t.Errorf("Expected 100 segments, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected no drops in sync mode, got %d", collector.DroppedCount())
	}
}

func TestCollectorExportTrace(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	collector.Collect(&Segment{ID: "a1", TraceID: "trace-a", Namespace: "orders"})
	collector.Collect(&Segment{ID: "b1", TraceID: "trace-b", Namespace: "orders"})
	collector.Collect(&Segment{ID: "a2", TraceID: "trace-a", Namespace: "db"})

	segments := collector.ExportTrace("trace-a")
	if len(segments) != 2 || segments[0].ID != "a1" || segments[1].ID != "a2" {
		t.Fatalf("Expected a1, a2 in close order, got %+v", segments)
	}

	if collector.Count() != 1 {
		t.Errorf("Expected other trace to stay buffered, got %d", collector.Count())
	}
	if got := collector.Namespaces(); len(got) != 1 || got["orders"] != 1 {
		t.Errorf("Expected namespace counts {orders:1}, got %v", got)
	}
	if segments := collector.ExportTrace("missing"); segments != nil {
		t.Errorf("Expected nil for unknown trace, got %+v", segments)
	}

	rest := collector.Export()
	if len(rest) != 1 || rest[0].ID != "b1" {
		t.Errorf("Expected b1 left, got %+v", rest)
	}
}

func TestCollectorNamespaceCounts(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	for _, ns := range []string{"checkout", "checkout", "db", ""} {
		collector.Collect(&Segment{Namespace: ns})
	}

	counts := collector.Namespaces()
	if counts["checkout"] != 2 || counts["db"] != 1 || counts[""] != 1 {
		t.Errorf("Unexpected namespace counts %v", counts)
	}

	// The returned map is a copy.
	counts["db"] = 99
	if collector.Namespaces()["db"] != 1 {
		t.Error("Expected Namespaces to return a copy")
	}

	collector.Export()
	if len(collector.Namespaces()) != 0 {
		t.Errorf("Expected counts cleared by Export, got %v", collector.Namespaces())
	}
}

func TestCollectorExportCopy(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	original := &Segment{
		ID:          "segment",
		Annotations: map[string]any{"rows": "5"},
		Metadata:    map[string]map[string]any{"orders": {"count": 1}},
	}
	collector.Collect(original)

	// Mutating the original after collection must not leak into the collector.
	original.Annotations["rows"] = "changed"
	original.Metadata["orders"]["count"] = 2

	segments := collector.Export()
	if segments[0].Annotations["rows"] != "5" {
		t.Errorf("Expected collected annotation to be a copy, got %v", segments[0].Annotations["rows"])
	}
	if segments[0].Metadata["orders"]["count"] != 1 {
		t.Errorf("Expected collected metadata to be a copy, got %v", segments[0].Metadata["orders"]["count"])
	}
}

func TestCollectorReset(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	collector.Collect(&Segment{ID: "a"})
	collector.Collect(nil)

	collector.Reset()

	if collector.Count() != 0 {
		t.Errorf("Expected 0 segments after reset, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected drop counter reset, got %d", collector.DroppedCount())
	}
}

func TestCollectorShutdown(t *testing.T) {
	collector := NewCollector("test", 10)

	collector.Collect(&Segment{ID: "before-close"})
	collector.Close()

	// Collecting after close drops.
	collector.Collect(&Segment{ID: "after-close"})
	if collector.DroppedCount() != 1 {
		t.Errorf("Expected 1 dropped segment after close, got %d", collector.DroppedCount())
	}

	// Close drains pending segments before returning.
	segments := collector.Export()
	if len(segments) != 1 || segments[0].ID != "before-close" {
		t.Errorf("Expected drained segment 'before-close', got %+v", segments)
	}

	// Multiple closes should be safe.
	collector.Close()
}

func TestCollectorConcurrentCollection(t *testing.T) {
	collector := NewCollector("test", 1000)
	defer collector.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				collector.Collect(&Segment{ID: fmt.Sprintf("segment-%d-%d", n, j)})
			}
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)

	total := int64(collector.Count()) + collector.DroppedCount()
	if total != 500 {
		t.Errorf("Expected 500 segments accounted for, got %d", total)
	}
}
