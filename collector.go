package segmentz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers closed segments for batch export, grouped by trace.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	segments     []Segment
	namespaces   map[string]int
	segmentsCh   chan Segment
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:       name,
		namespaces: make(map[string]int),
		segmentsCh: make(chan Segment, bufferSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining segments before shutdown.
			for {
				select {
				case segment := <-c.segmentsCh:
					c.buffer(segment)
				default:
					return
				}
			}
		case segment := <-c.segmentsCh:
			c.buffer(segment)
		}
	}
}

// Close shuts down the collector gracefully.
// Buffered segments remain available through Export.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect buffers a copy of segment.
// If the internal channel is full, the segment is dropped and the drop counter is incremented.
// In sync mode, segments are buffered directly for deterministic testing.
func (c *Collector) Collect(segment *Segment) {
	if segment == nil || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	// Copy to prevent modifications after collection.
	segmentCopy := segment.clone()

	if c.syncMode.Load() {
		c.buffer(segmentCopy)
		return
	}

	select {
	case c.segmentsCh <- segmentCopy:
	default:
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(segment Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.segments = append(c.segments, segment)
	c.namespaces[segment.Namespace]++
}

// Export hands over all buffered segments and clears the buffer.
// Buffered segments are private copies, so the result shares nothing with
// the tracer or with later exports.
func (c *Collector) Export() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.segments) == 0 {
		return nil
	}

	result := c.segments
	c.segments = nil
	c.namespaces = make(map[string]int)
	return result
}

// ExportTrace hands over the buffered segments of one trace, in close order,
// and leaves segments of other traces buffered.
func (c *Collector) ExportTrace(traceID string) []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []Segment
	kept := c.segments[:0]
	for _, s := range c.segments {
		if s.TraceID != traceID {
			kept = append(kept, s)
			continue
		}
		result = append(result, s)
		c.namespaces[s.Namespace]--
		if c.namespaces[s.Namespace] == 0 {
			delete(c.namespaces, s.Namespace)
		}
	}
	// Clear the tail so exported segments are not retained.
	for i := len(kept); i < len(c.segments); i++ {
		c.segments[i] = Segment{}
	}
	c.segments = kept
	return result
}

// Count returns the current number of buffered segments.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

// Namespaces returns the number of buffered segments per namespace.
func (c *Collector) Namespaces() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.namespaces))
	for ns, n := range c.namespaces {
		out[ns] = n
	}
	return out
}

// DroppedCount returns the total number of segments dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered segments and resets the drop counter.
// Does not affect the running goroutine - use Close() for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.segments = nil
	c.namespaces = make(map[string]int)
	c.droppedCount.Store(0)
}
