package segmentz

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

var (
	// ErrWorkerPoolEnabled is returned when EnableWorkerPool is called twice.
	ErrWorkerPoolEnabled = errors.New("worker pool already enabled")
	// ErrInvalidWorkers is returned for a non-positive worker count.
	ErrInvalidWorkers = errors.New("workers must be > 0")
	// ErrInvalidQueueSize is returned for a non-positive queue size.
	ErrInvalidQueueSize = errors.New("queueSize must be > 0")
)

// contextBundle holds the tracer, the current subsegment and the ambient
// entity in a single context value.
// current is nil when the entity was seeded from a handle this tracer did not create.
type contextBundle struct {
	tracer  *Tracer
	current *Subsegment
	entity  Entity
}

// SegmentHandler is called when a subsegment closes.
type SegmentHandler func(segment Segment)

type handlerEntry struct {
	handler SegmentHandler
	id      uint64
	async   bool
}

// Tracer is an in-process Backend. It manages subsegment lifecycle and hands
// closed segments to collectors and handlers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers        []handlerEntry
	collectors      map[string]*Collector
	panicHook       func(handlerID uint64, r interface{})
	workers         *workerPool
	traceIDPool     *IDPool
	idPool          *IDPool
	clock           clockz.Clock
	logger          *zap.Logger
	handlersLock    sync.RWMutex
	idPoolOnce      sync.Once
	nextID          atomic.Uint64
	droppedSegments atomic.Uint64
}

// New creates a new tracer.
// Uses the real clock and a no-op logger.
func New() *Tracer {
	return newTracer(clockz.RealClock, zap.NewNop())
}

func newTracer(clock clockz.Clock, logger *zap.Logger) *Tracer {
	return &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		clock:      clock,
		logger:     logger,
	}
}

// WithClock sets the clock used for timestamps and returns t.
// Collectors, handlers and the worker pool already registered are kept.
// Call it before the tracer opens its first subsegment.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	if clock == nil {
		clock = clockz.RealClock
	}
	t.handlersLock.Lock()
	t.clock = clock
	t.handlersLock.Unlock()
	return t
}

// WithLogger sets the logger and returns t. A nil logger disables logging.
// Like WithClock, it keeps registered state and belongs before first use.
func (t *Tracer) WithLogger(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t.handlersLock.Lock()
	t.logger = logger
	t.handlersLock.Unlock()
	return t
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100

		t.traceIDPool = newHexIDPool(poolSize, 12, func() string {
			return t.clock.Now().Format(time.RFC3339Nano)
		})
		t.idPool = newHexIDPool(poolSize, 8, func() string {
			return t.clock.Now().Format("15:04:05.000000")
		})
	})
}

// AddCollector registers a collector that receives every closed segment.
// Adding a collector under an existing name replaces it.
func (t *Tracer) AddCollector(name string, collector *Collector) {
	if collector == nil {
		return
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.collectors == nil {
		t.collectors = make(map[string]*Collector)
	}
	t.collectors[name] = collector
}

// Collector returns the collector registered under name.
func (t *Tracer) Collector(name string) (*Collector, bool) {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()

	c, ok := t.collectors[name]
	return c, ok
}

// OnSegmentComplete registers a synchronous handler called when subsegments close.
func (t *Tracer) OnSegmentComplete(handler SegmentHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSegmentCompleteAsync registers an asynchronous handler called when subsegments close.
func (t *Tracer) OnSegmentCompleteAsync(handler SegmentHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SegmentHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
// Without a hook, handler panics are logged.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// BeginSubsegment opens a subsegment under the entity carried by ctx.
// Without an entity the subsegment starts a new trace.
func (t *Tracer) BeginSubsegment(ctx context.Context, name Key) (context.Context, *Subsegment) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	now := t.clock.Now()
	segment := &Segment{
		ID:        t.generateID(),
		Name:      name,
		StartTime: now,
	}

	// Link to parent entity if present.
	if bundle := bundleFrom(ctx); bundle != nil && bundle.entity != nil {
		segment.TraceID = bundle.entity.TraceID()
		segment.ParentID = bundle.entity.ID()
	} else {
		segment.TraceID = t.generateTraceID(now)
	}

	sub := &Subsegment{
		segment: segment,
		tracer:  t,
	}

	return sub.Context(ctx), sub
}

// CurrentSpan returns the open subsegment carried by ctx.
func (*Tracer) CurrentSpan(ctx context.Context) (Span, bool) {
	sub := SubsegmentFromContext(ctx)
	if sub == nil || sub.Closed() {
		return nil, false
	}
	return sub, true
}

// BeginSpan opens a subsegment. See BeginSubsegment.
func (t *Tracer) BeginSpan(ctx context.Context, name Key) (context.Context, Span) {
	ctx, sub := t.BeginSubsegment(ctx, name)
	return ctx, sub
}

// EndSpan closes the subsegment current in ctx.
// Contexts derived before the matching BeginSpan still carry the previous
// subsegment, so nesting unwinds with the caller's context.
func (t *Tracer) EndSpan(ctx context.Context) {
	sub := SubsegmentFromContext(ctx)
	if sub == nil {
		t.logger.Debug("end requested with no open subsegment")
		return
	}
	sub.Close()
}

// SetTraceEntity returns a context whose ambient identity is entity.
// A subsegment created by this tracer also becomes the current subsegment.
func (t *Tracer) SetTraceEntity(ctx context.Context, entity Entity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	bundle := &contextBundle{tracer: t}
	switch e := entity.(type) {
	case nil:
	case *Subsegment:
		if e != nil {
			bundle.current = e
			bundle.entity = e
		}
	default:
		bundle.entity = entity
	}
	return context.WithValue(ctx, bundleKey, bundle)
}

// TraceEntity returns the ambient identity carried by ctx.
func (*Tracer) TraceEntity(ctx context.Context) (Entity, bool) {
	bundle := bundleFrom(ctx)
	if bundle == nil || bundle.entity == nil {
		return nil, false
	}
	return bundle.entity, true
}

// collectSegment forwards a closed segment to collectors and handlers.
func (t *Tracer) collectSegment(segment Segment) {
	t.handlersLock.RLock()
	collectors := make([]*Collector, 0, len(t.collectors))
	for _, c := range t.collectors {
		collectors = append(collectors, c)
	}
	t.handlersLock.RUnlock()

	for _, c := range collectors {
		c.Collect(&segment)
	}

	t.executeHandlers(segment)
}

// executeHandlers calls all registered handlers with the closed segment.
func (t *Tracer) executeHandlers(segment Segment) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			// Make a copy of h for closure
			entry := h
			if workers != nil {
				if !workers.submit(func() {
					t.safeCall(entry, segment.clone())
				}) {
					t.logger.Warn("segment handler queue full, dropping segment",
						zap.String("trace_id", segment.TraceID),
						zap.String("id", segment.ID),
					)
				}
			} else {
				go t.safeCall(entry, segment.clone())
			}
		} else {
			t.safeCall(h, segment.clone())
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, segment Segment) {
	defer func() {
		if r := recover(); r != nil {
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
				return
			}
			t.logger.Error("segment handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.Any("panic", r),
			)
		}
	}()
	entry.handler(segment)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return ErrWorkerPoolEnabled
	}
	if workers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	if queueSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQueueSize, queueSize)
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSegments,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSegments returns the number of segments dropped due to full worker queue.
func (t *Tracer) DroppedSegments() uint64 {
	return t.droppedSegments.Load()
}

// Reset clears all collector buffers.
func (t *Tracer) Reset() {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()

	for _, c := range t.collectors {
		c.Reset()
	}
}

// Close shuts down the tracer gracefully and cleans up resources.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() {
	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	collectors := t.collectors
	t.collectors = make(map[string]*Collector)
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	for _, c := range collectors {
		c.Close()
	}

	// Close ID pools
	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.idPool != nil {
		t.idPool.Close()
	}
}

// generateTraceID creates a trace ID of the form 1-<epoch hex>-<random hex>.
func (t *Tracer) generateTraceID(now time.Time) string {
	// Use ID pool for performance optimization.
	t.ensureIDPools()
	return fmt.Sprintf("1-%08x-%s", now.Unix(), t.traceIDPool.Get())
}

// generateID creates a new subsegment ID using the optimized ID pool.
func (t *Tracer) generateID() string {
	t.ensureIDPools()
	return t.idPool.Get()
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
