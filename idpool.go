package segmentz

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// IDPool manages a pool of pre-generated IDs to amortize crypto/rand overhead.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool(capacity int, factory func() string) *IDPool {
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	// Start background refill goroutine.
	go pool.refill()
	return pool
}

// newHexIDPool creates a pool of random lowercase hex IDs of size bytes.
// fallback supplies an ID when crypto/rand fails; it is trimmed to length.
func newHexIDPool(capacity, size int, fallback func() string) *IDPool {
	return NewIDPool(capacity, func() string {
		return randomHex(size, fallback)
	})
}

func randomHex(size int, fallback func() string) string {
	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err == nil {
		return hex.EncodeToString(bytes)
	}

	id := hex.EncodeToString([]byte(fallback()))
	if len(id) > 2*size {
		id = id[len(id)-2*size:]
	}
	return id
}

// Get retrieves an ID from the pool or generates one if pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly (fallback for burst load).
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in background.
func (p *IDPool) refill() {
	for {
		select {
		case p.ids <- p.factory():
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the background refill. Get keeps working after Close.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
