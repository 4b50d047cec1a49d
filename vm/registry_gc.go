package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Collector: periodic collection for a Heap
// ---------------------------------------------------------------------------

// Collector periodically runs Heap.Collect so that external pointers nobody
// references any more get finalized in long-running programs.
type Collector struct {
	heap     *Heap
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	collectCount atomic.Uint64
	lastStats    atomic.Pointer[CollectStats]
}

// DefaultCollectInterval is the default period between collections.
const DefaultCollectInterval = 30 * time.Second

// NewCollector creates a Collector for h. A non-positive interval selects
// DefaultCollectInterval.
func NewCollector(h *Heap, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	c := &Collector{
		heap:     h,
		interval: interval,
	}
	c.enabled.Store(true)
	return c
}

// Start begins the periodic collection goroutine. It is safe to call Start
// multiple times; only one loop will run.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return // already running
	}

	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	// The goroutine gets its own copies; Stop nils the fields.
	stopCh := c.stop
	stoppedCh := c.stopped
	go c.loop(stopCh, stoppedCh)
}

// Stop halts the collection goroutine and waits for it to finish.
// It is safe to call Stop multiple times or on a Collector that was never
// started.
func (c *Collector) Stop() {
	c.mu.Lock()
	stopCh := c.stop
	stoppedCh := c.stopped
	c.stop = nil
	c.stopped = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables collection. When disabled, the goroutine
// still runs but skips collections.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// IsEnabled returns whether collection is currently enabled.
func (c *Collector) IsEnabled() bool {
	return c.enabled.Load()
}

// Interval returns the collection period.
func (c *Collector) Interval() time.Duration {
	return c.interval
}

// CollectCount returns the number of collections this Collector performed.
func (c *Collector) CollectCount() uint64 {
	return c.collectCount.Load()
}

// LastStats returns statistics from the most recent collection run by this
// Collector, or nil.
func (c *Collector) LastStats() *CollectStats {
	return c.lastStats.Load()
}

// CollectNow performs an immediate collection regardless of the timer.
func (c *Collector) CollectNow() *CollectStats {
	stats := c.heap.Collect()
	c.collectCount.Add(1)
	c.lastStats.Store(stats)
	return stats
}

func (c *Collector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if c.enabled.Load() {
				c.CollectNow()
			}
		}
	}
}
