package vm

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Collector Unit Tests
// ---------------------------------------------------------------------------

func TestCollectorDefaultInterval(t *testing.T) {
	c := NewCollector(NewHeap(), 0)
	if c.Interval() != DefaultCollectInterval {
		t.Errorf("interval = %s, want %s", c.Interval(), DefaultCollectInterval)
	}
	c = NewCollector(NewHeap(), time.Second)
	if c.Interval() != time.Second {
		t.Errorf("interval = %s, want 1s", c.Interval())
	}
}

func TestCollectorStartStop(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, 20*time.Millisecond)

	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for c.CollectCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.CollectCount() == 0 {
		t.Fatal("expected at least one collection after starting")
	}

	c.Stop()
	countAtStop := c.CollectCount()

	time.Sleep(60 * time.Millisecond)
	if c.CollectCount() != countAtStop {
		t.Errorf("collections continued after Stop: was %d, now %d", countAtStop, c.CollectCount())
	}
}

func TestCollectorDoubleStartStop(t *testing.T) {
	c := NewCollector(NewHeap(), time.Hour)
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()

	// Never started
	NewCollector(NewHeap(), time.Hour).Stop()
}

func TestCollectorEnableDisable(t *testing.T) {
	c := NewCollector(NewHeap(), 10*time.Millisecond)
	if !c.IsEnabled() {
		t.Fatal("collector should start enabled")
	}
	c.SetEnabled(false)
	c.Start()
	time.Sleep(50 * time.Millisecond)
	c.Stop()
	if c.CollectCount() != 0 {
		t.Errorf("disabled collector ran %d collections", c.CollectCount())
	}
}

func TestCollectorCollectNow(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, time.Hour)
	count := 0
	newCountedExternal(h, &count, Nil)

	if c.LastStats() != nil {
		t.Fatal("LastStats should be nil before any collection")
	}
	stats := c.CollectNow()
	if stats.Finalized != 1 || count != 1 {
		t.Errorf("stats = %+v, count = %d", stats, count)
	}
	if c.LastStats() != stats || c.CollectCount() != 1 {
		t.Error("CollectNow should record its statistics")
	}
}

// preservedList builds a one-string list and roots it while collections are
// held off.
func preservedList(h *Heap, s string) Value {
	resume := h.Pause()
	defer resume()
	v := h.NewList(h.NewString(s))
	h.Preserve(v)
	return v
}

func TestCollectorConcurrentMutators(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, time.Millisecond)
	c.Start()
	defer c.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := preservedList(h, "x")
				if len(h.ListElements(v)) != 1 {
					t.Error("preserved list lost its element")
				}
				h.Release(v)
			}
		}()
	}
	wg.Wait()
}

func TestCollectorRootedExternals(t *testing.T) {
	h := NewHeap()
	c := NewCollector(h, time.Microsecond)
	c.Start()

	var count atomic.Int64
	for i := 0; i < 500; i++ {
		n := i
		v := h.NewRootedExternalPtr(unsafe.Pointer(&n), "int", Nil, func(v Value) {
			count.Add(1)
			h.ClearExternalPtr(v)
		})
		if p := (*int)(h.ExternalPtrAddr(v)); p == nil || *p != i {
			t.Fatalf("rooted external %d lost its address", i)
		}
		h.Release(v)
	}

	c.Stop()
	h.Collect()
	if count.Load() != 500 {
		t.Errorf("finalizers run = %d, want 500", count.Load())
	}
}
