package vm

import (
	"fmt"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Tracing collector
// ---------------------------------------------------------------------------

// CollectStats holds statistics from a single collection.
type CollectStats struct {
	Strings         int // strings swept
	Lists           int // lists swept
	Externals       int // external pointers swept
	Finalized       int // finalizers run
	FinalizerPanics int
	Duration        time.Duration
	Timestamp       time.Time
}

// marks is the reachable set found by one mark phase.
type marks struct {
	strings   map[uint32]struct{}
	lists     map[uint32]struct{}
	externals map[uint32]struct{}
}

// watermarks are the highest IDs that existed when marking started. Objects
// allocated after that point (for example by a finalizer) are never swept by
// the collection in progress.
type watermarks struct {
	strings, lists, externals uint32
}

type pendingFinalizer struct {
	id uint32
	v  Value
	fn func(Value)
}

// Collect runs a full mark-and-sweep collection.
//
// Marking starts from preserved values and globals and follows list elements
// and the tag and protected slots of external pointers. Every unreachable
// external pointer with a finalizer is marked finalized and its finalizer is
// called, outside the heap lock, in allocation order. The graph is then
// marked again, so an object a finalizer resurrected survives, and whatever
// is still unreachable is deleted.
//
// Collections do not overlap: a call waits for the one in progress and for
// any Pause. Finalizers must not call Collect, Close or Pause.
func (h *Heap) Collect() *CollectStats {
	h.gc.Lock()
	defer h.gc.Unlock()

	start := time.Now()
	stats := &CollectStats{Timestamp: start}

	h.mu.Lock()
	wm := watermarks{h.stringID, h.listID, h.externalID}
	m := h.mark()
	var pending []pendingFinalizer
	for id, e := range h.externals {
		if id > wm.externals {
			continue
		}
		if _, ok := m.externals[id]; ok {
			continue
		}
		if e.finalizer != nil && !e.finalized {
			e.finalized = true
			pending = append(pending, pendingFinalizer{id, fromExternalID(id), e.finalizer})
		}
	}
	h.mu.Unlock()

	stats.Finalized, stats.FinalizerPanics = h.runFinalizers(pending)

	h.mu.Lock()
	if len(pending) > 0 {
		m = h.mark()
	}
	stats.Strings, stats.Lists, stats.Externals = h.sweep(m, wm)
	stats.Duration = time.Since(start)
	h.lastStats = stats
	h.mu.Unlock()

	h.log.Debugf("heap %s: collected %d strings, %d lists, %d external pointers; %d finalized in %s",
		h.id, stats.Strings, stats.Lists, stats.Externals, stats.Finalized, stats.Duration)
	return stats
}

// LastStats returns the statistics of the most recent collection, or nil.
func (h *Heap) LastStats() *CollectStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastStats
}

// mark computes the reachable set. Caller must hold h.mu.
func (h *Heap) mark() marks {
	m := marks{
		strings:   make(map[uint32]struct{}),
		lists:     make(map[uint32]struct{}),
		externals: make(map[uint32]struct{}),
	}

	work := make([]Value, 0, len(h.preserved)+len(h.globals))
	for v := range h.preserved {
		work = append(work, v)
	}
	for _, v := range h.globals {
		work = append(work, v)
	}

	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]

		switch {
		case v.IsString():
			m.strings[v.HeapID()] = struct{}{}
		case v.IsList():
			id := v.HeapID()
			if _, seen := m.lists[id]; seen {
				continue
			}
			m.lists[id] = struct{}{}
			if l := h.lists[id]; l != nil {
				work = append(work, l.Elements...)
			}
		case v.IsExternalPtr():
			id := v.HeapID()
			if _, seen := m.externals[id]; seen {
				continue
			}
			m.externals[id] = struct{}{}
			if e := h.externals[id]; e != nil {
				work = append(work, e.tag, e.protected)
			}
		}
	}
	return m
}

// sweep deletes unmarked objects at or below the watermarks. Caller must
// hold h.mu.
func (h *Heap) sweep(m marks, wm watermarks) (strings, lists, externals int) {
	for id := range h.strings {
		if _, ok := m.strings[id]; !ok && id <= wm.strings {
			delete(h.strings, id)
			strings++
		}
	}
	for id := range h.lists {
		if _, ok := m.lists[id]; !ok && id <= wm.lists {
			delete(h.lists, id)
			lists++
		}
	}
	for id := range h.externals {
		if _, ok := m.externals[id]; !ok && id <= wm.externals {
			delete(h.externals, id)
			externals++
		}
	}
	return strings, lists, externals
}

// runFinalizers calls each finalizer once. A panicking finalizer is logged
// and does not stop the others.
func (h *Heap) runFinalizers(pending []pendingFinalizer) (ran, panicked int) {
	sort.Slice(pending, func(i, j int) bool { return pending[i].id < pending[j].id })
	for _, p := range pending {
		if err := callFinalizer(p.fn, p.v); err != nil {
			h.log.Errorf("heap %s: finalizer for external pointer %d: %s", h.id, p.id, err)
			panicked++
			continue
		}
		ran++
	}
	return ran, panicked
}

func callFinalizer(fn func(Value), v Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn(v)
	return nil
}

// Close finalizes every external pointer that has not been finalized yet,
// reachable or not, and then empties the heap. Allocating on a closed heap
// panics. Closing twice is a no-op.
func (h *Heap) Close() error {
	h.gc.Lock()
	defer h.gc.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var pending []pendingFinalizer
	for id, e := range h.externals {
		if e.finalizer != nil && !e.finalized {
			e.finalized = true
			pending = append(pending, pendingFinalizer{id, fromExternalID(id), e.finalizer})
		}
	}
	h.mu.Unlock()

	ran, panicked := h.runFinalizers(pending)

	h.mu.Lock()
	h.strings = make(map[uint32]*StringObject)
	h.lists = make(map[uint32]*ListObject)
	h.externals = make(map[uint32]*externalObject)
	h.preserved = make(map[Value]int)
	h.globals = make(map[string]Value)
	h.mu.Unlock()

	h.log.Debugf("heap %s closed: %d finalized, %d panicked", h.id, ran, panicked)
	if panicked > 0 {
		return fmt.Errorf("vm: %d finalizers panicked while closing heap %s", panicked, h.id)
	}
	return nil
}
