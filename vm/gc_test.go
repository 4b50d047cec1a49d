package vm

import (
	"testing"
	"time"
	"unsafe"
)

// newCountedExternal allocates an external pointer whose finalizer bumps
// *count and clears the address.
func newCountedExternal(h *Heap, count *int, protected Value) Value {
	n := new(int)
	v := h.NewExternalPtr(unsafe.Pointer(n), h.NewString("int"), protected)
	h.RegisterFinalizer(v, func(v Value) {
		*count++
		h.ClearExternalPtr(v)
	})
	return v
}

func TestCollectFinalizesUnreachable(t *testing.T) {
	h := NewHeap()
	count := 0

	kept := newCountedExternal(h, &count, Nil)
	h.Preserve(kept)
	newCountedExternal(h, &count, Nil)
	newCountedExternal(h, &count, Nil)

	stats := h.Collect()
	if count != 2 {
		t.Errorf("finalizers run = %d, want 2", count)
	}
	if stats.Finalized != 2 || stats.Externals != 2 {
		t.Errorf("stats = %+v", stats)
	}
	// Two tags swept with their pointers; the kept tag survives
	if stats.Strings != 2 {
		t.Errorf("swept strings = %d, want 2", stats.Strings)
	}
	if h.ExternalCount() != 1 || h.ExternalPtrAddr(kept) == nil {
		t.Error("preserved external pointer should survive intact")
	}
	if h.LastStats() != stats {
		t.Error("LastStats should return the latest collection")
	}
}

func TestFinalizerRunsOnce(t *testing.T) {
	h := NewHeap()
	count := 0

	v := newCountedExternal(h, &count, Nil)
	// Resurrect from inside the finalizer
	h.RegisterFinalizer(v, func(v Value) {
		count++
		h.SetGlobal("zombie", v)
	})

	h.Collect()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if !h.IsFinalized(v) {
		t.Fatal("resurrected object should still exist, marked finalized")
	}

	h.DeleteGlobal("zombie")
	h.Collect()
	h.Collect()
	if count != 1 {
		t.Errorf("finalizer ran %d times", count)
	}
	if h.ExternalCount() != 0 {
		t.Error("object should be swept once unreachable again")
	}
}

func TestReachabilityThroughGraph(t *testing.T) {
	h := NewHeap()
	count := 0

	// list -> external A -> protected external B
	b := newCountedExternal(h, &count, Nil)
	a := newCountedExternal(h, &count, b)
	l := h.NewList(FromSmallInt(1), a)
	h.SetGlobal("l", l)

	h.Collect()
	if count != 0 {
		t.Fatalf("reachable objects finalized: %d", count)
	}

	if err := h.ListSet(l, 1, Nil); err != nil {
		t.Fatal(err)
	}
	h.Collect()
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestCyclicListIsCollected(t *testing.T) {
	h := NewHeap()

	l := h.NewList(Nil)
	if err := h.ListSet(l, 0, l); err != nil {
		t.Fatal(err)
	}
	h.Preserve(l)
	h.Collect()
	if h.ListCount() != 1 {
		t.Fatal("rooted cyclic list was collected")
	}

	h.Release(l)
	h.Collect()
	if h.ListCount() != 0 {
		t.Error("unrooted cyclic list survived")
	}
}

func TestObjectsAllocatedByFinalizerSurvive(t *testing.T) {
	h := NewHeap()

	var made Value
	v := h.NewExternalPtr(nil, Nil, Nil)
	h.RegisterFinalizer(v, func(Value) {
		made = h.NewString("born during collection")
	})

	h.Collect()
	if _, ok := h.StringValue(made); !ok {
		t.Fatal("string allocated by a finalizer was swept by the same collection")
	}

	h.Collect()
	if _, ok := h.StringValue(made); ok {
		t.Error("unrooted string should go in the next collection")
	}
}

func TestFinalizerPanicIsContained(t *testing.T) {
	h := NewHeap()
	count := 0

	bad := h.NewExternalPtr(nil, Nil, Nil)
	h.RegisterFinalizer(bad, func(Value) { panic("boom") })
	newCountedExternal(h, &count, Nil)

	stats := h.Collect()
	if stats.FinalizerPanics != 1 || stats.Finalized != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if count != 1 {
		t.Error("a panicking finalizer stopped the others")
	}
}

func TestRegisterFinalizerReplaces(t *testing.T) {
	h := NewHeap()
	first, second := 0, 0

	v := h.NewExternalPtr(nil, Nil, Nil)
	h.RegisterFinalizer(v, func(Value) { first++ })
	h.RegisterFinalizer(v, func(Value) { second++ })
	h.RegisterFinalizer(FromSmallInt(1), func(Value) { t.Error("finalizer on an int") })

	h.Collect()
	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d", first, second)
	}
}

func TestCloseFinalizesEverything(t *testing.T) {
	h := NewHeap()
	count := 0

	v := newCountedExternal(h, &count, Nil)
	h.Preserve(v)
	newCountedExternal(h, &count, Nil)

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if h.ExternalCount() != 0 || h.StringCount() != 0 {
		t.Error("closed heap should be empty")
	}
}

func TestCloseReportsFinalizerPanics(t *testing.T) {
	h := NewHeap()
	v := h.NewExternalPtr(nil, Nil, Nil)
	h.RegisterFinalizer(v, func(Value) { panic("boom") })

	if err := h.Close(); err == nil {
		t.Error("Close should report a panicking finalizer")
	}
}

func TestNewRootedExternalPtr(t *testing.T) {
	h := NewHeap()
	count := 0

	n := new(int)
	v := h.NewRootedExternalPtr(unsafe.Pointer(n), "int", Nil, func(v Value) {
		count++
		h.ClearExternalPtr(v)
	})
	h.Collect()
	if count != 0 || h.ExternalPtrAddr(v) == nil {
		t.Fatal("rooted external pointer was collected")
	}
	if s, ok := h.StringValue(h.ExternalPtrTag(v)); !ok || s != "int" {
		t.Errorf("tag = %q, %v", s, ok)
	}

	h.Release(v)
	h.Collect()
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if h.ExternalCount() != 0 || h.StringCount() != 0 {
		t.Error("released pointer and its tag should be swept")
	}
}

func TestPauseHoldsOffCollection(t *testing.T) {
	h := NewHeap()

	resume := h.Pause()
	v := h.NewList(h.NewString("fresh"))

	done := make(chan struct{})
	go func() {
		h.Collect()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Collect ran while the heap was paused")
	case <-time.After(50 * time.Millisecond):
	}

	h.Preserve(v)
	resume()
	resume() // idempotent
	<-done

	if len(h.ListElements(v)) != 1 {
		t.Error("list rooted under Pause was swept")
	}
}
