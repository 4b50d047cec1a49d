package vm

import (
	"sort"
	"unsafe"
)

// ---------------------------------------------------------------------------
// External pointers: Go memory owned by the host collector
// ---------------------------------------------------------------------------

// NewExternalPtr allocates an external pointer object with the given
// address, tag and protected slots. The tag and protected values are kept
// alive for as long as the external pointer is.
func (h *Heap) NewExternalPtr(addr unsafe.Pointer, tag, protected Value) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID(&h.externalID)
	h.externals[id] = &externalObject{
		addr:      addr,
		tag:       tag,
		protected: protected,
	}
	return fromExternalID(id)
}

// NewRootedExternalPtr allocates a string tag and an external pointer
// holding addr, registers fn as its finalizer and preserves the result, all
// under one lock. No collection can observe the object unrooted or without
// its finalizer. The caller owns one Release.
func (h *Heap) NewRootedExternalPtr(addr unsafe.Pointer, tag string, protected Value, fn func(Value)) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	tid := h.nextID(&h.stringID)
	h.strings[tid] = &StringObject{Content: tag}
	id := h.nextID(&h.externalID)
	h.externals[id] = &externalObject{
		addr:      addr,
		tag:       fromStringID(tid),
		protected: protected,
		finalizer: fn,
	}
	v := fromExternalID(id)
	h.preserved[v]++
	return v
}

// external resolves v. Caller must hold h.mu.
func (h *Heap) external(v Value) *externalObject {
	if !v.IsExternalPtr() {
		return nil
	}
	return h.externals[v.HeapID()]
}

// ExternalPtrAddr returns the address slot of v. It is nil if v is not an
// external pointer, has been cleared, or has been collected.
func (h *Heap) ExternalPtrAddr(v Value) unsafe.Pointer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.external(v); e != nil {
		return e.addr
	}
	return nil
}

// ExternalPtrTag returns the tag slot of v, or Nil.
func (h *Heap) ExternalPtrTag(v Value) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.external(v); e != nil {
		return e.tag
	}
	return Nil
}

// ExternalPtrProtected returns the protected slot of v, or Nil.
func (h *Heap) ExternalPtrProtected(v Value) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.external(v); e != nil {
		return e.protected
	}
	return Nil
}

// ClearExternalPtr sets the address slot of v to nil. Finalizers call this
// once they have released the memory the address referred to.
func (h *Heap) ClearExternalPtr(v Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.external(v); e != nil {
		e.addr = nil
	}
}

// RegisterFinalizer sets the function the collector calls, once, after v
// becomes unreachable. A later registration replaces an earlier one.
// Registering on anything other than a live external pointer does nothing.
func (h *Heap) RegisterFinalizer(v Value, fn func(Value)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.external(v); e != nil && !e.finalized {
		e.finalizer = fn
	}
}

// IsFinalized reports whether the finalizer of v has been run.
func (h *Heap) IsFinalized(v Value) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.external(v); e != nil {
		return e.finalized
	}
	return false
}

// ExternalCount returns the number of external pointer objects still in the
// heap, finalized or not.
func (h *Heap) ExternalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.externals)
}

// ExternalInfo describes one external pointer for diagnostics.
type ExternalInfo struct {
	ID           uint32
	Value        Value
	Tag          string
	Protected    Kind
	Live         bool // address slot is non-nil
	HasFinalizer bool
	Finalized    bool
}

// Externals lists every external pointer in allocation order.
func (h *Heap) Externals() []ExternalInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ExternalInfo, 0, len(h.externals))
	for id, e := range h.externals {
		info := ExternalInfo{
			ID:           id,
			Value:        fromExternalID(id),
			Protected:    e.protected.Kind(),
			Live:         e.addr != nil,
			HasFinalizer: e.finalizer != nil,
			Finalized:    e.finalized,
		}
		if e.tag.IsString() {
			if s := h.strings[e.tag.HeapID()]; s != nil {
				info.Tag = s.Content
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
