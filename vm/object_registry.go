package vm

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: registries for every collectable object kind
// ---------------------------------------------------------------------------

// StringObject is the heap representation of a string value.
type StringObject struct {
	Content string
}

// ListObject is the heap representation of a list value.
type ListObject struct {
	Elements []Value
}

// externalObject is an external pointer: an address the collector does not
// look inside, a tag, and a protected value kept alive alongside it.
type externalObject struct {
	addr      unsafe.Pointer
	tag       Value
	protected Value
	finalizer func(Value)
	finalized bool
}

// Heap owns every string, list and external pointer object. A Value that
// refers to one of them carries only a registry ID; the Heap is the sole
// authority that decides when the object dies.
//
// All registries share one mutex so that Collect sees a consistent graph.
// Finalizers never run while it is held.
type Heap struct {
	id  uuid.UUID
	log commonlog.Logger

	mu sync.Mutex

	// gc is held for writing by Collect and Close, and for reading by Pause.
	gc sync.RWMutex

	strings  map[uint32]*StringObject
	stringID uint32

	lists  map[uint32]*ListObject
	listID uint32

	externals  map[uint32]*externalObject
	externalID uint32

	// Symbols are interned for the life of the heap and never collected.
	symbols     map[string]uint32
	symbolNames []string

	// Roots
	preserved map[Value]int
	globals   map[string]Value

	closed    bool
	lastStats *CollectStats
}

// Option configures a Heap.
type Option func(*Heap)

// WithLogger replaces the package logger for one heap.
func WithLogger(l commonlog.Logger) Option {
	return func(h *Heap) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHeap creates an empty heap.
func NewHeap(opts ...Option) *Heap {
	h := &Heap{
		id:          uuid.New(),
		log:         Logger(),
		strings:     make(map[uint32]*StringObject),
		lists:       make(map[uint32]*ListObject),
		externals:   make(map[uint32]*externalObject),
		symbols:     make(map[string]uint32),
		symbolNames: []string{""}, // ID 0 is never handed out
		preserved:   make(map[Value]int),
		globals:     make(map[string]Value),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log.Debugf("heap %s created", h.id)
	return h
}

// ID returns the unique identifier of this heap.
func (h *Heap) ID() uuid.UUID {
	return h.id
}

// nextID advances a registry counter. IDs start at 1 and are never reused,
// so a stale Value can never resolve to a newer object. Running out of IDs
// or allocating on a closed heap is fatal, like any allocation failure.
// Caller must hold h.mu.
func (h *Heap) nextID(counter *uint32) uint32 {
	if h.closed {
		panic("vm: allocation on closed heap")
	}
	if *counter == math.MaxUint32 {
		panic(fmt.Sprintf("vm: heap %s exhausted its ID space", h.id))
	}
	*counter++
	return *counter
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// NewString allocates a string value.
func (h *Heap) NewString(s string) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID(&h.stringID)
	h.strings[id] = &StringObject{Content: s}
	return fromStringID(id)
}

// StringValue returns the content of a string value. The second result is
// false if v is not a live string.
func (h *Heap) StringValue(v Value) (string, bool) {
	if !v.IsString() {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.strings[v.HeapID()]
	if s == nil {
		return "", false
	}
	return s.Content, true
}

// StringCount returns the number of live strings.
func (h *Heap) StringCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.strings)
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

// NewList allocates a list holding a copy of elems.
func (h *Heap) NewList(elems ...Value) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID(&h.listID)
	h.lists[id] = &ListObject{Elements: append([]Value(nil), elems...)}
	return fromListID(id)
}

// ListElements returns a copy of the elements of a list value, or nil if v
// is not a live list.
func (h *Heap) ListElements(v Value) []Value {
	if !v.IsList() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.lists[v.HeapID()]
	if l == nil {
		return nil
	}
	return append([]Value(nil), l.Elements...)
}

// ListSet stores elem at index i of a list.
func (h *Heap) ListSet(v Value, i int, elem Value) error {
	if !v.IsList() {
		return fmt.Errorf("vm: %s is not a list", v.Kind())
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.lists[v.HeapID()]
	if l == nil {
		return fmt.Errorf("vm: list %d has been collected", v.HeapID())
	}
	if i < 0 || i >= len(l.Elements) {
		return fmt.Errorf("vm: index %d out of range [0,%d)", i, len(l.Elements))
	}
	l.Elements[i] = elem
	return nil
}

// ListCount returns the number of live lists.
func (h *Heap) ListCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lists)
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// Intern returns the symbol for name, creating it on first use.
func (h *Heap) Intern(name string) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.symbols[name]; ok {
		return FromSymbolID(id)
	}
	id := uint32(len(h.symbolNames))
	h.symbolNames = append(h.symbolNames, name)
	h.symbols[name] = id
	return FromSymbolID(id)
}

// SymbolName returns the name of an interned symbol.
func (h *Heap) SymbolName(v Value) (string, bool) {
	if !v.IsSymbol() {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := v.SymbolID()
	if id == 0 || int(id) >= len(h.symbolNames) {
		return "", false
	}
	return h.symbolNames[id], true
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// Pause holds off collections until resume is called and waits for one in
// progress to finish. A sequence that allocates an object and then roots it
// runs under Pause when a Collector may fire in between. Pause does not nest,
// and the paused goroutine must not call Collect, Close or Pause.
func (h *Heap) Pause() (resume func()) {
	h.gc.RLock()
	var once sync.Once
	return func() { once.Do(h.gc.RUnlock) }
}

// Preserve makes v a collector root until a matching Release. Calls nest.
func (h *Heap) Preserve(v Value) {
	if !v.IsHeap() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.preserved[v]++
}

// Release undoes one Preserve of v.
func (h *Heap) Release(v Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.preserved[v]
	if !ok {
		return
	}
	if n <= 1 {
		delete(h.preserved, v)
		return
	}
	h.preserved[v] = n - 1
}

// SetGlobal binds name to v. Globals are collector roots.
func (h *Heap) SetGlobal(name string, v Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals[name] = v
}

// Global returns the value bound to name.
func (h *Heap) Global(name string) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.globals[name]
	return v, ok
}

// DeleteGlobal removes the binding for name.
func (h *Heap) DeleteGlobal(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.globals, name)
}
