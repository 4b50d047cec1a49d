package extptr

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/chazu/extptr/vm"
)

// Host is the part of the host runtime an ExternalPtr needs: external
// pointer allocation and slot access, tag strings, and rooting. *vm.Heap
// implements it.
type Host interface {
	// NewRootedExternalPtr allocates the tag string and the external
	// pointer, registers fn as its finalizer and preserves the result as
	// one atomic step. The caller owns one Release.
	NewRootedExternalPtr(addr unsafe.Pointer, tag string, protected vm.Value, fn func(vm.Value)) vm.Value
	ExternalPtrAddr(v vm.Value) unsafe.Pointer
	ExternalPtrTag(v vm.Value) vm.Value
	ExternalPtrProtected(v vm.Value) vm.Value
	ClearExternalPtr(v vm.Value)

	StringValue(v vm.Value) (string, bool)

	Preserve(v vm.Value)
	Release(v vm.Value)
}

var _ Host = (*vm.Heap)(nil)

// Dropper is implemented by values that hold resources beyond memory. The
// finalizer of an ExternalPtr calls Drop exactly once, on *T if *T
// implements it, otherwise on T.
type Dropper interface {
	Drop()
}

// ExternalPtr is a host external pointer object known to hold a T.
//
// The host owns the T: it was moved onto the Go heap by New and is released
// by the finalizer the host collector runs once the external pointer is
// unreachable. An ExternalPtr held only in Go does not keep the object
// reachable; use Preserve, a global, or a reachable host object for that.
//
// ExternalPtr is a small value type and may be copied freely; copies refer
// to the same object.
type ExternalPtr[T any] struct {
	host  Host
	value vm.Value
}

// TypeName returns the type identity string used to tag external pointers
// holding a T.
func TypeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// New moves val into memory owned by h and returns an external pointer to
// it. The tag slot holds TypeName[T](), the protected slot is vm.Nil, and a
// finalizer is registered that drops the value. There is no error path:
// allocation failure in the host is fatal.
//
// The object is rooted while New runs and unrooted when it returns. When a
// Collector may run concurrently, use NewRooted instead.
func New[T any](h Host, val T) ExternalPtr[T] {
	p := NewRooted(h, val)
	p.Release()
	return p
}

// NewRooted is New, except that the returned pointer stays preserved until
// the caller calls Release.
func NewRooted[T any](h Host, val T) ExternalPtr[T] {
	p := new(T)
	*p = val
	v := h.NewRootedExternalPtr(unsafe.Pointer(p), TypeName[T](), vm.Nil, finalizer[T](h))
	return ExternalPtr[T]{host: h, value: v}
}

func finalizer[T any](h Host) func(vm.Value) {
	return func(v vm.Value) {
		p := (*T)(h.ExternalPtrAddr(v))
		if p == nil {
			return
		}
		drop(p)
		h.ClearExternalPtr(v)
	}
}

func drop[T any](p *T) {
	if d, ok := any(p).(Dropper); ok {
		d.Drop()
		return
	}
	if d, ok := any(*p).(Dropper); ok {
		d.Drop()
	}
}

// FromValue recovers a typed external pointer from a host value.
//
// It fails with ErrExpectedExternalPtr if v is not an external pointer, and
// with ErrExpectedExternalPtrType if its tag is not exactly TypeName[T]().
// The check is nominal: only the tag text is compared.
func FromValue[T any](h Host, v vm.Value) (ExternalPtr[T], error) {
	if v.Kind() != vm.KindExternalPtr {
		return ExternalPtr[T]{}, &Error{
			Kind:   KindNotExternalPtr,
			Value:  v,
			Actual: v.Kind().String(),
		}
	}

	want := TypeName[T]()
	got, ok := h.StringValue(h.ExternalPtrTag(v))
	if !ok || got != want {
		return ExternalPtr[T]{}, &Error{
			Kind:     KindTypeMismatch,
			Value:    v,
			Expected: want,
			Actual:   got,
		}
	}

	return ExternalPtr[T]{host: h, value: v}, nil
}

// Value returns the underlying host value. Its tag still names T, so
// FromValue[T] turns it back into an ExternalPtr[T].
func (p ExternalPtr[T]) Value() vm.Value {
	return p.value
}

// Tag returns the tag slot; for pointers made by New, a string holding
// TypeName[T]().
func (p ExternalPtr[T]) Tag() vm.Value {
	return p.host.ExternalPtrTag(p.value)
}

// Protected returns the protected slot; vm.Nil for pointers made by New.
func (p ExternalPtr[T]) Protected() vm.Value {
	return p.host.ExternalPtrProtected(p.value)
}

// Addr returns the address slot as a *T for reading.
//
// The pointer is re-read from the host on every call and must not be kept
// across a collection that could finalize p. After finalization Addr
// returns nil.
func (p ExternalPtr[T]) Addr() *T {
	return (*T)(p.host.ExternalPtrAddr(p.value))
}

// AddrMut returns the address slot as a *T for writing. Writes through it
// are visible to every later Addr call on any copy of p.
func (p ExternalPtr[T]) AddrMut() *T {
	return (*T)(p.host.ExternalPtrAddr(p.value))
}

// Get returns a copy of the embedded value.
func (p ExternalPtr[T]) Get() T {
	return *p.Addr()
}

// Set replaces the embedded value.
func (p ExternalPtr[T]) Set(val T) {
	*p.AddrMut() = val
}

// Equal reports whether p and q refer to the same host object.
func (p ExternalPtr[T]) Equal(q ExternalPtr[T]) bool {
	return p.value == q.value
}

// Preserve makes the external pointer a collector root until Release.
func (p ExternalPtr[T]) Preserve() {
	p.host.Preserve(p.value)
}

// Release undoes one Preserve.
func (p ExternalPtr[T]) Release() {
	p.host.Release(p.value)
}

// Format formats the embedded value, so every verb and flag behaves as it
// would for a T.
func (p ExternalPtr[T]) Format(f fmt.State, verb rune) {
	ptr := p.Addr()
	if ptr == nil {
		fmt.Fprint(f, "<nil>")
		return
	}
	fmt.Fprintf(f, fmt.FormatString(f, verb), *ptr)
}

func (p ExternalPtr[T]) String() string {
	return fmt.Sprint(p)
}
