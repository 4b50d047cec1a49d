// Package extptr embeds Go values in host external pointer objects.
//
// An ExternalPtr[T] hands a T over to the host collector: New moves the
// value into memory only the external pointer refers to, tags the pointer
// with the name of T, and registers a finalizer that drops the value once
// the collector finds the pointer unreachable. FromValue is the way back
// from an untyped host value; it checks the tag before any memory is
// reinterpreted as a T.
//
//	h := vm.NewHeap()
//	p := extptr.New(h, Counter{})
//	p.AddrMut().N++
//	v := p.Value() // hand to host code
//
//	q, err := extptr.FromValue[Counter](h, v)
//	if errors.Is(err, extptr.ErrExpectedExternalPtrType) {
//		// v holds something else
//	}
//
// The host only knows about references it can trace. A Go variable holding
// an ExternalPtr does not keep it alive; Preserve it, or store its Value
// somewhere reachable, for as long as Go code uses it. When a vm.Collector
// runs in the background, create the pointer with NewRooted so it is never
// unrooted between construction and Preserve.
package extptr
