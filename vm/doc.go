// Package vm implements the host runtime that external pointers live in.
//
// This package contains:
//   - NaN-boxed value representation
//   - A heap of strings, lists and external pointer objects
//   - Preserved values and globals as collector roots
//   - A mark-and-sweep collector that runs external pointer finalizers
//   - A periodic collection loop
package vm
