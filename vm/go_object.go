package vm

import (
	"reflect"
)

// ---------------------------------------------------------------------------
// Type Marshaling: Go ↔ host Value conversion
// ---------------------------------------------------------------------------

// GoToValue converts a Go value to a host Value.
// Handles nil, bool, integers, floats, strings, []byte, slices and arrays
// (as lists) and Values themselves. Anything else becomes Nil; embedding an
// arbitrary Go value is what external pointers are for.
func (h *Heap) GoToValue(goVal interface{}) Value {
	if goVal == nil {
		return Nil
	}
	if v, ok := goVal.(Value); ok {
		return v
	}

	v := reflect.ValueOf(goVal)
	switch v.Kind() {
	case reflect.Bool:
		return FromBool(v.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if iv, ok := TryFromSmallInt(v.Int()); ok {
			return iv
		}
		return FromFloat64(float64(v.Int()))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() <= uint64(MaxSmallInt) {
			return FromSmallInt(int64(v.Uint()))
		}
		return FromFloat64(float64(v.Uint()))

	case reflect.Float32, reflect.Float64:
		return FromFloat64(v.Float())

	case reflect.String:
		return h.NewString(v.String())

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return h.NewString(string(v.Bytes()))
		}
		elems := make([]Value, v.Len())
		for i := 0; i < v.Len(); i++ {
			elems[i] = h.GoToValue(v.Index(i).Interface())
		}
		return h.NewList(elems...)

	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return Nil
		}
		return h.GoToValue(v.Elem().Interface())
	}

	return Nil
}

// ValueToGo converts a host Value to a Go value. External pointers come
// back as their raw address; use the extptr package to recover a typed
// pointer.
func (h *Heap) ValueToGo(v Value) interface{} {
	switch v.Kind() {
	case KindNil:
		return nil
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.SmallInt()
	case KindFloat:
		return v.Float64()
	case KindSymbol:
		name, _ := h.SymbolName(v)
		return name
	case KindString:
		s, _ := h.StringValue(v)
		return s
	case KindList:
		elems := h.ListElements(v)
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = h.ValueToGo(e)
		}
		return out
	case KindExternalPtr:
		return h.ExternalPtrAddr(v)
	default:
		return nil
	}
}
