package vm

import (
	"math"
)

// Value represents a host value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-float values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish kinds.
//
// Encoding scheme:
//   - Float: Native IEEE 754 double (if not a NaN, it's a float)
//   - SmallInt: Quiet NaN + tagInt + 48-bit signed payload
//   - Special: Quiet NaN + tagSpecial + special value ID (nil/true/false)
//   - Symbol: Quiet NaN + tagSymbol + interned symbol ID
//   - String, List, ExternalPtr: Quiet NaN + kind tag + heap registry ID
//
// Heap-backed values only carry an ID; resolving them needs the Heap that
// allocated them.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for int/id
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagExternal uint64 = 0x0001000000000000 // External pointer registry ID
	tagInt      uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial  uint64 = 0x0003000000000000 // nil, true, false
	tagSymbol   uint64 = 0x0004000000000000 // Interned symbol ID
	tagString   uint64 = 0x0005000000000000 // String registry ID
	tagList     uint64 = 0x0006000000000000 // List registry ID

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1 // 140,737,488,355,327
	MinSmallInt int64 = -(1 << 47)    // -140,737,488,355,328
)

// Kind is the runtime kind of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindSymbol
	KindString
	KindList
	KindExternalPtr
)

var kindNames = [...]string{
	KindNil:         "nil",
	KindBool:        "bool",
	KindInt:         "int",
	KindFloat:       "float",
	KindSymbol:      "symbol",
	KindString:      "string",
	KindList:        "list",
	KindExternalPtr: "externalptr",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Kind reports the runtime kind of v. It needs no heap: the kind lives in
// the tag bits.
func (v Value) Kind() Kind {
	if v.IsFloat() {
		return KindFloat
	}
	switch uint64(v) & tagMask {
	case tagExternal:
		return KindExternalPtr
	case tagInt:
		return KindInt
	case tagSymbol:
		return KindSymbol
	case tagString:
		return KindString
	case tagList:
		return KindList
	}
	if v.IsBool() {
		return KindBool
	}
	return KindNil
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// A value is a float if it's not one of our tagged NaN values.
// This includes regular numbers, infinities, and "real" NaN values.
func (v Value) IsFloat() bool {
	bits := uint64(v)

	// Exponent is not all 1s, so it's a regular float
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}

	// +Inf or -Inf
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		return true
	}

	// Signaling NaN, treat as float
	if (bits & nanBits) != nanBits {
		return true
	}

	// Quiet NaN with no tag bits is a "real" NaN
	return bits&tagMask == 0
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return v.hasTag(tagInt)
}

// IsSymbol returns true if v represents an interned symbol.
func (v Value) IsSymbol() bool {
	return v.hasTag(tagSymbol)
}

// IsString returns true if v refers to a heap string.
func (v Value) IsString() bool {
	return v.hasTag(tagString)
}

// IsList returns true if v refers to a heap list.
func (v Value) IsList() bool {
	return v.hasTag(tagList)
}

// IsExternalPtr returns true if v refers to an external pointer object.
func (v Value) IsExternalPtr() bool {
	return v.hasTag(tagExternal)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// IsHeap returns true if v refers to an object owned by a Heap.
func (v Value) IsHeap() bool {
	return v.IsString() || v.IsList() || v.IsExternalPtr()
}

func (v Value) hasTag(tag uint64) bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tag)
}

// ---------------------------------------------------------------------------
// Float operations
// ---------------------------------------------------------------------------

// Float64 returns v as a float64.
// Panics if v is not a float.
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// ---------------------------------------------------------------------------
// SmallInt operations
// ---------------------------------------------------------------------------

// SmallInt returns v as an int64.
// Panics if v is not a small integer.
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("Value.SmallInt: not a small integer")
	}
	payload := uint64(v) & payloadMask

	// Sign extend from 48 bits to 64 bits
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromSmallInt creates a Value from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// TryFromSmallInt creates a Value from an int64, returning false if out of range.
func TryFromSmallInt(n int64) (Value, bool) {
	if n > MaxSmallInt || n < MinSmallInt {
		return Nil, false
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask)), true
}

// ---------------------------------------------------------------------------
// Symbol and heap ID operations
// ---------------------------------------------------------------------------

// SymbolID returns the symbol ID encoded in v.
// Panics if v is not a symbol.
func (v Value) SymbolID() uint32 {
	if !v.IsSymbol() {
		panic("Value.SymbolID: not a symbol")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromSymbolID creates a Value from a symbol ID.
func FromSymbolID(id uint32) Value {
	return Value(nanBits | tagSymbol | uint64(id))
}

// HeapID returns the registry ID of a heap-backed value.
// Panics if v is not a string, list or external pointer.
func (v Value) HeapID() uint32 {
	if !v.IsHeap() {
		panic("Value.HeapID: not a heap value")
	}
	return uint32(uint64(v) & payloadMask)
}

func fromStringID(id uint32) Value   { return Value(nanBits | tagString | uint64(id)) }
func fromListID(id uint32) Value     { return Value(nanBits | tagList | uint64(id)) }
func fromExternalID(id uint32) Value { return Value(nanBits | tagExternal | uint64(id)) }

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}
