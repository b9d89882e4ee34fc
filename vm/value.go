package vm

import (
	"math"
)

// Value represents a Lunar value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-float values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Float: Native IEEE 754 double (if not a NaN, it's a float)
//   - SmallInt: Quiet NaN + tagInt + 48-bit signed payload
//   - Special: Quiet NaN + tagSpecial + special value ID (nil/true/false)
//   - String: Quiet NaN + tagString + interned string ID
//   - Table: Quiet NaN + tagTable + heap table ID
//   - Function: Quiet NaN + tagFunc + heap function ID
//   - Userdata: Quiet NaN + tagUser + heap userdata ID
//   - Thread: Quiet NaN + tagThread + heap thread ID
//
// Heap IDs are only meaningful relative to the State that allocated them;
// a Value must never be carried from one State to another.
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
	tagInt     uint64 = 0x0001000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0002000000000000 // nil, true, false
	tagString  uint64 = 0x0003000000000000 // Interned string ID
	tagTable   uint64 = 0x0004000000000000 // Heap table ID
	tagFunc    uint64 = 0x0005000000000000 // Heap function ID
	tagUser    uint64 = 0x0006000000000000 // Heap userdata ID
	tagThread  uint64 = 0x0007000000000000 // Heap thread ID

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
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// A value is a float if it's not one of our tagged NaN values.
// This includes regular numbers, infinities, and "real" NaN values.
func (v Value) IsFloat() bool {
	bits := uint64(v)

	// Exponent not all 1s: a regular float.
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}

	// Infinity has mantissa == 0 (ignoring sign bit).
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		return true
	}

	// A signaling NaN is not one of our tagged values.
	if (bits & nanBits) != nanBits {
		return true
	}

	// A quiet NaN with no tag bits is a "real" NaN, treated as a float.
	return bits&tagMask == 0
}

func (v Value) hasTag(tag uint64) bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tag)
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return v.hasTag(tagInt)
}

// IsNumber returns true if v is a small integer or a float.
func (v Value) IsNumber() bool {
	return v.IsSmallInt() || v.IsFloat()
}

// IsString returns true if v represents an interned string.
func (v Value) IsString() bool {
	return v.hasTag(tagString)
}

// IsTable returns true if v represents a heap table.
func (v Value) IsTable() bool {
	return v.hasTag(tagTable)
}

// IsFunction returns true if v represents a native function.
func (v Value) IsFunction() bool {
	return v.hasTag(tagFunc)
}

// IsUserdata returns true if v represents a userdata (full or light).
func (v Value) IsUserdata() bool {
	return v.hasTag(tagUser)
}

// IsThread returns true if v represents a thread.
func (v Value) IsThread() bool {
	return v.hasTag(tagThread)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// Truthy returns false only for nil and false, per the usual
// dynamic-language truth rule.
func (v Value) Truthy() bool {
	return v != Nil && v != False
}

// Type returns the runtime type of v.
func (v Value) Type() Type {
	switch {
	case v == Nil:
		return TypeNil
	case v == True || v == False:
		return TypeBoolean
	case v.IsFloat(), v.IsSmallInt():
		return TypeNumber
	case v.IsString():
		return TypeString
	case v.IsTable():
		return TypeTable
	case v.IsFunction():
		return TypeFunction
	case v.IsUserdata():
		return TypeUserdata
	case v.IsThread():
		return TypeThread
	default:
		return TypeNone
	}
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

// Number returns v as a float64 regardless of integer/float representation.
// Panics if v is not a number.
func (v Value) Number() float64 {
	if v.IsSmallInt() {
		return float64(v.SmallInt())
	}
	return v.Float64()
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
// Integers outside the 48-bit range fall back to float representation.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		return FromFloat64(float64(n))
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Heap ID operations
// ---------------------------------------------------------------------------

// heapID returns the 32-bit heap registry ID encoded in a tagged heap value.
func (v Value) heapID() uint32 {
	return uint32(uint64(v) & payloadMask)
}

func fromHeapID(tag uint64, id uint32) Value {
	return Value(nanBits | tag | uint64(id))
}

// numbersEqual reports numeric equality across the int/float representations,
// so FromSmallInt(1) and FromFloat64(1.0) compare equal.
func numbersEqual(a, b Value) bool {
	if a.IsSmallInt() && b.IsSmallInt() {
		return a == b
	}
	return a.Number() == b.Number()
}
