package vm

import (
	"errors"
	"fmt"
	"math"
)

// Value represents a kestrel value packed into a single 64-bit word.
//
// The two low bits of the word are a tag:
//   - 00: heap reference (arena slot index + slot generation)
//   - 01: immediate integer, stored arithmetic-shifted left by two bits
//   - 10: immediate float, IEEE 754 bits with the two low mantissa bits
//     cleared and the tag OR'd in
//   - 11: singleton (None, True, False, ...), identified by the remaining bits
//
// Immediates own no heap storage and are trivially copyable. Only heap
// references take part in collection.
type Value uint64

// Tag constants.
const (
	tagMask      uint64 = 0x3
	tagRef       uint64 = 0x0
	tagInt       uint64 = 0x1
	tagFloat     uint64 = 0x2
	tagSingleton uint64 = 0x3
)

// Heap reference layout: bits 2..33 hold the arena index, bits 34..63 the
// generation of the slot at allocation time.
const (
	refIndexShift = 2
	refGenShift   = 34
	maxGen        = 1<<30 - 1
)

// Immediate integer range (62-bit signed).
const (
	MaxInt int64 = 1<<61 - 1
	MinInt int64 = -(1 << 61)
)

// Singleton values.
const (
	None           Value = Value(0<<2 | tagSingleton)
	True           Value = Value(1<<2 | tagSingleton)
	False          Value = Value(2<<2 | tagSingleton)
	Null           Value = Value(3<<2 | tagSingleton) // "no value" sentinel, never visible to guest code
	NotImplemented Value = Value(4<<2 | tagSingleton)

	// callPending is returned by invoke when a guest call was pushed as the
	// new active frame instead of being run to completion.
	callPending Value = Value(5<<2 | tagSingleton)
	// yieldPending is returned by the dispatch loop when a generator frame
	// suspends.
	yieldPending Value = Value(6<<2 | tagSingleton)
)

// ErrIntOverflow is returned by MakeInt for integers outside [MinInt, MaxInt].
var ErrIntOverflow = errors.New("vm: integer outside immediate range")

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Tag returns the two tag bits of v.
func (v Value) Tag() uint64 { return uint64(v) & tagMask }

// IsRef returns true if v is a heap reference. The zero Value is not a
// valid reference.
func (v Value) IsRef() bool { return v.Tag() == tagRef && v != 0 }

// IsImmediate returns true if v owns no heap storage.
func (v Value) IsImmediate() bool { return v.Tag() != tagRef }

// IsInt returns true if v is an immediate integer.
func (v Value) IsInt() bool { return v.Tag() == tagInt }

// IsFloat returns true if v is an immediate float.
func (v Value) IsFloat() bool { return v.Tag() == tagFloat }

// IsNumber returns true for immediate integers and floats.
func (v Value) IsNumber() bool { return v.IsInt() || v.IsFloat() }

// IsSingleton returns true for None, True, False and the internal sentinels.
func (v Value) IsSingleton() bool { return v.Tag() == tagSingleton }

// IsNone returns true if v is None.
func (v Value) IsNone() bool { return v == None }

// IsNull returns true if v is the internal "no value" sentinel.
func (v Value) IsNull() bool { return v == Null }

// IsBool returns true if v is True or False.
func (v Value) IsBool() bool { return v == True || v == False }

// ---------------------------------------------------------------------------
// Integers
// ---------------------------------------------------------------------------

// MakeInt encodes n as an immediate, failing if it does not fit.
func MakeInt(n int64) (Value, error) {
	if n > MaxInt || n < MinInt {
		return Null, fmt.Errorf("%w: %d", ErrIntOverflow, n)
	}
	return Value(uint64(n)<<2 | tagInt), nil
}

// FromInt encodes n as an immediate integer.
// Panics if n is outside the immediate range; use MakeInt for untrusted input.
func FromInt(n int64) Value {
	if n > MaxInt || n < MinInt {
		panic("FromInt: value out of range")
	}
	return Value(uint64(n)<<2 | tagInt)
}

// Int returns v as an int64.
// Panics if v is not an immediate integer.
func (v Value) Int() int64 {
	if !v.IsInt() {
		panic("Value.Int: not an integer")
	}
	return int64(v) >> 2
}

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

const canonicalNaN uint64 = 0x7FF8000000000000

// FromFloat encodes f as an immediate float. The two lowest mantissa bits
// are dropped; every NaN is canonicalized to the quiet NaN.
func FromFloat(f float64) Value {
	bits := math.Float64bits(f)
	if f != f {
		bits = canonicalNaN
	}
	return Value(bits&^tagMask | tagFloat)
}

// Float returns v as a float64.
// Panics if v is not an immediate float.
func (v Value) Float() float64 {
	if !v.IsFloat() {
		panic("Value.Float: not a float")
	}
	return math.Float64frombits(uint64(v) &^ tagMask)
}

// ---------------------------------------------------------------------------
// Booleans
// ---------------------------------------------------------------------------

// FromBool returns True or False.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Bool returns v as a bool.
// Panics if v is not True or False.
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

// ---------------------------------------------------------------------------
// Heap references
// ---------------------------------------------------------------------------

// Ref identifies a heap slot: its arena index and the generation the slot
// had when the object was allocated. A stale Ref never aliases a newer
// object that reused the slot.
type Ref struct {
	Index uint32
	Gen   uint32
}

// FromRef encodes a heap reference.
func FromRef(r Ref) Value {
	return Value(uint64(r.Gen)<<refGenShift | uint64(r.Index)<<refIndexShift | tagRef)
}

// AsRef decodes v as a heap reference. It fails for every immediate.
func (v Value) AsRef() (Ref, bool) {
	if !v.IsRef() {
		return Ref{}, false
	}
	return Ref{
		Index: uint32(uint64(v) >> refIndexShift),
		Gen:   uint32(uint64(v) >> refGenShift),
	}, true
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// immediateTruth reports the truthiness of an immediate. The second result
// is false for heap references, whose truthiness needs the VM.
func (v Value) immediateTruth() (truthy bool, ok bool) {
	switch {
	case v.IsInt():
		return v.Int() != 0, true
	case v.IsFloat():
		return v.Float() != 0, true
	case v == None, v == False, v == Null:
		return false, true
	case v.IsSingleton():
		return true, true
	}
	return false, false
}

// ---------------------------------------------------------------------------
// Debugging
// ---------------------------------------------------------------------------

// String renders v without consulting the heap. Use VM.Repr for guest-level
// representations.
func (v Value) String() string {
	switch v.Tag() {
	case tagInt:
		return fmt.Sprintf("%d", v.Int())
	case tagFloat:
		return fmt.Sprintf("%g", v.Float())
	case tagSingleton:
		switch v {
		case None:
			return "None"
		case True:
			return "True"
		case False:
			return "False"
		case Null:
			return "<null>"
		case NotImplemented:
			return "NotImplemented"
		case callPending:
			return "<call-continuation>"
		case yieldPending:
			return "<yield-continuation>"
		}
		return fmt.Sprintf("<singleton %d>", uint64(v)>>2)
	}
	if r, ok := v.AsRef(); ok {
		return fmt.Sprintf("<ref %d#%d>", r.Index, r.Gen)
	}
	return "<invalid>"
}
