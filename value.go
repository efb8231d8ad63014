package wasminterp

import (
	"fmt"
	"math"
)

// ValueKind tags the four numeric kinds a TypedValue can carry.
type ValueKind uint8

const (
	KindI32 ValueKind = iota
	KindI64
	KindF32
	KindF64
)

func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the four defined kinds.
func (k ValueKind) Valid() bool {
	return k <= KindF64
}

// TypedValue is a tagged numeric value passed across the interpreter
// boundary. The payload is wide enough for the largest kind; 32-bit kinds
// occupy the low 32 bits. Floating-point payloads are raw IEEE-754 bit
// patterns, never values converted through float arithmetic, so NaN payloads
// and signed zeros are preserved exactly.
type TypedValue struct {
	Kind ValueKind
	Bits uint64
}

// I32 builds an i32 value.
func I32(v int32) TypedValue {
	return TypedValue{Kind: KindI32, Bits: uint64(uint32(v))}
}

// I64 builds an i64 value.
func I64(v int64) TypedValue {
	return TypedValue{Kind: KindI64, Bits: uint64(v)}
}

// F32 builds an f32 value from a float. The payload is the float's bit
// pattern.
func F32(v float32) TypedValue {
	return TypedValue{Kind: KindF32, Bits: uint64(math.Float32bits(v))}
}

// F64 builds an f64 value from a float. The payload is the float's bit
// pattern.
func F64(v float64) TypedValue {
	return TypedValue{Kind: KindF64, Bits: math.Float64bits(v)}
}

// F32Bits builds an f32 value from an exact bit pattern.
func F32Bits(bits uint32) TypedValue {
	return TypedValue{Kind: KindF32, Bits: uint64(bits)}
}

// F64Bits builds an f64 value from an exact bit pattern.
func F64Bits(bits uint64) TypedValue {
	return TypedValue{Kind: KindF64, Bits: bits}
}

// I32 returns the payload reinterpreted as a signed 32-bit integer.
func (v TypedValue) I32() int32 {
	return int32(uint32(v.Bits))
}

// I64 returns the payload reinterpreted as a signed 64-bit integer.
func (v TypedValue) I64() int64 {
	return int64(v.Bits)
}

// F32 returns the payload reinterpreted as a 32-bit float.
func (v TypedValue) F32() float32 {
	return math.Float32frombits(uint32(v.Bits))
}

// F64 returns the payload reinterpreted as a 64-bit float.
func (v TypedValue) F64() float64 {
	return math.Float64frombits(v.Bits)
}

// Equal reports whether two values have the same kind and the same payload
// bit pattern. Unlike float comparison this makes matching NaNs equal and
// distinguishes -0 from +0.
func (v TypedValue) Equal(o TypedValue) bool {
	return v.Kind == o.Kind && v.Bits == o.Bits
}

func (v TypedValue) String() string {
	switch v.Kind {
	case KindI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case KindI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case KindF32:
		f := v.F32()
		if f != f {
			return fmt.Sprintf("f32:nan:0x%x", uint32(v.Bits))
		}
		return fmt.Sprintf("f32:%g", f)
	case KindF64:
		f := v.F64()
		if f != f {
			return fmt.Sprintf("f64:nan:0x%x", v.Bits)
		}
		return fmt.Sprintf("f64:%g", f)
	}
	return fmt.Sprintf("invalid(kind=%d, bits=0x%x)", uint8(v.Kind), v.Bits)
}
