package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
)

// kindForType maps a wazero value type onto a boundary value kind. Reference
// types have no boundary representation and report false.
func kindForType(t api.ValueType) (wasminterp.ValueKind, bool) {
	switch t {
	case api.ValueTypeI32:
		return wasminterp.KindI32, true
	case api.ValueTypeI64:
		return wasminterp.KindI64, true
	case api.ValueTypeF32:
		return wasminterp.KindF32, true
	case api.ValueTypeF64:
		return wasminterp.KindF64, true
	}
	return 0, false
}

// lowerArgs converts boundary values into stack slots, checking arity and
// each argument's kind against the declared parameter types. 32-bit payloads
// are masked to the low half of the slot.
func lowerArgs(name string, params []api.ValueType, args []wasminterp.TypedValue) ([]uint64, *errors.Error) {
	if len(args) != len(params) {
		return nil, errors.SignatureMismatch(name,
			fmt.Sprintf("expected %d arguments, got %d", len(params), len(args)))
	}
	if len(args) == 0 {
		return nil, nil
	}

	slots := make([]uint64, len(args))
	for i, arg := range args {
		want, ok := kindForType(params[i])
		if !ok {
			return nil, errors.SignatureMismatch(name,
				fmt.Sprintf("argument %d: no value kind for parameter type %s",
					i, api.ValueTypeName(params[i])))
		}
		if arg.Kind != want {
			return nil, errors.SignatureMismatch(name,
				fmt.Sprintf("argument %d: expected %s, got %s", i, want, arg.Kind))
		}

		switch arg.Kind {
		case wasminterp.KindI32, wasminterp.KindF32:
			slots[i] = uint64(uint32(arg.Bits))
		default:
			slots[i] = arg.Bits
		}
	}
	return slots, nil
}

// valueFromSlot lifts one stack slot into a boundary value. The declared
// type must be one of the four numeric kinds; anything else means the
// runtime and the boundary disagree about the value model and no valid
// result can be produced.
func valueFromSlot(name string, t api.ValueType, bits uint64) wasminterp.TypedValue {
	switch t {
	case api.ValueTypeI32:
		return wasminterp.TypedValue{Kind: wasminterp.KindI32, Bits: uint64(uint32(bits))}
	case api.ValueTypeI64:
		return wasminterp.TypedValue{Kind: wasminterp.KindI64, Bits: bits}
	case api.ValueTypeF32:
		return wasminterp.F32Bits(uint32(bits))
	case api.ValueTypeF64:
		return wasminterp.F64Bits(bits)
	}
	panic(fmt.Sprintf("engine: type %s of %q has no boundary value kind",
		api.ValueTypeName(t), name))
}

// liftResults lifts raw stack slots into boundary values in declaration
// order. Floating-point slots become exact bit patterns, never converted
// values, so NaN payloads survive the crossing.
func liftResults(name string, types []api.ValueType, raw []uint64) []wasminterp.TypedValue {
	if len(types) == 0 {
		return nil
	}
	out := make([]wasminterp.TypedValue, len(types))
	for i, t := range types {
		out[i] = valueFromSlot(name, t, raw[i])
	}
	return out
}
