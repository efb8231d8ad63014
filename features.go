package wasminterp

// Features selects which WebAssembly proposals the engine accepts when
// validating and running modules. The zero value enables nothing beyond the
// MVP; most callers want DefaultFeatures or EnableAll.
type Features struct {
	// MutableGlobals allows importing and exporting mutable globals.
	MutableGlobals bool
	// SaturatingFloatToInt enables the non-trapping float-to-int
	// conversion instructions (i32.trunc_sat_f32_s and friends).
	SaturatingFloatToInt bool
	// SignExtension enables the sign-extension operators
	// (i32.extend8_s and friends).
	SignExtension bool
	// MultiValue allows functions and blocks to return multiple values.
	MultiValue bool
	// BulkMemory enables memory.copy, memory.fill, passive segments, and
	// the table variants.
	BulkMemory bool
	// ReferenceTypes enables funcref/externref values and the extended
	// table instructions.
	ReferenceTypes bool
	// SIMD enables 128-bit vector instructions.
	SIMD bool
	// Threads enables shared memories and atomic instructions.
	Threads bool
}

// DefaultFeatures returns the feature set matching the WebAssembly 2.0 core
// specification: everything except threads.
func DefaultFeatures() Features {
	return Features{
		MutableGlobals:       true,
		SaturatingFloatToInt: true,
		SignExtension:        true,
		MultiValue:           true,
		BulkMemory:           true,
		ReferenceTypes:       true,
		SIMD:                 true,
	}
}

// EnableAll returns a feature set with every toggle on.
func EnableAll() Features {
	f := DefaultFeatures()
	f.Threads = true
	return f
}
