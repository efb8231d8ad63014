// Package wasm writes resolved text-format modules as WebAssembly binary
// modules and reads back the pieces of a binary the rest of the system
// needs.
//
// EncodeModule is the write side: it takes a wast.Module whose symbolic
// references were all rewritten to numeric indices and produces the
// binary encoding, sections in canonical order, each emitted only when
// non-empty. The DataCount section is inserted before Code when passive
// data segments exist so bulk memory instructions can be validated in
// one pass. Any name left unresolved fails the encode rather than
// producing a module with dangling indices.
//
//	bin, err := wasm.EncodeModule(mod)
//
// Float constants pass through as raw bit patterns, so a NaN payload
// spelled in the source arrives in the binary bit-exact.
//
// DecodeNames is the read side: it scans an already valid binary for the
// "name" custom section and recovers the module name and per-function
// names for diagnostics. Custom section payloads are decoded best effort
// because the format says a malformed custom section never invalidates a
// module.
//
//	names, err := wasm.DecodeNames(bin)
//	fmt.Println(names.FuncName(0))
package wasm
