// Package wast parses the WebAssembly text format, including the script
// extensions used by conformance test suites.
//
// Parsing produces an AST in which every index reference is a Var that
// may still carry a symbolic $name. A separate resolution pass (see the
// resolve package) rewrites those references to numeric indices and
// reports the names it cannot bind, which keeps parse errors and name
// errors on separate channels the way two-stage assemblers do.
//
// Basic usage:
//
//	mod, err := wast.ParseModule(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Scripts add module/register/invoke commands and the assert_* family:
//
//	script, err := wast.ParseScript(`
//		(module (func (export "three") (result i32) (i32.const 3)))
//		(assert_return (invoke "three") (i32.const 3))
//	`)
//
// Float constants are kept as raw IEEE bit patterns end to end, so NaN
// payloads written as nan:0x200000 survive into the encoded module
// unchanged.
//
// Supported syntax:
//   - Functions with params, results, locals (named and indexed)
//   - Multi-value signatures and block parameters
//   - Memory, global, table declarations with inline imports/exports
//   - Control flow in flat and folded form: if/then/else, loop, block,
//     br, br_if, br_table, return
//   - call, call_indirect with type uses
//   - Bulk memory and table instructions, passive segments
//   - Reference types: funcref, externref, ref.null, ref.func
//   - Saturating truncations and sign extension
//   - Shared memory limits
//   - Comments: line (;;) and block (; ;)
//
// Not supported: SIMD (v128) constants and instructions, exception
// handling, GC types.
package wast
