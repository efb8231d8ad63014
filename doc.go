// Package wasminterp provides an embeddable WebAssembly interpreter boundary:
// parse text scripts or binary modules, resolve symbolic names to indices,
// load modules into isolated environments, and invoke exported functions with
// typed arguments and multi-value results.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasminterp/          Root package with TypedValue, Result, and Features
//	├── interp/          Handle-based environments, executors, and invocation
//	├── engine/          Low-level wazero integration (compile, instantiate, call)
//	├── resolve/         Name resolution pass over parsed scripts and modules
//	├── wast/            Text format tokenizer, parser, and script model
//	├── wasm/            Binary encoding primitives and name-section decoding
//	└── errors/          Structured error types and the diagnostics sink
//
// # Quick Start
//
// Load a binary module and call an export:
//
//	store := interp.NewStore()
//	defer store.Close(ctx)
//
//	env := store.CreateEnvironment(ctx, nil)
//	var sink errors.Sink
//	res, mod := store.ReadBinary(ctx, env, wasmBytes, interp.ReadBinaryOptions{}, &sink)
//	if res != wasminterp.ResultOk {
//	    log.Fatal(sink.String())
//	}
//
//	exec, _ := store.CreateExecutor(env)
//	r := store.RunExport(ctx, exec, mod, "add", []wasminterp.TypedValue{
//	    wasminterp.I32(2), wasminterp.I32(3),
//	})
//	if store.ResultStatus(r) == wasminterp.ResultOk {
//	    v, _ := store.ResultValue(r, 0)
//	    fmt.Println(v) // i32:5
//	}
//	store.DestroyExecResult(r)
//
// # Value Passing
//
// Arguments and results cross the boundary as TypedValue, a tagged union over
// i32, i64, f32, and f64. Floating-point payloads are raw IEEE-754 bit
// patterns, so NaN payloads survive a round trip unchanged.
//
// # Ownership
//
// Every handle has exactly one owner. Environments, executors, and execution
// results are created and destroyed by the caller; modules are owned by the
// environment that loaded them and are released when it is destroyed. There
// is no reference counting.
//
// # Thread Safety
//
// A Store's handle tables are internally synchronized, and distinct
// environments are fully isolated from one another, so separate environments
// may be driven from separate goroutines. A single environment and its
// executors must be driven by one goroutine at a time.
package wasminterp
