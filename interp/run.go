package interp

import (
	"context"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/resolve"
	"github.com/wippyai/wasm-interp/wasm"
	"github.com/wippyai/wasm-interp/wast"
)

// CompileText turns WebAssembly text into a binary module: parse, resolve,
// encode. Failures land in sink and report ResultError.
func CompileText(src string, sink *errors.Sink) (wasminterp.Result, []byte) {
	mod, err := wast.ParseModule(src)
	if err != nil {
		sinkError(sink, err)
		return wasminterp.ResultError, nil
	}
	return compileModule(mod, sink)
}

// compileModule resolves and encodes an already-parsed module.
func compileModule(mod *wast.Module, sink *errors.Sink) (wasminterp.Result, []byte) {
	if res := resolve.Module(mod, sink); !res.Ok() {
		return res, nil
	}

	bin, err := wasm.EncodeModule(mod)
	if err != nil {
		sinkError(sink, err)
		return wasminterp.ResultError, nil
	}
	return wasminterp.ResultOk, bin
}

// ReadText compiles text and loads the result into env in one step.
func (s *Store) ReadText(ctx context.Context, env EnvironmentHandle, src string, opts ReadBinaryOptions, sink *errors.Sink) (wasminterp.Result, ModuleHandle) {
	res, bin := CompileText(src, sink)
	if !res.Ok() {
		return res, 0
	}
	return s.ReadBinary(ctx, env, bin, opts, sink)
}
