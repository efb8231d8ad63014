package engine

import (
	"context"
	"testing"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/resolve"
	"github.com/wippyai/wasm-interp/wasm"
	"github.com/wippyai/wasm-interp/wast"
)

// compileWat runs the repo's own text pipeline so engine tests exercise the
// encoder end to end.
func compileWat(t *testing.T, src string) []byte {
	t.Helper()
	mod, err := wast.ParseModule(src)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	var sink errors.Sink
	if res := resolve.Module(mod, &sink); res != wasminterp.ResultOk {
		t.Fatalf("resolution failed: %s", sink.String())
	}
	bin, err := wasm.EncodeModule(mod)
	if err != nil {
		t.Fatalf("EncodeModule failed: %v", err)
	}
	return bin
}

func newEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e := New(ctx, cfg)
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func loadWat(t *testing.T, e *Engine, src, name string) *Module {
	t.Helper()
	mod, err := e.Load(context.Background(), compileWat(t, src), name)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return mod
}

func TestInvokeAdd(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(func (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add))`, "")

	got, err := mod.Invoke(context.Background(), "add",
		[]wasminterp.TypedValue{wasminterp.I32(2), wasminterp.I32(3)})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("result count = %d, want 1", len(got))
	}
	if !got[0].Equal(wasminterp.I32(5)) {
		t.Errorf("add(2, 3) = %s, want i32:5", got[0])
	}
}

func TestInvokeFloatBitsRoundTrip(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(func (export "id32") (param f32) (result f32) local.get 0)
		(func (export "id64") (param f64) (result f64) local.get 0))`, "")
	ctx := context.Background()

	// NaN with a nonstandard payload must cross the boundary bit-exact.
	arg32 := wasminterp.F32Bits(0x7FA0_0001)
	got, err := mod.Invoke(ctx, "id32", []wasminterp.TypedValue{arg32})
	if err != nil {
		t.Fatalf("id32 failed: %v", err)
	}
	if !got[0].Equal(arg32) {
		t.Errorf("id32 = %s, want bits 0x%x", got[0], arg32.Bits)
	}

	arg64 := wasminterp.F64Bits(0x7FF4_0000_0000_0003)
	got, err = mod.Invoke(ctx, "id64", []wasminterp.TypedValue{arg64})
	if err != nil {
		t.Fatalf("id64 failed: %v", err)
	}
	if !got[0].Equal(arg64) {
		t.Errorf("id64 = %s, want bits 0x%x", got[0], arg64.Bits)
	}
}

func TestInvokeMultiValue(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(func (export "pair") (result i32 i64)
			i32.const 7
			i64.const -9))`, "")

	got, err := mod.Invoke(context.Background(), "pair", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("result count = %d, want 2", len(got))
	}
	if !got[0].Equal(wasminterp.I32(7)) || !got[1].Equal(wasminterp.I64(-9)) {
		t.Errorf("pair = %s, %s, want i32:7, i64:-9", got[0], got[1])
	}
}

func TestInvokeTrap(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(func (export "boom") unreachable))`, "")

	_, err := mod.Invoke(context.Background(), "boom", nil)
	if err == nil {
		t.Fatal("trapping call returned nil error")
	}
	werr, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("err = %T, want *errors.Error", err)
	}
	if werr.Kind != errors.KindTrap {
		t.Errorf("err kind = %s, want trap", werr.Kind)
	}
	if werr.Name != "boom" {
		t.Errorf("err name = %q, want boom", werr.Name)
	}
}

func TestInvokeUnknownExport(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module (func (export "f")))`, "")

	_, err := mod.Invoke(context.Background(), "missing", nil)
	werr, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("err = %T, want *errors.Error", err)
	}
	if werr.Kind != errors.KindNotFound {
		t.Errorf("err kind = %s, want not_found", werr.Kind)
	}
}

func TestInvokeSignatureMismatch(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(func (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add))`, "")
	ctx := context.Background()

	tests := []struct {
		name string
		args []wasminterp.TypedValue
	}{
		{"no args", nil},
		{"too few", []wasminterp.TypedValue{wasminterp.I32(1)}},
		{"too many", []wasminterp.TypedValue{wasminterp.I32(1), wasminterp.I32(2), wasminterp.I32(3)}},
		{"wrong kind", []wasminterp.TypedValue{wasminterp.I32(1), wasminterp.F64(2)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mod.Invoke(ctx, "add", tc.args)
			werr, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("err = %T, want *errors.Error", err)
			}
			if werr.Kind != errors.KindSignatureMismatch {
				t.Errorf("err kind = %s, want signature_mismatch", werr.Kind)
			}
		})
	}
}

func TestGlobalRead(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(global (export "answer") i32 (i32.const 42))
		(global (export "tau") f64 (f64.const 6.28)))`, "")

	got, err := mod.Global("answer")
	if err != nil {
		t.Fatalf("Global(answer) failed: %v", err)
	}
	if !got.Equal(wasminterp.I32(42)) {
		t.Errorf("answer = %s, want i32:42", got)
	}

	got, err = mod.Global("tau")
	if err != nil {
		t.Fatalf("Global(tau) failed: %v", err)
	}
	if !got.Equal(wasminterp.F64(6.28)) {
		t.Errorf("tau = %s, want f64:6.28", got)
	}

	if _, err := mod.Global("nope"); err == nil {
		t.Error("Global(nope) returned nil error")
	}
}

func TestStartSectionRuns(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(global $g (export "g") (mut i32) (i32.const 0))
		(func $init (global.set $g (i32.const 41)))
		(func (export "_start") (global.set $g (i32.const 99)))
		(start $init))`, "")

	// The start section ran; the WASI-style "_start" export did not.
	got, err := mod.Global("g")
	if err != nil {
		t.Fatalf("Global failed: %v", err)
	}
	if !got.Equal(wasminterp.I32(41)) {
		t.Errorf("g = %s, want i32:41", got)
	}
}

func TestLoadMalformed(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	valid := compileWat(t, `(module (func (export "f")))`)
	tests := []struct {
		name string
		bin  []byte
	}{
		{"empty", nil},
		{"bad magic", []byte{0x01, 0x02, 0x03, 0x04}},
		{"truncated", valid[:4]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Load(ctx, tc.bin, "")
			if err == nil {
				t.Fatal("malformed binary loaded")
			}
			werr, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("err = %T, want *errors.Error", err)
			}
			if werr.Phase != errors.PhaseLoad {
				t.Errorf("err phase = %s, want load", werr.Phase)
			}
		})
	}
}

func TestFeatureGate(t *testing.T) {
	ctx := context.Background()
	src := `(module
		(func (export "ext") (param i32) (result i32)
			local.get 0
			i32.extend8_s))`
	bin := compileWat(t, src)

	mvp := newEngine(t, &Config{Features: wasminterp.Features{}})
	if _, err := mvp.Load(ctx, bin, ""); err == nil {
		t.Error("sign-extension module loaded with MVP features")
	}

	full := newEngine(t, &Config{Features: wasminterp.DefaultFeatures()})
	mod, err := full.Load(ctx, bin, "")
	if err != nil {
		t.Fatalf("Load with default features failed: %v", err)
	}
	got, err := mod.Invoke(ctx, "ext", []wasminterp.TypedValue{wasminterp.I32(0x180)})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !got[0].Equal(wasminterp.I32(-128)) {
		t.Errorf("ext(0x180) = %s, want i32:-128", got[0])
	}
}

func TestNamedModuleImport(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	if _, err := e.Load(ctx, compileWat(t, `(module
		(func (export "three") (result i32) i32.const 3))`), "lib"); err != nil {
		t.Fatalf("Load lib failed: %v", err)
	}

	user, err := e.Load(ctx, compileWat(t, `(module
		(import "lib" "three" (func $three (result i32)))
		(func (export "six") (result i32)
			call $three
			call $three
			i32.add))`), "")
	if err != nil {
		t.Fatalf("Load importer failed: %v", err)
	}

	got, err := user.Invoke(ctx, "six", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !got[0].Equal(wasminterp.I32(6)) {
		t.Errorf("six() = %s, want i32:6", got[0])
	}
}

func TestExportedFunctions(t *testing.T) {
	e := newEngine(t, nil)
	mod := loadWat(t, e, `(module
		(func (export "b") (param i64) (result i64) local.get 0)
		(func (export "a")))`, "")

	exports := mod.ExportedFunctions()
	if len(exports) != 2 {
		t.Fatalf("export count = %d, want 2", len(exports))
	}
	if exports[0].Name != "a" || exports[1].Name != "b" {
		t.Errorf("export order = %q, %q, want a, b", exports[0].Name, exports[1].Name)
	}
	if len(exports[1].Params) != 1 || len(exports[1].Results) != 1 {
		t.Errorf("b signature = %d params %d results, want 1 and 1",
			len(exports[1].Params), len(exports[1].Results))
	}

	if !mod.HasExport("a") {
		t.Error("HasExport(a) = false")
	}
	if mod.HasExport("zzz") {
		t.Error("HasExport(zzz) = true")
	}
}

func TestEngineIsolation(t *testing.T) {
	ctx := context.Background()
	e1 := newEngine(t, nil)
	e2 := newEngine(t, nil)

	if _, err := e1.Load(ctx, compileWat(t, `(module
		(func (export "one") (result i32) i32.const 1))`), "lib"); err != nil {
		t.Fatalf("Load into first engine failed: %v", err)
	}

	// The registration in e1 must not leak into e2's namespace.
	_, err := e2.Load(ctx, compileWat(t, `(module
		(import "lib" "one" (func (result i32))))`), "")
	if err == nil {
		t.Fatal("import resolved across engines")
	}
}
