package interp

import (
	"context"
	"strings"
	"testing"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/resolve"
	"github.com/wippyai/wasm-interp/wast"
)

func parseResolved(t *testing.T, src string) *wast.Script {
	t.Helper()
	script, err := wast.ParseScript(src)
	if err != nil {
		t.Fatalf("parse script: %v", err)
	}
	var sink errors.Sink
	if res := resolve.Script(script, &sink); !res.Ok() {
		t.Fatalf("resolve script: %s", sink.String())
	}
	return script
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	s := NewStore()
	t.Cleanup(func() { s.Close(context.Background()) })
	r, err := NewRunner(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

func runScript(t *testing.T, src string) (Summary, *errors.Sink) {
	t.Helper()
	r := newTestRunner(t)
	var sink errors.Sink
	sum := r.Run(context.Background(), parseResolved(t, src), &sink)
	return sum, &sink
}

func wantClean(t *testing.T, sum Summary, sink *errors.Sink, passed int) {
	t.Helper()
	if sum.Failed != 0 || sum.Passed != passed {
		t.Fatalf("summary = %+v, want %d passed; diagnostics:\n%s", sum, passed, sink.String())
	}
	if !sink.Empty() {
		t.Fatalf("unexpected diagnostics:\n%s", sink.String())
	}
}

func TestScriptArithmetic(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (func (export "add") (param i32 i32) (result i32)
    local.get 0
    local.get 1
    i32.add)
  (func (export "div") (param i32 i32) (result i32)
    local.get 0
    local.get 1
    i32.div_s)
  (func (export "wrap") (param i64) (result i32)
    local.get 0
    i32.wrap_i64))
(assert_return (invoke "add" (i32.const 2) (i32.const 3)) (i32.const 5))
(assert_return (invoke "add" (i32.const -1) (i32.const 1)) (i32.const 0))
(assert_return (invoke "wrap" (i64.const 0x100000005)) (i32.const 5))
(assert_trap (invoke "div" (i32.const 1) (i32.const 0)) "integer divide by zero")
(assert_trap (invoke "div" (i32.const -2147483648) (i32.const -1)) "integer overflow")
(invoke "add" (i32.const 1) (i32.const 1))
`)
	wantClean(t, sum, sink, 7)
}

func TestScriptAssertFailureDiagnostic(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (func (export "one") (result i32) i32.const 1))
(assert_return (invoke "one") (i32.const 2))
`)
	if sum.Passed != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 1/1", sum)
	}
	if sink.Len() != 1 {
		t.Fatalf("diagnostics = %d, want 1:\n%s", sink.Len(), sink.String())
	}
	if msg := sink.String(); !strings.Contains(msg, "result 0") || !strings.Contains(msg, "i32:2") {
		t.Errorf("diagnostic %q lacks the mismatch detail", msg)
	}
}

func TestScriptNaNClasses(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (func (export "f32div") (param f32 f32) (result f32)
    local.get 0
    local.get 1
    f32.div)
  (func (export "f64div") (param f64 f64) (result f64)
    local.get 0
    local.get 1
    f64.div))
(assert_return (invoke "f32div" (f32.const 0) (f32.const 0)) (f32.const nan:canonical))
(assert_return (invoke "f32div" (f32.const 0) (f32.const 0)) (f32.const nan:arithmetic))
(assert_return (invoke "f64div" (f64.const 0) (f64.const 0)) (f64.const nan:canonical))
(assert_return (invoke "f64div" (f64.const 0) (f64.const 0)) (f64.const nan:arithmetic))
(assert_return (invoke "f32div" (f32.const 1) (f32.const 2)) (f32.const 0.5))
`)
	wantClean(t, sum, sink, 6)
}

func TestScriptRegister(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (func (export "three") (result i32) i32.const 3))
(register "lib")
(module
  (import "lib" "three" (func $three (result i32)))
  (func (export "six") (result i32)
    call $three
    call $three
    i32.add))
(assert_return (invoke "six") (i32.const 6))
`)
	wantClean(t, sum, sink, 4)
}

func TestScriptRegisterNamed(t *testing.T) {
	sum, sink := runScript(t, `
(module $m
  (global (export "g") i32 (i32.const 7)))
(register "host" $m)
(module
  (import "host" "g" (global i32))
  (func (export "peek") (result i32) global.get 0))
(assert_return (invoke "peek") (i32.const 7))
`)
	wantClean(t, sum, sink, 4)
}

func TestScriptRegisterWithoutModule(t *testing.T) {
	sum, sink := runScript(t, `(register "void")`)
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", sum)
	}
	if msg := sink.String(); !strings.Contains(msg, "no module to register") {
		t.Errorf("diagnostic %q", msg)
	}
}

func TestScriptSpectestImports(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (import "spectest" "print_i32" (func $print (param i32)))
  (import "spectest" "global_i32" (global $gi i32))
  (global (export "g") i32 (i32.const 5))
  (func (export "peek") (result i32)
    global.get $gi)
  (func (export "say")
    i32.const 1
    call $print))
(assert_return (invoke "peek") (i32.const 666))
(assert_return (get "g") (i32.const 5))
(invoke "say")
`)
	wantClean(t, sum, sink, 4)
}

func TestScriptNamedModuleActions(t *testing.T) {
	sum, sink := runScript(t, `
(module $a
  (func (export "f") (result i32) i32.const 1))
(module $b
  (func (export "g") (result i32) i32.const 2))
(assert_return (invoke $a "f") (i32.const 1))
(assert_return (invoke $b "g") (i32.const 2))
(assert_return (invoke "g") (i32.const 2))
`)
	wantClean(t, sum, sink, 5)
}

func TestScriptAssertMalformed(t *testing.T) {
	sum, sink := runScript(t, `
(assert_malformed (module binary "") "unexpected end")
(assert_malformed (module binary "\00asm\01\00\00\00" "\ff") "malformed section id")
(assert_malformed (module quote "(func") "unexpected end")
(assert_malformed (module quote "(func (nonexistent.op))") "unknown operator")
`)
	wantClean(t, sum, sink, 4)
}

func TestScriptAssertMalformedRejectsWellFormed(t *testing.T) {
	sum, sink := runScript(t, `
(assert_malformed (module quote "(func (export \"f\"))") "unexpected end")
`)
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", sum)
	}
	if msg := sink.String(); !strings.Contains(msg, "assert_malformed") {
		t.Errorf("diagnostic %q", msg)
	}
}

func TestScriptAssertInvalid(t *testing.T) {
	sum, sink := runScript(t, `
(assert_invalid (module (func (result i32))) "type mismatch")
(assert_invalid
  (module (func (param i32) (result i32)
    local.get 0
    local.get 0))
  "type mismatch")
`)
	wantClean(t, sum, sink, 2)
}

func TestScriptAssertUnlinkable(t *testing.T) {
	sum, sink := runScript(t, `
(assert_unlinkable
  (module (import "nowhere" "f" (func)))
  "unknown import")
`)
	wantClean(t, sum, sink, 1)
}

func TestScriptAssertUninstantiable(t *testing.T) {
	sum, sink := runScript(t, `
(assert_uninstantiable
  (module
    (func $boom unreachable)
    (start $boom))
  "unreachable")
`)
	wantClean(t, sum, sink, 1)
}

func TestScriptAssertTrapModuleForm(t *testing.T) {
	sum, sink := runScript(t, `
(assert_trap
  (module
    (func $boom unreachable)
    (start $boom))
  "unreachable")
`)
	wantClean(t, sum, sink, 1)
}

func TestScriptAssertExhaustion(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (func $loop (export "loop")
    call $loop))
(assert_exhaustion (invoke "loop") "call stack exhausted")
`)
	wantClean(t, sum, sink, 2)
}

func TestScriptModuleFailureTaintsActions(t *testing.T) {
	sum, sink := runScript(t, `
(module
  (func (export "ok") (result i32) i32.const 1))
(module
  (import "missing" "f" (func)))
(assert_return (invoke "ok") (i32.const 1))
`)
	// The broken module stays the action target, so the assert fails
	// rather than silently landing on the first module.
	if sum.Passed != 1 || sum.Failed != 2 {
		t.Fatalf("summary = %+v, want 1 passed / 2 failed:\n%s", sum, sink.String())
	}
}

func TestRunnerStateResetsBetweenRuns(t *testing.T) {
	r := newTestRunner(t)

	var first errors.Sink
	sum := r.Run(context.Background(), parseResolved(t, `
(module
  (func (export "f") (result i32) i32.const 1))
(assert_return (invoke "f") (i32.const 1))
`), &first)
	if sum.Failed != 0 {
		t.Fatalf("first run: %+v\n%s", sum, first.String())
	}

	var second errors.Sink
	sum = r.Run(context.Background(), parseResolved(t, `(invoke "f")`), &second)
	if sum.Failed != 1 {
		t.Fatalf("second run summary = %+v, want the action to fail", sum)
	}
	if msg := second.String(); !strings.Contains(msg, "no module") {
		t.Errorf("diagnostic %q", msg)
	}
}

func TestConstValueRejectsNaNPatterns(t *testing.T) {
	_, err := constValue(wast.Const{Type: wast.ValTypeF32, NaN: wast.NaNCanonical})
	if err == nil {
		t.Fatal("NaN pattern accepted as argument")
	}
}

func TestMatchConst(t *testing.T) {
	tests := []struct {
		name string
		c    wast.Const
		v    wasminterp.TypedValue
		want bool
	}{
		{"i32 equal", wast.Const{Type: wast.ValTypeI32, Bits: 5}, wasminterp.I32(5), true},
		{"i32 differ", wast.Const{Type: wast.ValTypeI32, Bits: 5}, wasminterp.I32(6), false},
		{"kind mismatch", wast.Const{Type: wast.ValTypeI32, Bits: 5}, wasminterp.I64(5), false},
		{"i64 equal", wast.Const{Type: wast.ValTypeI64, Bits: 1 << 40}, wasminterp.I64(1 << 40), true},
		{"f32 exact", wast.Const{Type: wast.ValTypeF32, Bits: 0x3F80_0000}, wasminterp.F32Bits(0x3F80_0000), true},
		{"f32 canonical matches negative", wast.Const{Type: wast.ValTypeF32, NaN: wast.NaNCanonical}, wasminterp.F32Bits(0xFFC0_0000), true},
		{"f32 canonical rejects payload", wast.Const{Type: wast.ValTypeF32, NaN: wast.NaNCanonical}, wasminterp.F32Bits(0x7FC0_0001), false},
		{"f32 arithmetic accepts payload", wast.Const{Type: wast.ValTypeF32, NaN: wast.NaNArithmetic}, wasminterp.F32Bits(0x7FC0_0001), true},
		{"f32 arithmetic rejects signaling", wast.Const{Type: wast.ValTypeF32, NaN: wast.NaNArithmetic}, wasminterp.F32Bits(0x7F80_0001), false},
		{"f64 canonical", wast.Const{Type: wast.ValTypeF64, NaN: wast.NaNCanonical}, wasminterp.F64Bits(0xFFF8_0000_0000_0000), true},
		{"f64 arithmetic accepts payload", wast.Const{Type: wast.ValTypeF64, NaN: wast.NaNArithmetic}, wasminterp.F64Bits(0x7FF8_0000_0000_0001), true},
		{"f64 exact", wast.Const{Type: wast.ValTypeF64, Bits: 0x4000_0000_0000_0000}, wasminterp.F64Bits(0x4000_0000_0000_0000), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchConst(tt.c, tt.v)
			if err != nil {
				t.Fatalf("matchConst: %v", err)
			}
			if got != tt.want {
				t.Errorf("matchConst = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchTrap(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		want     bool
	}{
		{"substring", "integer divide by zero", "[runtime] trap: div (caused by: integer divide by zero)", true},
		{"alias exhaustion", "call stack exhausted", "wasm error: stack overflow", true},
		{"alias undefined element", "undefined element", "invalid table access", true},
		{"alias uninitialized", "uninitialized element", "invalid table access", true},
		{"alias table bounds", "out of bounds table access", "invalid table access", true},
		{"empty matches anything", "", "whatever", true},
		{"mismatch", "unreachable", "integer overflow", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchTrap(tt.expected, tt.actual); got != tt.want {
				t.Errorf("matchTrap(%q, %q) = %v, want %v", tt.expected, tt.actual, got, tt.want)
			}
		})
	}
}

func TestParseQuoted(t *testing.T) {
	t.Run("full module", func(t *testing.T) {
		if _, err := parseQuoted(`(module (func))`); err != nil {
			t.Fatalf("parseQuoted: %v", err)
		}
	})
	t.Run("bare fields", func(t *testing.T) {
		mod, err := parseQuoted(`(func (export "f")) (memory 1)`)
		if err != nil {
			t.Fatalf("parseQuoted: %v", err)
		}
		if mod == nil {
			t.Fatal("nil module")
		}
	})
	t.Run("unbalanced stays malformed", func(t *testing.T) {
		if _, err := parseQuoted(`(func`); err == nil {
			t.Fatal("unbalanced source parsed")
		}
	})
}
