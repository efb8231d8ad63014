package resolve

import (
	"testing"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wast"
)

func parseScript(t *testing.T, src string) *wast.Script {
	t.Helper()
	s, err := wast.ParseScript(src)
	if err != nil {
		t.Fatalf("ParseScript failed: %v", err)
	}
	return s
}

func TestResolveScript(t *testing.T) {
	s := parseScript(t, `
		(module $one (func $f (export "f") call $f))
		(module $two (func (export "g")))
		(assert_return (invoke $one "f"))
		(register "two" $two)`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultOk {
		t.Fatalf("script resolution failed: %s", sink.String())
	}

	// The first module's own references are settled too.
	mod := s.Commands[0].(*wast.ModuleCommand).Module.Text
	if v := mod.Funcs[0].Body[0].Imm.(wast.Var); v.Symbolic() {
		t.Errorf("module body not resolved: %+v", v)
	}

	ar := s.Commands[2].(*wast.AssertReturnCommand)
	if ar.Action.Module == nil || ar.Action.Module.Symbolic() || ar.Action.Module.Index != 0 {
		t.Errorf("invoke module ref = %+v, want ordinal 0", ar.Action.Module)
	}

	rc := s.Commands[3].(*wast.RegisterCommand)
	if rc.Module == nil || rc.Module.Symbolic() || rc.Module.Index != 1 {
		t.Errorf("register module ref = %+v, want ordinal 1", rc.Module)
	}
}

func TestResolveScriptForwardReference(t *testing.T) {
	s := parseScript(t, `
		(invoke $later "f")
		(module $later (func (export "f")))`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultError {
		t.Fatal("forward module reference resolved, want error")
	}
	if sink.Empty() {
		t.Fatal("error result with no diagnostics")
	}
}

func TestResolveScriptRebinding(t *testing.T) {
	s := parseScript(t, `
		(module $m (func (export "a")))
		(module $m (func (export "b")))
		(invoke $m "b")`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultOk {
		t.Fatalf("script resolution failed: %s", sink.String())
	}
	ac := s.Commands[2].(*wast.ActionCommand)
	if ac.Action.Module.Index != 1 {
		t.Errorf("rebinding resolved to ordinal %d, want 1 (latest)", ac.Action.Module.Index)
	}
}

func TestResolveScriptSkipsAssertedModules(t *testing.T) {
	// Modules under malformedness or validity assertions resolve as part
	// of the assertion check when the script runs, not here.
	s := parseScript(t, `
		(assert_invalid (module (func call $missing)) "unknown function")
		(assert_malformed (module quote "(module (func") "unexpected end")`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultOk {
		t.Fatalf("asserted modules were resolved eagerly: %s", sink.String())
	}
	if !sink.Empty() {
		t.Errorf("diagnostics appended for asserted modules: %s", sink.String())
	}
}

func TestResolveScriptTrapModuleForm(t *testing.T) {
	// The module form of assert_trap instantiates for real, so its names
	// must resolve.
	s := parseScript(t, `
		(assert_trap (module (func $boom call $nope) (start $boom)) "trap")`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultError {
		t.Fatal("unresolved trap module accepted, want error")
	}
}

func TestResolveScriptBinaryModulesBind(t *testing.T) {
	s := parseScript(t, `
		(module $bin binary "\00asm\01\00\00\00")
		(invoke $bin "f")`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultOk {
		t.Fatalf("script resolution failed: %s", sink.String())
	}
	ac := s.Commands[1].(*wast.ActionCommand)
	if ac.Action.Module.Index != 0 {
		t.Errorf("binary module ref = %+v, want ordinal 0", ac.Action.Module)
	}
}

func TestResolveScriptRegisterBounds(t *testing.T) {
	s := parseScript(t, `
		(module)
		(register "m" 3)`)

	var sink errors.Sink
	if res := Script(s, &sink); res != wasminterp.ResultError {
		t.Fatal("out-of-range module ordinal accepted, want error")
	}
}
