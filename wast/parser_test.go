package wast

import (
	"testing"
)

func TestParseEmptyModule(t *testing.T) {
	mod, err := ParseModule(`(module)`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if mod.Name != "" {
		t.Errorf("name = %q, want empty", mod.Name)
	}
	if len(mod.Types) != 0 || len(mod.Funcs) != 0 || len(mod.Imports) != 0 {
		t.Errorf("empty module has fields: %+v", mod)
	}

	mod, err = ParseModule(`(module $m)`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if mod.Name != "$m" {
		t.Errorf("name = %q, want $m", mod.Name)
	}
}

func TestParseModuleTrailingTokens(t *testing.T) {
	if _, err := ParseModule(`(module) (module)`); err == nil {
		t.Error("trailing tokens accepted, want error")
	}
}

func TestParseFuncSignature(t *testing.T) {
	mod, err := ParseModule(`(module
		(func $add (param $a i32) (param $b i32) (result i32)
			local.get $a
			local.get $b
			i32.add))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(mod.Funcs) != 1 {
		t.Fatalf("funcs = %d, want 1", len(mod.Funcs))
	}
	fn := mod.Funcs[0]
	if fn.Name != "$add" {
		t.Errorf("name = %q, want $add", fn.Name)
	}
	if len(mod.Types) != 1 {
		t.Fatalf("types = %d, want 1", len(mod.Types))
	}
	if fn.Type.Index != 0 {
		t.Errorf("type index = %d, want 0", fn.Type.Index)
	}
	ft := mod.Types[0].Type
	if len(ft.Params) != 2 || ft.Params[0] != ValTypeI32 || ft.Params[1] != ValTypeI32 {
		t.Errorf("params = %v, want [i32 i32]", ft.Params)
	}
	if len(ft.Results) != 1 || ft.Results[0] != ValTypeI32 {
		t.Errorf("results = %v, want [i32]", ft.Results)
	}
	if len(fn.ParamNames) != 2 || fn.ParamNames[0] != "$a" || fn.ParamNames[1] != "$b" {
		t.Errorf("param names = %v, want [$a $b]", fn.ParamNames)
	}
	checkOps(t, fn.Body, OpLocalGet, OpLocalGet, 0x6A, OpEnd)
}

func TestParseTypeCanonicalization(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantTypes int
	}{
		{
			"duplicate_inline_sigs",
			`(module (func (param i32)) (func (param i32)))`,
			1,
		},
		{
			"distinct_inline_sigs",
			`(module (func (param i32)) (func (param i64)))`,
			2,
		},
		{
			"typedef_after_use",
			`(module (func (param f32)) (type (func (param f32))))`,
			1,
		},
		{
			"inline_matches_typedef",
			`(module (type (func (result i32))) (func (result i32) i32.const 0))`,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := ParseModule(tt.src)
			if err != nil {
				t.Fatalf("ParseModule failed: %v", err)
			}
			if len(mod.Types) != tt.wantTypes {
				t.Errorf("types = %d, want %d", len(mod.Types), tt.wantTypes)
			}
		})
	}
}

func TestParseTypeUseReference(t *testing.T) {
	mod, err := ParseModule(`(module
		(type $sig (func (param i32)))
		(func (type $sig)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	fn := mod.Funcs[0]
	if fn.Type.Type == nil || fn.Type.Type.Name != "$sig" {
		t.Errorf("type use = %+v, want reference to $sig", fn.Type)
	}
	if mod.Types[0].Name != "$sig" {
		t.Errorf("type name = %q, want $sig", mod.Types[0].Name)
	}
}

func TestParseLocals(t *testing.T) {
	mod, err := ParseModule(`(module (func (local i32 i64) (local $x f64)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	locals := mod.Funcs[0].Locals
	if len(locals) != 3 {
		t.Fatalf("locals = %d, want 3", len(locals))
	}
	if locals[0].Type != ValTypeI32 || locals[1].Type != ValTypeI64 {
		t.Errorf("local types = %v %v, want i32 i64", locals[0].Type, locals[1].Type)
	}
	if locals[2].Name != "$x" || locals[2].Type != ValTypeF64 {
		t.Errorf("local 2 = %+v, want $x f64", locals[2])
	}
}

func TestParseInlineExport(t *testing.T) {
	mod, err := ParseModule(`(module
		(func (export "a") (export "b"))
		(memory (export "mem") 1))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(mod.Exports) != 3 {
		t.Fatalf("exports = %d, want 3", len(mod.Exports))
	}
	if mod.Exports[0].Field != "a" || mod.Exports[0].Kind != KindFunc || mod.Exports[0].Target.Index != 0 {
		t.Errorf("export 0 = %+v, want a func 0", mod.Exports[0])
	}
	if mod.Exports[1].Field != "b" || mod.Exports[1].Target.Index != 0 {
		t.Errorf("export 1 = %+v, want b func 0", mod.Exports[1])
	}
	if mod.Exports[2].Field != "mem" || mod.Exports[2].Kind != KindMemory {
		t.Errorf("export 2 = %+v, want mem memory", mod.Exports[2])
	}
}

func TestParseInlineImport(t *testing.T) {
	mod, err := ParseModule(`(module
		(func $log (import "console" "log") (param i32))
		(global $g (import "env" "g") (mut i32)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(mod.Funcs) != 0 || len(mod.Globals) != 0 {
		t.Fatalf("inline imports created definitions: %d funcs, %d globals", len(mod.Funcs), len(mod.Globals))
	}
	if len(mod.Imports) != 2 {
		t.Fatalf("imports = %d, want 2", len(mod.Imports))
	}
	imp := mod.Imports[0]
	if imp.Module != "console" || imp.Field != "log" || imp.Kind != KindFunc || imp.Name != "$log" {
		t.Errorf("import 0 = %+v", imp)
	}
	if len(imp.Func.Params) != 1 || imp.Func.Params[0] != ValTypeI32 {
		t.Errorf("import sig params = %v, want [i32]", imp.Func.Params)
	}
	if !mod.Imports[1].Global.Mutable || mod.Imports[1].Global.Type != ValTypeI32 {
		t.Errorf("import 1 global = %+v, want mut i32", mod.Imports[1].Global)
	}
}

func TestParseImportField(t *testing.T) {
	mod, err := ParseModule(`(module
		(import "a" "f" (func $f (param i32) (result i32)))
		(import "a" "t" (table 1 10 funcref))
		(import "a" "m" (memory 1 2 shared))
		(import "a" "g" (global f64)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(mod.Imports) != 4 {
		t.Fatalf("imports = %d, want 4", len(mod.Imports))
	}
	if mod.Imports[1].Table.Limits.Min != 1 || mod.Imports[1].Table.Limits.Max != 10 || !mod.Imports[1].Table.Limits.HasMax {
		t.Errorf("table limits = %+v, want 1..10", mod.Imports[1].Table.Limits)
	}
	if !mod.Imports[2].Mem.Shared {
		t.Errorf("memory import not shared: %+v", mod.Imports[2].Mem)
	}
	if mod.Imports[3].Global.Mutable {
		t.Errorf("global import mutable, want immutable")
	}
}

func TestParseImportAfterDefinition(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"import_field", `(module (func) (import "a" "b" (func)))`},
		{"inline_import", `(module (memory 1) (func (import "a" "b")))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseModule(tt.src); err == nil {
				t.Error("import after definition accepted, want error")
			}
		})
	}
}

func TestParseSignatureErrors(t *testing.T) {
	if _, err := ParseModule(`(module (func (result i32) (param i32) i32.const 0))`); err == nil {
		t.Error("param after result accepted, want error")
	}
}

func TestParseTable(t *testing.T) {
	mod, err := ParseModule(`(module (table $t 1 10 funcref))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	tbl := mod.Tables[0]
	if tbl.Name != "$t" || tbl.Type.Elem != ValTypeFuncref {
		t.Errorf("table = %+v", tbl)
	}
	if tbl.Type.Limits.Min != 1 || tbl.Type.Limits.Max != 10 || !tbl.Type.Limits.HasMax {
		t.Errorf("limits = %+v, want 1..10", tbl.Type.Limits)
	}
}

func TestParseTableInlineElem(t *testing.T) {
	mod, err := ParseModule(`(module
		(func $a)
		(func $b)
		(table funcref (elem $a $b)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	tbl := mod.Tables[0]
	if tbl.Type.Limits.Min != 2 || tbl.Type.Limits.Max != 2 || !tbl.Type.Limits.HasMax {
		t.Errorf("limits = %+v, want fixed at 2", tbl.Type.Limits)
	}
	if len(mod.Elems) != 1 {
		t.Fatalf("elems = %d, want 1", len(mod.Elems))
	}
	elem := mod.Elems[0]
	if elem.Mode != ElemModeActive {
		t.Errorf("mode = %v, want active", elem.Mode)
	}
	if len(elem.Items) != 2 || elem.Items[0].Func.Name != "$a" || elem.Items[1].Func.Name != "$b" {
		t.Errorf("items = %+v, want $a $b", elem.Items)
	}
	checkOps(t, elem.Offset, OpI32Const, OpEnd)
}

func TestParseMemory(t *testing.T) {
	mod, err := ParseModule(`(module (memory 1) (memory $m 1 2 shared))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(mod.Memories) != 2 {
		t.Fatalf("memories = %d, want 2", len(mod.Memories))
	}
	if mod.Memories[0].Limits.HasMax {
		t.Errorf("memory 0 has max, want open limit")
	}
	m := mod.Memories[1]
	if m.Name != "$m" || !m.Limits.Shared || m.Limits.Max != 2 {
		t.Errorf("memory 1 = %+v, want $m shared 1..2", m)
	}
}

func TestParseMemoryInlineData(t *testing.T) {
	mod, err := ParseModule(`(module (memory (data "hello " "world")))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	m := mod.Memories[0]
	if m.Limits.Min != 1 || m.Limits.Max != 1 || !m.Limits.HasMax {
		t.Errorf("limits = %+v, want fixed at 1 page", m.Limits)
	}
	if len(mod.Data) != 1 {
		t.Fatalf("data segments = %d, want 1", len(mod.Data))
	}
	if string(mod.Data[0].Init) != "hello world" {
		t.Errorf("init = %q, want %q", mod.Data[0].Init, "hello world")
	}
}

func TestParseSharedWithoutMax(t *testing.T) {
	if _, err := ParseModule(`(module (memory 1 shared))`); err == nil {
		t.Error("shared memory without max accepted, want error")
	}
}

func TestParseGlobal(t *testing.T) {
	mod, err := ParseModule(`(module
		(global $g (mut i32) (i32.const 7))
		(global f64 (f64.const 0)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	g := mod.Globals[0]
	if g.Name != "$g" || !g.Type.Mutable || g.Type.Type != ValTypeI32 {
		t.Errorf("global 0 = %+v, want $g mut i32", g)
	}
	checkOps(t, g.Init, OpI32Const, OpEnd)
	if v, ok := g.Init[0].Imm.(int32); !ok || v != 7 {
		t.Errorf("init imm = %v, want int32(7)", g.Init[0].Imm)
	}
	if mod.Globals[1].Type.Mutable {
		t.Errorf("global 1 mutable, want immutable")
	}
}

func TestParseExportField(t *testing.T) {
	mod, err := ParseModule(`(module (func $main) (export "main" (func $main)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	e := mod.Exports[0]
	if e.Field != "main" || e.Kind != KindFunc || e.Target.Name != "$main" {
		t.Errorf("export = %+v", e)
	}
}

func TestParseStart(t *testing.T) {
	mod, err := ParseModule(`(module (func $main) (start $main))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if mod.Start == nil || mod.Start.Name != "$main" {
		t.Errorf("start = %+v, want $main", mod.Start)
	}

	if _, err := ParseModule(`(module (func) (start 0) (start 0))`); err == nil {
		t.Error("duplicate start accepted, want error")
	}
}

func TestParseElemForms(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		mode      ElemMode
		items     int
		exprItems bool
	}{
		{
			"legacy_active",
			`(module (func $f) (elem (i32.const 0) $f $f))`,
			ElemModeActive, 2, false,
		},
		{
			"active_with_table",
			`(module (func) (table 1 funcref) (elem (table 0) (offset (i32.const 0)) func 0))`,
			ElemModeActive, 1, false,
		},
		{
			"passive",
			`(module (func $f) (elem func $f))`,
			ElemModePassive, 1, false,
		},
		{
			"declarative",
			`(module (func) (elem declare func 0))`,
			ElemModeDeclarative, 1, false,
		},
		{
			"expr_items",
			`(module (func) (elem (i32.const 0) funcref (item (ref.func 0)) (ref.null func)))`,
			ElemModeActive, 2, true,
		},
		{
			"named_passive",
			`(module (func $f) (elem $seg func $f))`,
			ElemModePassive, 1, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := ParseModule(tt.src)
			if err != nil {
				t.Fatalf("ParseModule failed: %v", err)
			}
			if len(mod.Elems) != 1 {
				t.Fatalf("elems = %d, want 1", len(mod.Elems))
			}
			elem := mod.Elems[0]
			if elem.Mode != tt.mode {
				t.Errorf("mode = %v, want %v", elem.Mode, tt.mode)
			}
			if len(elem.Items) != tt.items {
				t.Errorf("items = %d, want %d", len(elem.Items), tt.items)
			}
			if tt.exprItems {
				for i, item := range elem.Items {
					if item.Expr == nil {
						t.Errorf("item %d has no expression", i)
					}
				}
			}
			if elem.Mode == ElemModeActive && len(elem.Offset) == 0 {
				t.Errorf("active segment has no offset")
			}
		})
	}
}

func TestParseElemSegmentName(t *testing.T) {
	mod, err := ParseModule(`(module (func $f) (elem $seg func $f))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if mod.Elems[0].Name != "$seg" {
		t.Errorf("segment name = %q, want $seg", mod.Elems[0].Name)
	}
}

func TestParseDataForms(t *testing.T) {
	mod, err := ParseModule(`(module
		(memory 1)
		(data (i32.const 8) "ab" "cd")
		(data $d "passive")
		(data (memory 0) (offset (i32.const 0)) "z"))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if len(mod.Data) != 3 {
		t.Fatalf("data segments = %d, want 3", len(mod.Data))
	}
	if mod.Data[0].Passive || string(mod.Data[0].Init) != "abcd" {
		t.Errorf("segment 0 = %+v, want active %q", mod.Data[0], "abcd")
	}
	checkOps(t, mod.Data[0].Offset, OpI32Const, OpEnd)
	if !mod.Data[1].Passive || mod.Data[1].Name != "$d" || string(mod.Data[1].Init) != "passive" {
		t.Errorf("segment 1 = %+v, want passive $d", mod.Data[1])
	}
	if mod.Data[2].Passive || string(mod.Data[2].Init) != "z" {
		t.Errorf("segment 2 = %+v, want active %q", mod.Data[2], "z")
	}
}

func TestParseFoldedFlattening(t *testing.T) {
	flat, err := ParseModule(`(module (func (result i32)
		i32.const 1
		i32.const 2
		i32.add))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	folded, err := ParseModule(`(module (func (result i32)
		(i32.add (i32.const 1) (i32.const 2))))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	a, b := flat.Funcs[0].Body, folded.Funcs[0].Body
	if len(a) != len(b) {
		t.Fatalf("body lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Opcode != b[i].Opcode {
			t.Errorf("opcode %d = %#x vs %#x", i, a[i].Opcode, b[i].Opcode)
		}
	}
	checkOps(t, a, OpI32Const, OpI32Const, 0x6A, OpEnd)
}

func TestParseBlockForms(t *testing.T) {
	mod, err := ParseModule(`(module (func
		block $out (result i32)
			i32.const 1
		end $out
		drop
		(loop $l (br $l))))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	body := mod.Funcs[0].Body
	checkOps(t, body, OpBlock, OpI32Const, OpEnd, OpDrop, OpLoop, OpBr, OpEnd, OpEnd)
	bt, ok := body[0].Imm.(BlockType)
	if !ok {
		t.Fatalf("block imm = %T, want BlockType", body[0].Imm)
	}
	if bt.Label != "$out" || len(bt.Results) != 1 || bt.Index != -1 {
		t.Errorf("block type = %+v, want $out [i32] shorthand", bt)
	}
	if v, ok := body[5].Imm.(Var); !ok || v.Name != "$l" {
		t.Errorf("br imm = %+v, want $l", body[5].Imm)
	}
}

func TestParseIfForms(t *testing.T) {
	mod, err := ParseModule(`(module (func (param i32) (result i32)
		(if (result i32) (local.get 0)
			(then (i32.const 1))
			(else (i32.const 2)))))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	checkOps(t, mod.Funcs[0].Body,
		OpLocalGet, OpIf, OpI32Const, OpElse, OpI32Const, OpEnd, OpEnd)

	mod, err = ParseModule(`(module (func (param i32)
		local.get 0
		if
			nop
		end))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	checkOps(t, mod.Funcs[0].Body, OpLocalGet, OpIf, OpNop, OpEnd, OpEnd)
}

func TestParseFoldedIfRequiresThen(t *testing.T) {
	if _, err := ParseModule(`(module (func (if (i32.const 1) (nop))))`); err == nil {
		t.Error("folded if without then accepted, want error")
	}
}

func TestParseMismatchedLabel(t *testing.T) {
	if _, err := ParseModule(`(module (func block $a end $b))`); err == nil {
		t.Error("mismatched trailing label accepted, want error")
	}
}

func TestParseMultiValueBlockType(t *testing.T) {
	mod, err := ParseModule(`(module (func
		(block (result i32 i32)
			i32.const 1
			i32.const 2)
		drop
		drop))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	bt := mod.Funcs[0].Body[0].Imm.(BlockType)
	if bt.Index < 0 {
		t.Errorf("multi-value block type index = %d, want canonicalized", bt.Index)
	}
	if len(mod.Types) != 2 {
		t.Errorf("types = %d, want 2 (func sig and block sig)", len(mod.Types))
	}
}

func TestParseBrTable(t *testing.T) {
	mod, err := ParseModule(`(module (func
		block $l
			i32.const 0
			br_table 0 1 $l 0
		end))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	body := mod.Funcs[0].Body
	imm, ok := body[2].Imm.(BrTableImm)
	if !ok {
		t.Fatalf("br_table imm = %T, want BrTableImm", body[2].Imm)
	}
	if len(imm.Targets) != 3 {
		t.Fatalf("targets = %d, want 3", len(imm.Targets))
	}
	if imm.Targets[2].Name != "$l" {
		t.Errorf("target 2 = %+v, want $l", imm.Targets[2])
	}
	if imm.Default.Name != "" || imm.Default.Index != 0 {
		t.Errorf("default = %+v, want index 0", imm.Default)
	}
}

func TestParseCallIndirect(t *testing.T) {
	mod, err := ParseModule(`(module
		(type $sig (func (param i32) (result i32)))
		(table 1 funcref)
		(func (param i32) (result i32)
			local.get 0
			call_indirect (type $sig)))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	imm := mod.Funcs[0].Body[1].Imm.(CallIndirectImm)
	if imm.Type.Type == nil || imm.Type.Type.Name != "$sig" {
		t.Errorf("call_indirect type = %+v, want $sig reference", imm.Type)
	}
	if imm.Table.Name != "" || imm.Table.Index != 0 {
		t.Errorf("table = %+v, want index 0", imm.Table)
	}
}

func TestParseCallIndirectInlineSig(t *testing.T) {
	mod, err := ParseModule(`(module
		(table $t 1 funcref)
		(func
			i32.const 0
			call_indirect $t (param i32)
			unreachable))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	imm := mod.Funcs[0].Body[1].Imm.(CallIndirectImm)
	if imm.Table.Name != "$t" {
		t.Errorf("table = %+v, want $t", imm.Table)
	}
	if imm.Type.Type != nil {
		t.Fatalf("inline sig kept a type reference: %+v", imm.Type)
	}
	// The inline signature lands in the type table during canonicalization.
	found := false
	for _, td := range mod.Types {
		if len(td.Type.Params) == 1 && td.Type.Params[0] == ValTypeI32 && len(td.Type.Results) == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("inline call_indirect signature missing from types: %+v", mod.Types)
	}
}

func TestParseMemarg(t *testing.T) {
	mod, err := ParseModule(`(module (memory 1) (func
		i32.const 0
		i32.load offset=16 align=2
		drop
		i32.const 0
		i64.load
		drop))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	body := mod.Funcs[0].Body
	ma := body[1].Imm.(Memarg)
	if ma.Offset != 16 || ma.Align != 1 {
		t.Errorf("memarg = %+v, want offset 16 align log2(2)", ma)
	}
	ma = body[4].Imm.(Memarg)
	if ma.Offset != 0 || ma.Align != 3 {
		t.Errorf("i64.load memarg = %+v, want natural align 3", ma)
	}
}

func TestParseMemargBadAlign(t *testing.T) {
	if _, err := ParseModule(`(module (memory 1) (func i32.const 0 i32.load align=3 drop))`); err == nil {
		t.Error("non-power-of-two align accepted, want error")
	}
}

func TestParseSelect(t *testing.T) {
	mod, err := ParseModule(`(module (func (param i32)
		i32.const 1
		i32.const 2
		local.get 0
		select
		drop
		ref.null func
		ref.null func
		local.get 0
		select (result funcref)
		drop))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	body := mod.Funcs[0].Body
	if body[3].Opcode != OpSelect || body[3].Imm != nil {
		t.Errorf("bare select = %+v", body[3])
	}
	if body[8].Opcode != OpSelectTyped {
		t.Fatalf("typed select opcode = %#x, want %#x", body[8].Opcode, OpSelectTyped)
	}
	types := body[8].Imm.([]ValType)
	if len(types) != 1 || types[0] != ValTypeFuncref {
		t.Errorf("select types = %v, want [funcref]", types)
	}
}

func TestParseMiscOps(t *testing.T) {
	mod, err := ParseModule(`(module
		(memory 1)
		(table 2 funcref)
		(table 2 funcref)
		(elem $e func)
		(data $d "x")
		(func
			i32.const 0 i32.const 0 i32.const 0
			memory.init $d
			data.drop $d
			i32.const 0 i32.const 0 i32.const 0
			table.init 1 $e
			i32.const 0 i32.const 0 i32.const 0
			table.copy 0 1
			elem.drop $e))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	body := mod.Funcs[0].Body

	var miscs []MiscImm
	for _, in := range body {
		if in.Opcode == OpPrefixMisc {
			miscs = append(miscs, in.Imm.(MiscImm))
		}
	}
	if len(miscs) != 5 {
		t.Fatalf("misc instructions = %d, want 5", len(miscs))
	}
	if miscs[0].Subop != MiscOpMemoryInit || miscs[0].X.Name != "$d" {
		t.Errorf("memory.init = %+v", miscs[0])
	}
	if miscs[1].Subop != MiscOpDataDrop || miscs[1].X.Name != "$d" {
		t.Errorf("data.drop = %+v", miscs[1])
	}
	// table.init stores the element index first, matching encoding order.
	if miscs[2].Subop != MiscOpTableInit || miscs[2].X.Name != "$e" || miscs[2].Y.Index != 1 {
		t.Errorf("table.init = %+v, want elem $e table 1", miscs[2])
	}
	if miscs[3].Subop != MiscOpTableCopy || miscs[3].X.Index != 0 || miscs[3].Y.Index != 1 {
		t.Errorf("table.copy = %+v, want dst 0 src 1", miscs[3])
	}
	if miscs[4].Subop != MiscOpElemDrop || miscs[4].X.Name != "$e" {
		t.Errorf("elem.drop = %+v", miscs[4])
	}
}

func TestParseTableInitSingleIndex(t *testing.T) {
	mod, err := ParseModule(`(module
		(table 1 funcref)
		(elem $e func)
		(func i32.const 0 i32.const 0 i32.const 0 table.init $e))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	imm := mod.Funcs[0].Body[3].Imm.(MiscImm)
	if imm.X.Name != "$e" {
		t.Errorf("elem = %+v, want $e", imm.X)
	}
	if imm.Y.Name != "" || imm.Y.Index != 0 {
		t.Errorf("table = %+v, want index 0", imm.Y)
	}
}

func TestParseConstImmediates(t *testing.T) {
	mod, err := ParseModule(`(module (func
		i32.const -2147483648
		i32.const 4294967295
		i64.const 0x8000_0000_0000_0000
		f32.const -0.5
		f64.const 1.5
		unreachable))`)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	body := mod.Funcs[0].Body
	if v := body[0].Imm.(int32); v != -2147483648 {
		t.Errorf("i32 imm = %d, want -2147483648", v)
	}
	if v := body[1].Imm.(int32); v != -1 {
		t.Errorf("i32 imm bits = %d, want -1 (0xFFFFFFFF)", v)
	}
	if v := body[2].Imm.(int64); uint64(v) != 0x8000000000000000 {
		t.Errorf("i64 imm = %#x, want 0x8000000000000000", uint64(v))
	}
	if v := body[3].Imm.(F32Imm); v != F32Imm(0xBF000000) {
		t.Errorf("f32 imm = %#x, want 0xBF000000", uint32(v))
	}
	if v := body[4].Imm.(F64Imm); v != F64Imm(0x3FF8000000000000) {
		t.Errorf("f64 imm = %#x, want 0x3FF8000000000000", uint64(v))
	}
}

func TestParseUnknownInstruction(t *testing.T) {
	if _, err := ParseModule(`(module (func i32.bogus))`); err == nil {
		t.Error("unknown instruction accepted, want error")
	}
}

func TestParseUnknownField(t *testing.T) {
	if _, err := ParseModule(`(module (widget))`); err == nil {
		t.Error("unknown module field accepted, want error")
	}
}

func TestParseIntLiteral(t *testing.T) {
	tests := []struct {
		in   string
		bits uint
		want uint64
	}{
		{"0", 32, 0},
		{"42", 32, 42},
		{"-1", 32, 0xFFFFFFFF},
		{"-2147483648", 32, 0x80000000},
		{"2147483648", 32, 0x80000000},
		{"4294967295", 32, 0xFFFFFFFF},
		{"0x7fffffff", 32, 0x7FFFFFFF},
		{"-0x80000000", 32, 0x80000000},
		{"010", 32, 10},
		{"1_000_000", 32, 1000000},
		{"-9223372036854775808", 64, 0x8000000000000000},
		{"18446744073709551615", 64, 0xFFFFFFFFFFFFFFFF},
		{"0xFF", 8, 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIntLiteral(tt.in, tt.bits)
			if err != nil {
				t.Fatalf("parseIntLiteral(%q, %d) failed: %v", tt.in, tt.bits, err)
			}
			if got != tt.want {
				t.Errorf("parseIntLiteral(%q, %d) = %#x, want %#x", tt.in, tt.bits, got, tt.want)
			}
		})
	}
}

func TestParseIntLiteralErrors(t *testing.T) {
	tests := []struct {
		in   string
		bits uint
	}{
		{"4294967296", 32},
		{"-2147483649", 32},
		{"0x100000000", 32},
		{"", 32},
		{"0x", 32},
		{"abc", 32},
	}
	for _, tt := range tests {
		if _, err := parseIntLiteral(tt.in, tt.bits); err == nil {
			t.Errorf("parseIntLiteral(%q, %d) succeeded, want error", tt.in, tt.bits)
		}
	}
}

func TestParseF32Literal(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"0", 0x00000000},
		{"-0", 0x80000000},
		{"1.5", 0x3FC00000},
		{"-0.5", 0xBF000000},
		{"inf", 0x7F800000},
		{"-inf", 0xFF800000},
		{"nan", 0x7FC00000},
		{"-nan", 0xFFC00000},
		{"nan:0x200000", 0x7FA00000},
		{"-nan:0x7fffff", 0xFFFFFFFF},
		{"0x1", 0x3F800000},
		{"0x1p-1", 0x3F000000},
		{"0x1.8p0", 0x3FC00000},
		{"1_000.5", 0x447A2000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseF32Literal(tt.in)
			if err != nil {
				t.Fatalf("parseF32Literal(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseF32Literal(%q) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseF64Literal(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0", 0x0000000000000000},
		{"1.5", 0x3FF8000000000000},
		{"inf", 0x7FF0000000000000},
		{"-nan", 0xFFF8000000000000},
		{"nan:0x4000000000000", 0x7FF4000000000000},
		{"0x1p10", 0x4090000000000000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseF64Literal(tt.in)
			if err != nil {
				t.Fatalf("parseF64Literal(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseF64Literal(%q) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFloatLiteralErrors(t *testing.T) {
	for _, in := range []string{"nan:0x0", "nan:0x800000", "nan:0xzz", "1.2.3"} {
		if _, err := parseF32Literal(in); err == nil {
			t.Errorf("parseF32Literal(%q) succeeded, want error", in)
		}
	}
	if _, err := parseF64Literal("nan:0x10000000000000"); err == nil {
		t.Error("f64 nan payload above 52 bits accepted, want error")
	}
}

// checkOps asserts the opcode sequence of an instruction list.
func checkOps(t *testing.T, body []Instr, want ...byte) {
	t.Helper()
	if len(body) != len(want) {
		t.Fatalf("body length = %d, want %d (%v)", len(body), len(want), opcodeList(body))
	}
	for i := range want {
		if body[i].Opcode != want[i] {
			t.Errorf("opcode %d = %#x, want %#x", i, body[i].Opcode, want[i])
		}
	}
}

func opcodeList(body []Instr) []byte {
	ops := make([]byte, len(body))
	for i := range body {
		ops[i] = body[i].Opcode
	}
	return ops
}
