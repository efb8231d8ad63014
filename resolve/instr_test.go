package resolve

import (
	"testing"

	"github.com/wippyai/wasm-interp/wast"
)

func TestResolveLabelDepths(t *testing.T) {
	mod := mustResolve(t, `(module (func
		block $outer
			block $inner
				br $inner
				br $outer
				br 2
			end
		end))`)

	body := mod.Funcs[0].Body
	// Layout: block, block, br, br, br, end, end, end.
	if v := varImm(t, body[2]); v.Symbolic() || v.Index != 0 {
		t.Errorf("br $inner = %+v, want depth 0", v)
	}
	if v := varImm(t, body[3]); v.Symbolic() || v.Index != 1 {
		t.Errorf("br $outer = %+v, want depth 1", v)
	}
	if v := varImm(t, body[4]); v.Index != 2 {
		t.Errorf("br 2 = %+v, want the function frame", v)
	}
}

func TestResolveLabelShadowing(t *testing.T) {
	mod := mustResolve(t, `(module (func
		block $l
			block $l
				br $l
			end
		end))`)
	if v := varImm(t, mod.Funcs[0].Body[2]); v.Index != 0 {
		t.Errorf("shadowed br $l = %+v, want innermost depth 0", v)
	}
}

func TestResolveLabelAfterBlockCloses(t *testing.T) {
	// The first block's label is out of scope once it ends.
	resolveErr(t, `(module (func
		block $gone
		end
		br $gone))`)
}

func TestResolveBranchToFunctionFrame(t *testing.T) {
	mustResolve(t, `(module (func br 0))`)
	resolveErr(t, `(module (func br 1))`)
}

func TestResolveBranchDepthOutOfRange(t *testing.T) {
	resolveErr(t, `(module (func block br 2 end))`)
}

func TestResolveLoopAndIfLabels(t *testing.T) {
	mod := mustResolve(t, `(module (func (param i32)
		loop $continue
			local.get 0
			if $then
				br $continue
			end
		end))`)
	body := mod.Funcs[0].Body
	// Layout: loop, local.get, if, br, end, end, end.
	if v := varImm(t, body[3]); v.Index != 1 {
		t.Errorf("br $continue = %+v, want depth 1 (through the if)", v)
	}
}

func TestResolveBrTableTargets(t *testing.T) {
	mod := mustResolve(t, `(module (func
		block $a
			block $b
				i32.const 0
				br_table $b $a 0
			end
		end))`)
	imm := mod.Funcs[0].Body[3].Imm.(wast.BrTableImm)
	if imm.Targets[0].Index != 0 || imm.Targets[0].Symbolic() {
		t.Errorf("target $b = %+v, want depth 0", imm.Targets[0])
	}
	if imm.Targets[1].Index != 1 {
		t.Errorf("target $a = %+v, want depth 1", imm.Targets[1])
	}
	if imm.Default.Index != 0 {
		t.Errorf("default = %+v, want depth 0", imm.Default)
	}
}

func TestResolveBlockTypeReference(t *testing.T) {
	mod := mustResolve(t, `(module
		(type $pair (func (result i32 i32)))
		(func
			block (type $pair)
				i32.const 1
				i32.const 2
			end
			drop
			drop))`)
	bt := mod.Funcs[0].Body[0].Imm.(wast.BlockType)
	if bt.Type == nil || bt.Type.Symbolic() {
		t.Fatalf("block type reference not resolved: %+v", bt)
	}
	if bt.Index != 0 {
		t.Errorf("block type index = %d, want 0", bt.Index)
	}
}

func TestResolveBlockTypeMismatch(t *testing.T) {
	resolveErr(t, `(module
		(type $pair (func (result i32 i32)))
		(func
			block (type $pair) (result i64 i64)
				i64.const 1
				i64.const 2
			end
			drop
			drop))`)
}

func TestResolveCallIndirect(t *testing.T) {
	mod := mustResolve(t, `(module
		(type $sig (func (result i32)))
		(table $t 4 funcref)
		(func (result i32)
			i32.const 0
			call_indirect $t (type $sig)))`)
	imm := mod.Funcs[0].Body[1].Imm.(wast.CallIndirectImm)
	if imm.Table.Symbolic() || imm.Table.Index != 0 {
		t.Errorf("table = %+v, want index 0", imm.Table)
	}
	if imm.Type.Type.Symbolic() || imm.Type.Index != 0 {
		t.Errorf("type use = %+v, want index 0", imm.Type)
	}
}

func TestResolveMemoryInstrIndices(t *testing.T) {
	mod := mustResolve(t, `(module
		(memory $m 1)
		(data $d "init")
		(func
			memory.size
			drop
			i32.const 0 i32.const 0 i32.const 0
			memory.init $d
			data.drop $d))`)
	body := mod.Funcs[0].Body
	if v := varImm(t, body[0]); v.Index != 0 {
		t.Errorf("memory.size = %+v, want memory 0", v)
	}
	init := body[5].Imm.(wast.MiscImm)
	if init.X.Symbolic() || init.X.Index != 0 {
		t.Errorf("memory.init = %+v, want segment 0", init.X)
	}
}

func TestResolveTableOps(t *testing.T) {
	mod := mustResolve(t, `(module
		(table $a 1 funcref)
		(table $b 1 funcref)
		(func (param funcref)
			i32.const 0
			table.get $b
			drop
			i32.const 0
			local.get 0
			table.set $a))`)
	body := mod.Funcs[0].Body
	if v := varImm(t, body[1]); v.Index != 1 {
		t.Errorf("table.get $b = %+v, want index 1", v)
	}
	if v := varImm(t, body[5]); v.Index != 0 {
		t.Errorf("table.set $a = %+v, want index 0", v)
	}
}
