package resolve

import (
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wast"
)

// constExpr resolves a constant expression such as a global initializer or
// a segment offset. These carry no locals and no branch targets.
func (r *resolver) constExpr(instrs []wast.Instr) {
	r.instrs(instrs, newSpace("local"), false)
}

// instrs walks a flattened instruction sequence, maintaining the label
// stack as structured markers open and close. When frame is set the
// sequence is a function body, whose outermost depth is itself a branch
// target.
func (r *resolver) instrs(instrs []wast.Instr, locals space, frame bool) {
	labels := make([]string, 0, 8)
	if frame {
		labels = append(labels, "")
	}

	for i := range instrs {
		in := &instrs[i]
		switch in.Opcode {
		case wast.OpBlock, wast.OpLoop, wast.OpIf:
			bt := in.Imm.(wast.BlockType)
			r.blockType(&bt)
			in.Imm = bt
			labels = append(labels, bt.Label)

		case wast.OpEnd:
			if len(labels) > 0 {
				labels = labels[:len(labels)-1]
			}

		case wast.OpBr, wast.OpBrIf:
			v := in.Imm.(wast.Var)
			r.label(&v, labels)
			in.Imm = v

		case wast.OpBrTable:
			imm := in.Imm.(wast.BrTableImm)
			for j := range imm.Targets {
				r.label(&imm.Targets[j], labels)
			}
			r.label(&imm.Default, labels)
			in.Imm = imm

		case wast.OpCall, wast.OpReturnCall, wast.OpRefFunc:
			v := in.Imm.(wast.Var)
			r.resolveVar(&v, r.scope.funcs)
			in.Imm = v

		case wast.OpLocalGet, wast.OpLocalSet, wast.OpLocalTee:
			v := in.Imm.(wast.Var)
			r.resolveVar(&v, locals)
			in.Imm = v

		case wast.OpGlobalGet, wast.OpGlobalSet:
			v := in.Imm.(wast.Var)
			r.resolveVar(&v, r.scope.globals)
			in.Imm = v

		case wast.OpTableGet, wast.OpTableSet:
			v := in.Imm.(wast.Var)
			r.resolveVar(&v, r.scope.tables)
			in.Imm = v

		case wast.OpMemorySize, wast.OpMemoryGrow:
			v := in.Imm.(wast.Var)
			r.resolveVar(&v, r.scope.mems)
			in.Imm = v

		case wast.OpCallIndirect, wast.OpReturnCallIndirect:
			imm := in.Imm.(wast.CallIndirectImm)
			r.resolveVar(&imm.Table, r.scope.tables)
			r.typeUse(&imm.Type)
			in.Imm = imm

		case wast.OpPrefixMisc:
			imm := in.Imm.(wast.MiscImm)
			r.miscImm(&imm)
			in.Imm = imm
		}
	}
}

// blockType settles a (type $t) block signature reference; inline and
// shorthand forms were canonicalized at parse.
func (r *resolver) blockType(bt *wast.BlockType) {
	if bt.Type == nil {
		return
	}
	if !r.resolveVar(bt.Type, r.scope.types) {
		return
	}
	idx := bt.Type.Index
	if len(bt.Params) > 0 || len(bt.Results) > 0 {
		want := r.mod.Types[idx].Type
		got := wast.FuncType{Params: bt.Params, Results: bt.Results}
		if !want.Equal(got) {
			r.report(errors.New(errors.PhaseResolve, errors.KindSignatureMismatch).
				Line(bt.Type.Line).
				Detail("inline signature does not match type %d", idx).
				Build())
		}
	}
	bt.Index = int32(idx)
}

// label resolves one branch target. Named targets search the stack from
// the innermost label outward, so shadowed names bind to the nearest
// enclosing block; the stored index is the relative depth from the top.
func (r *resolver) label(v *wast.Var, labels []string) {
	if v.Symbolic() {
		for d := len(labels) - 1; d >= 0; d-- {
			if labels[d] == v.Name {
				v.Index = uint32(len(labels) - 1 - d)
				v.Name = ""
				return
			}
		}
		r.report(errors.Unresolved(errors.PhaseResolve, v.Name, v.Line))
		return
	}
	if v.Index >= uint32(len(labels)) {
		r.report(errors.New(errors.PhaseResolve, errors.KindOutOfBounds).
			Line(v.Line).
			Value(v.Index).
			Detail("branch depth %d exceeds block nesting %d", v.Index, len(labels)).
			Build())
	}
}

// miscImm resolves the index operands of a 0xFC-prefixed instruction
// against the spaces its sub-opcode addresses.
func (r *resolver) miscImm(imm *wast.MiscImm) {
	switch imm.Subop {
	case wast.MiscOpMemoryInit, wast.MiscOpDataDrop:
		r.resolveVar(&imm.X, r.scope.datas)
	case wast.MiscOpElemDrop:
		r.resolveVar(&imm.X, r.scope.elems)
	case wast.MiscOpTableInit:
		r.resolveVar(&imm.X, r.scope.elems)
		r.resolveVar(&imm.Y, r.scope.tables)
	case wast.MiscOpTableCopy:
		r.resolveVar(&imm.X, r.scope.tables)
		r.resolveVar(&imm.Y, r.scope.tables)
	case wast.MiscOpTableGrow, wast.MiscOpTableSize, wast.MiscOpTableFill:
		r.resolveVar(&imm.X, r.scope.tables)
	}
}
