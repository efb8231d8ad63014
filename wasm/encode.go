package wasm

import (
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wast"
)

// EncodeModule serializes a resolved module to the binary format. Sections
// are emitted in canonical order and only when non-empty; DataCount is
// placed before Code when passive data segments exist. Every symbolic
// reference must already be rewritten to its numeric index, a leftover
// name is reported as an encode error.
func EncodeModule(m *wast.Module) ([]byte, error) {
	e := &encoder{mod: m}
	buf := &Buffer{}
	buf.WriteBytes(Header)

	if len(m.Types) > 0 {
		e.typeSection(buf)
	}
	if len(m.Imports) > 0 {
		e.importSection(buf)
	}
	if len(m.Funcs) > 0 {
		e.funcSection(buf)
	}
	if len(m.Tables) > 0 {
		e.tableSection(buf)
	}
	if len(m.Memories) > 0 {
		e.memorySection(buf)
	}
	if len(m.Globals) > 0 {
		e.globalSection(buf)
	}
	if len(m.Exports) > 0 {
		e.exportSection(buf)
	}
	if m.Start != nil {
		e.startSection(buf)
	}
	if len(m.Elems) > 0 {
		e.elemSection(buf)
	}
	if hasPassiveData(m) && len(m.Funcs) > 0 {
		e.dataCountSection(buf)
	}
	if len(m.Funcs) > 0 {
		e.codeSection(buf)
	}
	if len(m.Data) > 0 {
		e.dataSection(buf)
	}

	if e.err != nil {
		return nil, e.err
	}
	return buf.Bytes, nil
}

func hasPassiveData(m *wast.Module) bool {
	for _, d := range m.Data {
		if d.Passive {
			return true
		}
	}
	return false
}

type encoder struct {
	mod *wast.Module
	err *errors.Error
}

// fail keeps the first error; encoding continues but the output is
// discarded by EncodeModule.
func (e *encoder) fail(err *errors.Error) {
	if e.err == nil {
		e.err = err
	}
}

// varIdx returns the numeric index of a reference, reporting any name
// that resolution left behind.
func (e *encoder) varIdx(v wast.Var) uint32 {
	if v.Symbolic() {
		e.fail(errors.Unresolved(errors.PhaseEncode, v.Name, v.Line))
		return 0
	}
	return v.Index
}

func (e *encoder) typeIdx(tu wast.TypeUse) uint32 {
	if tu.Type != nil && tu.Type.Symbolic() {
		e.fail(errors.Unresolved(errors.PhaseEncode, tu.Type.Name, tu.Type.Line))
		return 0
	}
	return tu.Index
}

func writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.AppendByte(id)
	buf.WriteU32(uint32(len(content.Bytes)))
	buf.WriteBytes(content.Bytes)
}

func (e *encoder) typeSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Types)))
	for _, td := range e.mod.Types {
		sec.AppendByte(FuncTypeByte)
		sec.WriteU32(uint32(len(td.Type.Params)))
		for _, p := range td.Type.Params {
			sec.AppendByte(byte(p))
		}
		sec.WriteU32(uint32(len(td.Type.Results)))
		for _, r := range td.Type.Results {
			sec.AppendByte(byte(r))
		}
	}
	writeSection(buf, SectionType, sec)
}

func (e *encoder) importSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Imports)))
	for _, imp := range e.mod.Imports {
		sec.WriteString(imp.Module)
		sec.WriteString(imp.Field)
		sec.AppendByte(imp.Kind)
		switch imp.Kind {
		case wast.KindFunc:
			sec.WriteU32(e.typeIdx(imp.Func))
		case wast.KindTable:
			sec.AppendByte(byte(imp.Table.Elem))
			sec.WriteLimits(imp.Table.Limits)
		case wast.KindMemory:
			sec.WriteLimits(imp.Mem)
		case wast.KindGlobal:
			sec.AppendByte(byte(imp.Global.Type))
			if imp.Global.Mutable {
				sec.AppendByte(0x01)
			} else {
				sec.AppendByte(0x00)
			}
		}
	}
	writeSection(buf, SectionImport, sec)
}

func (e *encoder) funcSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Funcs)))
	for _, f := range e.mod.Funcs {
		sec.WriteU32(e.typeIdx(f.Type))
	}
	writeSection(buf, SectionFunction, sec)
}

func (e *encoder) tableSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Tables)))
	for _, t := range e.mod.Tables {
		sec.AppendByte(byte(t.Type.Elem))
		sec.WriteLimits(t.Type.Limits)
	}
	writeSection(buf, SectionTable, sec)
}

func (e *encoder) memorySection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Memories)))
	for _, m := range e.mod.Memories {
		sec.WriteLimits(m.Limits)
	}
	writeSection(buf, SectionMemory, sec)
}

func (e *encoder) globalSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Globals)))
	for _, g := range e.mod.Globals {
		sec.AppendByte(byte(g.Type.Type))
		if g.Type.Mutable {
			sec.AppendByte(0x01)
		} else {
			sec.AppendByte(0x00)
		}
		e.expr(sec, g.Init)
	}
	writeSection(buf, SectionGlobal, sec)
}

func (e *encoder) exportSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Exports)))
	for _, exp := range e.mod.Exports {
		sec.WriteString(exp.Field)
		sec.AppendByte(exp.Kind)
		sec.WriteU32(e.varIdx(exp.Target))
	}
	writeSection(buf, SectionExport, sec)
}

func (e *encoder) startSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(e.varIdx(*e.mod.Start))
	writeSection(buf, SectionStart, sec)
}

func (e *encoder) elemSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Elems)))
	for _, el := range e.mod.Elems {
		e.elemSegment(sec, el)
	}
	writeSection(buf, SectionElement, sec)
}

// elemSegment picks the segment flag from the mode, the item encoding and
// the target table. Function-index lists keep the compact form; any
// expression item or non-funcref type forces the expression form.
func (e *encoder) elemSegment(sec *Buffer, el wast.Elem) {
	exprs := el.RefType != wast.ValTypeFuncref
	if !exprs {
		for _, it := range el.Items {
			if it.Expr != nil {
				exprs = true
				break
			}
		}
	}
	tidx := e.varIdx(el.Table)

	switch el.Mode {
	case wast.ElemModeActive:
		switch {
		case !exprs && tidx == 0:
			sec.WriteU32(ElemFlagActiveFuncs)
			e.expr(sec, el.Offset)
			e.elemFuncs(sec, el.Items)
		case !exprs:
			sec.WriteU32(ElemFlagActiveTableFuncs)
			sec.WriteU32(tidx)
			e.expr(sec, el.Offset)
			sec.AppendByte(ElemKindFunc)
			e.elemFuncs(sec, el.Items)
		case tidx == 0 && el.RefType == wast.ValTypeFuncref:
			sec.WriteU32(ElemFlagActiveExprs)
			e.expr(sec, el.Offset)
			e.elemExprs(sec, el.Items)
		default:
			sec.WriteU32(ElemFlagActiveTableExprs)
			sec.WriteU32(tidx)
			e.expr(sec, el.Offset)
			sec.AppendByte(byte(el.RefType))
			e.elemExprs(sec, el.Items)
		}
	case wast.ElemModePassive:
		if exprs {
			sec.WriteU32(ElemFlagPassiveExprs)
			sec.AppendByte(byte(el.RefType))
			e.elemExprs(sec, el.Items)
		} else {
			sec.WriteU32(ElemFlagPassiveFuncs)
			sec.AppendByte(ElemKindFunc)
			e.elemFuncs(sec, el.Items)
		}
	case wast.ElemModeDeclarative:
		if exprs {
			sec.WriteU32(ElemFlagDeclarativeExprs)
			sec.AppendByte(byte(el.RefType))
			e.elemExprs(sec, el.Items)
		} else {
			sec.WriteU32(ElemFlagDeclarativeFuncs)
			sec.AppendByte(ElemKindFunc)
			e.elemFuncs(sec, el.Items)
		}
	}
}

func (e *encoder) elemFuncs(sec *Buffer, items []wast.ElemItem) {
	sec.WriteU32(uint32(len(items)))
	for _, it := range items {
		sec.WriteU32(e.varIdx(it.Func))
	}
}

// elemExprs writes items as constant expressions. Plain function
// references mixed into an expression segment become ref.func exprs.
func (e *encoder) elemExprs(sec *Buffer, items []wast.ElemItem) {
	sec.WriteU32(uint32(len(items)))
	for _, it := range items {
		if it.Expr == nil {
			sec.AppendByte(wast.OpRefFunc)
			sec.WriteU32(e.varIdx(it.Func))
			sec.AppendByte(wast.OpEnd)
			continue
		}
		e.expr(sec, it.Expr)
	}
}

func (e *encoder) dataCountSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Data)))
	writeSection(buf, SectionDataCount, sec)
}

func (e *encoder) codeSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Funcs)))
	for _, f := range e.mod.Funcs {
		body := &Buffer{}
		e.locals(body, f.Locals)
		e.expr(body, f.Body)
		sec.WriteU32(uint32(len(body.Bytes)))
		sec.WriteBytes(body.Bytes)
	}
	writeSection(buf, SectionCode, sec)
}

// locals writes the local declarations, grouping consecutive runs of the
// same type into one entry.
func (e *encoder) locals(body *Buffer, locals []wast.Local) {
	type group struct {
		vt    wast.ValType
		count uint32
	}
	var groups []group
	for _, l := range locals {
		if n := len(groups); n > 0 && groups[n-1].vt == l.Type {
			groups[n-1].count++
		} else {
			groups = append(groups, group{l.Type, 1})
		}
	}
	body.WriteU32(uint32(len(groups)))
	for _, g := range groups {
		body.WriteU32(g.count)
		body.AppendByte(byte(g.vt))
	}
}

func (e *encoder) dataSection(buf *Buffer) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(e.mod.Data)))
	for _, d := range e.mod.Data {
		switch {
		case d.Passive:
			sec.WriteU32(DataFlagPassive)
		case e.varIdx(d.Mem) != 0:
			sec.WriteU32(DataFlagActiveMemIdx)
			sec.WriteU32(e.varIdx(d.Mem))
			e.expr(sec, d.Offset)
		default:
			sec.WriteU32(DataFlagActive)
			e.expr(sec, d.Offset)
		}
		sec.WriteU32(uint32(len(d.Init)))
		sec.WriteBytes(d.Init)
	}
	writeSection(buf, SectionData, sec)
}

func (e *encoder) expr(buf *Buffer, instrs []wast.Instr) {
	for _, in := range instrs {
		e.instr(buf, in)
	}
}
