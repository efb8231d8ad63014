package wasm

import (
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wast"
)

// instr writes one instruction. The immediate payload type fully
// determines the encoding, so dispatch follows the imm taxonomy rather
// than the opcode: a Var is always a LEB128 index, whichever index space
// it names.
func (e *encoder) instr(buf *Buffer, in wast.Instr) {
	if in.Opcode == wast.OpPrefixMisc {
		e.miscInstr(buf, in.Imm.(wast.MiscImm))
		return
	}
	buf.AppendByte(in.Opcode)

	switch imm := in.Imm.(type) {
	case nil:

	case wast.Var:
		buf.WriteU32(e.varIdx(imm))

	case int32:
		buf.WriteI32(imm)

	case int64:
		buf.WriteI64(imm)

	case wast.F32Imm:
		buf.WriteF32Bits(uint32(imm))

	case wast.F64Imm:
		buf.WriteF64Bits(uint64(imm))

	case wast.BlockType:
		e.blockType(buf, imm)

	case wast.Memarg:
		buf.WriteU32(imm.Align)
		buf.WriteU32(imm.Offset)

	case wast.BrTableImm:
		buf.WriteU32(uint32(len(imm.Targets)))
		for _, t := range imm.Targets {
			buf.WriteU32(e.varIdx(t))
		}
		buf.WriteU32(e.varIdx(imm.Default))

	case wast.CallIndirectImm:
		buf.WriteU32(e.typeIdx(imm.Type))
		buf.WriteU32(e.varIdx(imm.Table))

	case []wast.ValType:
		buf.WriteU32(uint32(len(imm)))
		for _, t := range imm {
			buf.AppendByte(byte(t))
		}

	case wast.ValType:
		buf.AppendByte(byte(imm))
	}
}

// blockType writes a block signature: the canonical type index as s33
// when one was assigned, otherwise the single result type or the void
// byte.
func (e *encoder) blockType(buf *Buffer, bt wast.BlockType) {
	if bt.Type != nil && bt.Type.Symbolic() {
		e.fail(errors.Unresolved(errors.PhaseEncode, bt.Type.Name, bt.Type.Line))
		return
	}
	switch {
	case bt.Index >= 0:
		buf.WriteI33(int64(bt.Index))
	case len(bt.Results) == 1:
		buf.AppendByte(byte(bt.Results[0]))
	default:
		buf.AppendByte(BlockTypeVoid)
	}
}

// miscInstr writes a 0xFC-prefixed instruction: the sub-opcode followed
// by its index operands. Memory operands are the reserved zero byte while
// only one memory exists. Saturating truncations (sub-opcodes 0-7) carry
// nothing.
func (e *encoder) miscInstr(buf *Buffer, imm wast.MiscImm) {
	buf.AppendByte(wast.OpPrefixMisc)
	buf.WriteU32(imm.Subop)

	switch imm.Subop {
	case wast.MiscOpMemoryInit:
		buf.WriteU32(e.varIdx(imm.X))
		buf.AppendByte(0x00)
	case wast.MiscOpDataDrop, wast.MiscOpElemDrop:
		buf.WriteU32(e.varIdx(imm.X))
	case wast.MiscOpMemoryCopy:
		buf.AppendByte(0x00)
		buf.AppendByte(0x00)
	case wast.MiscOpMemoryFill:
		buf.AppendByte(0x00)
	case wast.MiscOpTableInit, wast.MiscOpTableCopy:
		buf.WriteU32(e.varIdx(imm.X))
		buf.WriteU32(e.varIdx(imm.Y))
	case wast.MiscOpTableGrow, wast.MiscOpTableSize, wast.MiscOpTableFill:
		buf.WriteU32(e.varIdx(imm.X))
	}
}
