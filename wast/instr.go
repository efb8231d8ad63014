package wast

import (
	"fmt"
	"math/bits"
	"strings"
)

// parseInstrs parses a flat instruction sequence. It stops at a closing
// paren or at a bare else or end keyword, both of which belong to the
// enclosing construct. Folded expressions found along the way are
// flattened in evaluation order.
func (p *Parser) parseInstrs() ([]Instr, error) {
	var instrs []Instr
	for {
		t := p.peek()
		if t == nil || t.Kind == RParen {
			return instrs, nil
		}
		if t.Kind == Ident && (t.Text == "else" || t.Text == "end") {
			return instrs, nil
		}
		if t.Kind == LParen {
			p.next()
			seq, err := p.parseFoldedExpr()
			if err != nil {
				return nil, err
			}
			instrs = append(instrs, seq...)
			continue
		}
		if t.Kind != Ident {
			return nil, fmt.Errorf("%d: expected instruction, got %q", t.Line, t.Text)
		}
		p.next()
		seq, err := p.parseFlatInstr(t.Text, t.Line)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, seq...)
	}
}

// parseFlatInstr parses one instruction in flat form, including the body
// of flat block constructs up to their end keyword.
func (p *Parser) parseFlatInstr(name string, line int) ([]Instr, error) {
	switch name {
	case "block", "loop":
		op := OpBlock
		if name == "loop" {
			op = OpLoop
		}
		bt, err := p.parseBlockPrefix()
		if err != nil {
			return nil, err
		}
		body, err := p.parseInstrs()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		if err := p.checkTrailingLabel(bt.Label); err != nil {
			return nil, err
		}
		instrs := append([]Instr{{Opcode: op, Imm: bt, Line: line}}, body...)
		return append(instrs, Instr{Opcode: OpEnd}), nil

	case "if":
		bt, err := p.parseBlockPrefix()
		if err != nil {
			return nil, err
		}
		thenBody, err := p.parseInstrs()
		if err != nil {
			return nil, err
		}
		instrs := append([]Instr{{Opcode: OpIf, Imm: bt, Line: line}}, thenBody...)
		if p.peekKeyword("else") {
			p.next()
			if err := p.checkTrailingLabel(bt.Label); err != nil {
				return nil, err
			}
			elseBody, err := p.parseInstrs()
			if err != nil {
				return nil, err
			}
			instrs = append(instrs, Instr{Opcode: OpElse})
			instrs = append(instrs, elseBody...)
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		if err := p.checkTrailingLabel(bt.Label); err != nil {
			return nil, err
		}
		return append(instrs, Instr{Opcode: OpEnd}), nil

	case "then", "else", "end":
		return nil, fmt.Errorf("%d: unexpected %q", line, name)
	}

	instr, err := p.parseInstrImms(name, line)
	if err != nil {
		return nil, err
	}
	return []Instr{instr}, nil
}

// parseFoldedExpr parses a folded expression whose opening paren is
// already consumed, through its matching close paren. Operand expressions
// are emitted ahead of the instruction itself.
func (p *Parser) parseFoldedExpr() ([]Instr, error) {
	t, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}
	name, line := t.Text, t.Line

	switch name {
	case "block", "loop":
		op := OpBlock
		if name == "loop" {
			op = OpLoop
		}
		bt, err := p.parseBlockPrefix()
		if err != nil {
			return nil, err
		}
		body, err := p.parseInstrs()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		instrs := append([]Instr{{Opcode: op, Imm: bt, Line: line}}, body...)
		return append(instrs, Instr{Opcode: OpEnd}), nil

	case "if":
		return p.parseFoldedIf(line)

	case "then", "else":
		return nil, fmt.Errorf("%d: unexpected %q", line, name)
	}

	instr, err := p.parseInstrImms(name, line)
	if err != nil {
		return nil, err
	}

	var operands []Instr
	for {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("unexpected end of expression")
		}
		if t.Kind == RParen {
			p.next()
			return append(operands, instr), nil
		}
		if t.Kind != LParen {
			return nil, fmt.Errorf("%d: expected operand expression, got %q", t.Line, t.Text)
		}
		p.next()
		seq, err := p.parseFoldedExpr()
		if err != nil {
			return nil, err
		}
		operands = append(operands, seq...)
	}
}

// parseFoldedIf parses "(if label? blocktype cond* (then A) (else B)?)".
// Conditions are folded expressions evaluated before the branch.
func (p *Parser) parseFoldedIf(line int) ([]Instr, error) {
	bt, err := p.parseBlockPrefix()
	if err != nil {
		return nil, err
	}

	var instrs []Instr
	for {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("unexpected end of if expression")
		}
		if t.Kind != LParen || p.peekClause("then") {
			break
		}
		p.next()
		cond, err := p.parseFoldedExpr()
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, cond...)
	}

	if !p.peekClause("then") {
		return nil, fmt.Errorf("%d: expected (then ...) in folded if", p.line())
	}
	p.next()
	p.next()
	thenBody, err := p.parseInstrs()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}

	instrs = append(instrs, Instr{Opcode: OpIf, Imm: bt, Line: line})
	instrs = append(instrs, thenBody...)

	if p.peekClause("else") {
		p.next()
		p.next()
		elseBody, err := p.parseInstrs()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		instrs = append(instrs, Instr{Opcode: OpElse})
		instrs = append(instrs, elseBody...)
	}

	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	return append(instrs, Instr{Opcode: OpEnd}), nil
}

// parseBlockPrefix parses the optional label and block type that open
// block, loop and if constructs.
func (p *Parser) parseBlockPrefix() (BlockType, error) {
	bt := BlockType{Index: -1}
	bt.Label = p.parseOptName()

	if p.peekClause("type") {
		p.next()
		p.next()
		v, err := p.parseVar()
		if err != nil {
			return bt, err
		}
		if _, err := p.expect(RParen); err != nil {
			return bt, err
		}
		bt.Type = &v
	}

	var ft FuncType
	if err := p.parseFuncSig(&ft, nil); err != nil {
		return bt, err
	}
	bt.Params = ft.Params
	bt.Results = ft.Results
	return bt, nil
}

// checkTrailingLabel consumes an optional repeated label after end or
// else and verifies it matches the opening one.
func (p *Parser) checkTrailingLabel(label string) error {
	if t := p.peek(); t != nil && t.Kind == Ident && strings.HasPrefix(t.Text, "$") {
		p.next()
		if t.Text != label {
			return fmt.Errorf("%d: mismatched label %q", t.Line, t.Text)
		}
	}
	return nil
}

// parseInstrImms parses a plain instruction and its immediates. Block
// constructs never reach here.
func (p *Parser) parseInstrImms(name string, line int) (Instr, error) {
	if info, ok := lookupOp(name); ok {
		switch info.imm {
		case immNone:
			if name == "select" {
				return p.parseSelect(line)
			}
			return Instr{Opcode: info.opcode, Line: line}, nil
		case immLocal, immGlobal, immFunc, immLabel, immTable:
			v, err := p.parseVar()
			if err != nil {
				return Instr{}, err
			}
			return Instr{Opcode: info.opcode, Imm: v, Line: line}, nil
		case immI32:
			v, err := p.parseI32()
			if err != nil {
				return Instr{}, err
			}
			return Instr{Opcode: info.opcode, Imm: v, Line: line}, nil
		case immI64:
			v, err := p.parseI64()
			if err != nil {
				return Instr{}, err
			}
			return Instr{Opcode: info.opcode, Imm: v, Line: line}, nil
		case immF32:
			b, err := p.parseF32Bits()
			if err != nil {
				return Instr{}, err
			}
			return Instr{Opcode: info.opcode, Imm: F32Imm(b), Line: line}, nil
		case immF64:
			b, err := p.parseF64Bits()
			if err != nil {
				return Instr{}, err
			}
			return Instr{Opcode: info.opcode, Imm: F64Imm(b), Line: line}, nil
		case immMem:
			v := Idx(0)
			if p.peekVar() {
				parsed, err := p.parseVar()
				if err != nil {
					return Instr{}, err
				}
				v = parsed
			}
			return Instr{Opcode: info.opcode, Imm: v, Line: line}, nil
		}
	}

	if mo, ok := lookupMemOp(name); ok {
		ma, err := p.parseMemarg(mo.align)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Opcode: mo.opcode, Imm: ma, Line: line}, nil
	}

	if subop, ok := lookupMiscOp(name); ok {
		imm, err := p.parseMiscImm(subop)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Opcode: OpPrefixMisc, Imm: imm, Line: line}, nil
	}

	switch name {
	case "br_table":
		return p.parseBrTable(line)
	case "call_indirect", "return_call_indirect":
		op := OpCallIndirect
		if name == "return_call_indirect" {
			op = OpReturnCallIndirect
		}
		imm := CallIndirectImm{Table: Idx(0)}
		if p.peekVar() {
			v, err := p.parseVar()
			if err != nil {
				return Instr{}, err
			}
			imm.Table = v
		}
		tu, _, err := p.parseTypeUse(false)
		if err != nil {
			return Instr{}, err
		}
		imm.Type = tu
		return Instr{Opcode: op, Imm: imm, Line: line}, nil
	case "ref.null":
		ht, err := p.parseHeapType()
		if err != nil {
			return Instr{}, err
		}
		return Instr{Opcode: OpRefNull, Imm: ht, Line: line}, nil
	}

	return Instr{}, fmt.Errorf("%d: unknown instruction %q", line, name)
}

func (p *Parser) parseSelect(line int) (Instr, error) {
	if !p.peekClause("result") {
		return Instr{Opcode: OpSelect, Line: line}, nil
	}
	var types []ValType
	for p.peekClause("result") {
		p.next()
		p.next()
		var ft FuncType
		if err := p.parseResultClause(&ft); err != nil {
			return Instr{}, err
		}
		types = append(types, ft.Results...)
	}
	return Instr{Opcode: OpSelectTyped, Imm: types, Line: line}, nil
}

func (p *Parser) parseBrTable(line int) (Instr, error) {
	var vars []Var
	for p.peekVar() {
		v, err := p.parseVar()
		if err != nil {
			return Instr{}, err
		}
		vars = append(vars, v)
	}
	if len(vars) == 0 {
		return Instr{}, fmt.Errorf("%d: br_table requires at least one label", line)
	}
	imm := BrTableImm{Targets: vars[:len(vars)-1], Default: vars[len(vars)-1]}
	return Instr{Opcode: OpBrTable, Imm: imm, Line: line}, nil
}

// parseMemarg parses optional offset= and align= annotations. The align
// value is converted to its log2 form and must be a power of two.
func (p *Parser) parseMemarg(naturalAlign uint32) (Memarg, error) {
	ma := Memarg{Align: naturalAlign}
	for {
		t := p.peek()
		if t == nil || t.Kind != Ident {
			return ma, nil
		}
		switch {
		case strings.HasPrefix(t.Text, "offset="):
			p.next()
			v, err := parseU32Literal(t.Text[len("offset="):])
			if err != nil {
				return ma, fmt.Errorf("%d: invalid offset in %q", t.Line, t.Text)
			}
			ma.Offset = v
		case strings.HasPrefix(t.Text, "align="):
			p.next()
			v, err := parseU32Literal(t.Text[len("align="):])
			if err != nil || v == 0 || v&(v-1) != 0 {
				return ma, fmt.Errorf("%d: alignment must be a power of two in %q", t.Line, t.Text)
			}
			ma.Align = uint32(bits.TrailingZeros32(v))
		default:
			return ma, nil
		}
	}
}

// parseMiscImm parses the index operands of a 0xFC-prefixed instruction,
// normalizing them into encoding order.
func (p *Parser) parseMiscImm(subop uint32) (MiscImm, error) {
	imm := MiscImm{Subop: subop}
	switch subop {
	case MiscOpMemoryInit, MiscOpDataDrop:
		v, err := p.parseVar()
		if err != nil {
			return imm, err
		}
		imm.X = v
	case MiscOpElemDrop:
		v, err := p.parseVar()
		if err != nil {
			return imm, err
		}
		imm.X = v
	case MiscOpTableInit:
		// "table.init elem" targets table zero; "table.init table elem"
		// names both. Encoding order is elem then table.
		v1, err := p.parseVar()
		if err != nil {
			return imm, err
		}
		if p.peekVar() {
			v2, err := p.parseVar()
			if err != nil {
				return imm, err
			}
			imm.X, imm.Y = v2, v1
		} else {
			imm.X, imm.Y = v1, Idx(0)
		}
	case MiscOpTableCopy:
		imm.X, imm.Y = Idx(0), Idx(0)
		if p.peekVar() {
			v1, err := p.parseVar()
			if err != nil {
				return imm, err
			}
			v2, err := p.parseVar()
			if err != nil {
				return imm, err
			}
			imm.X, imm.Y = v1, v2
		}
	case MiscOpTableGrow, MiscOpTableSize, MiscOpTableFill:
		imm.X = Idx(0)
		if p.peekVar() {
			v, err := p.parseVar()
			if err != nil {
				return imm, err
			}
			imm.X = v
		}
	}
	return imm, nil
}
