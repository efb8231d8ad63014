package wast

import (
	"fmt"
)

// parseModuleRest parses "field* )" after the opening "(module" and the
// optional name, which the caller has already consumed.
func (p *Parser) parseModuleRest(name string) (*Module, error) {
	p.mod = &Module{Name: name}
	p.sawDef = false
	if p.pos > 0 {
		p.mod.Line = p.tokens[p.pos-1].Line
	}

	for {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("%d: unexpected end of module", p.line())
		}
		if t.Kind == RParen {
			p.next()
			break
		}
		if t.Kind != LParen {
			return nil, fmt.Errorf("%d: expected module field, got %q", t.Line, t.Text)
		}
		p.next()
		kw, err := p.expect(Ident)
		if err != nil {
			return nil, err
		}

		switch kw.Text {
		case "type":
			err = p.parseTypeDef(kw.Line)
		case "import":
			err = p.parseImportField(kw.Line)
		case "func":
			err = p.parseFunc(kw.Line)
		case "table":
			err = p.parseTableField(kw.Line)
		case "memory":
			err = p.parseMemoryField(kw.Line)
		case "global":
			err = p.parseGlobalField(kw.Line)
		case "export":
			err = p.parseExportField(kw.Line)
		case "start":
			err = p.parseStart(kw.Line)
		case "elem":
			err = p.parseElemField(kw.Line)
		case "data":
			err = p.parseDataField(kw.Line)
		default:
			return nil, fmt.Errorf("%d: unknown module field %q", kw.Line, kw.Text)
		}
		if err != nil {
			return nil, err
		}
	}

	p.canonTypes()
	return p.mod, nil
}

// importCount counts imports of one kind, which is the number of index
// space slots they occupy ahead of defined items.
func (p *Parser) importCount(kind byte) uint32 {
	var n uint32
	for _, imp := range p.mod.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// noteDef enforces that imports precede all function, table, memory and
// global definitions, matching the binary section ordering.
func (p *Parser) noteDef() {
	p.sawDef = true
}

func (p *Parser) checkImportPlacement(line int) error {
	if p.sawDef {
		return fmt.Errorf("%d: import after definition", line)
	}
	return nil
}

func (p *Parser) parseTypeDef(line int) error {
	name := p.parseOptName()
	if _, err := p.expect(LParen); err != nil {
		return err
	}
	if err := p.expectKeyword("func"); err != nil {
		return err
	}
	var ft FuncType
	if err := p.parseFuncSig(&ft, nil); err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	p.mod.Types = append(p.mod.Types, TypeDef{Name: name, Type: ft, Line: line})
	return nil
}

// parseFuncSig parses "(param ...)* (result ...)*". When names is non-nil
// it records one entry per parameter so locals can bind against them.
func (p *Parser) parseFuncSig(ft *FuncType, names *[]string) error {
	sawResult := false
	for {
		switch {
		case p.peekClause("param"):
			if sawResult {
				return fmt.Errorf("%d: param after result", p.line())
			}
			p.next()
			p.next()
			if err := p.parseParamClause(ft, names); err != nil {
				return err
			}
		case p.peekClause("result"):
			sawResult = true
			p.next()
			p.next()
			if err := p.parseResultClause(ft); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *Parser) parseParamClause(ft *FuncType, names *[]string) error {
	if name := p.parseOptName(); name != "" {
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		ft.Params = append(ft.Params, vt)
		if names != nil {
			*names = append(*names, name)
		}
		_, err = p.expect(RParen)
		return err
	}
	for {
		t := p.peek()
		if t == nil {
			return fmt.Errorf("unexpected end of param clause")
		}
		if t.Kind == RParen {
			p.next()
			return nil
		}
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		ft.Params = append(ft.Params, vt)
		if names != nil {
			*names = append(*names, "")
		}
	}
}

func (p *Parser) parseResultClause(ft *FuncType) error {
	for {
		t := p.peek()
		if t == nil {
			return fmt.Errorf("unexpected end of result clause")
		}
		if t.Kind == RParen {
			p.next()
			return nil
		}
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		ft.Results = append(ft.Results, vt)
	}
}

// parseTypeUse parses "(type x)? (param ...)* (result ...)*" and returns
// the parameter names when collect is true.
func (p *Parser) parseTypeUse(collect bool) (TypeUse, []string, error) {
	var tu TypeUse
	var names []string

	if p.peekClause("type") {
		p.next()
		p.next()
		v, err := p.parseVar()
		if err != nil {
			return tu, nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return tu, nil, err
		}
		tu.Type = &v
	}

	var ft FuncType
	var namesPtr *[]string
	if collect {
		namesPtr = &names
	}
	if err := p.parseFuncSig(&ft, namesPtr); err != nil {
		return tu, nil, err
	}
	tu.Params = ft.Params
	tu.Results = ft.Results
	return tu, names, nil
}

// parseInlineClauses consumes leading "(export name)*" and an optional
// "(import mod name)" abbreviation shared by func, table, memory and
// global fields.
func (p *Parser) parseInlineClauses() (exports []string, impMod, impField string, imported bool, err error) {
	for {
		switch {
		case p.peekClause("export"):
			p.next()
			p.next()
			field, serr := p.parseString()
			if serr != nil {
				return nil, "", "", false, serr
			}
			if _, serr := p.expect(RParen); serr != nil {
				return nil, "", "", false, serr
			}
			exports = append(exports, string(field))
		case p.peekClause("import") && !imported:
			p.next()
			p.next()
			m, serr := p.parseString()
			if serr != nil {
				return nil, "", "", false, serr
			}
			f, serr := p.parseString()
			if serr != nil {
				return nil, "", "", false, serr
			}
			if _, serr := p.expect(RParen); serr != nil {
				return nil, "", "", false, serr
			}
			impMod, impField, imported = string(m), string(f), true
		default:
			return exports, impMod, impField, imported, nil
		}
	}
}

func (p *Parser) addExports(names []string, kind byte, idx uint32, line int) {
	for _, n := range names {
		p.mod.Exports = append(p.mod.Exports, Export{Field: n, Kind: kind, Target: Idx(idx), Line: line})
	}
}

func (p *Parser) parseFunc(line int) error {
	name := p.parseOptName()
	exports, impMod, impField, imported, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	tu, paramNames, err := p.parseTypeUse(true)
	if err != nil {
		return err
	}

	if imported {
		if err := p.checkImportPlacement(line); err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		idx := p.importCount(KindFunc)
		p.addExports(exports, KindFunc, idx, line)
		p.mod.Imports = append(p.mod.Imports, Import{
			Module: impMod,
			Field:  impField,
			Kind:   KindFunc,
			Name:   name,
			Func:   tu,
			Line:   line,
		})
		return nil
	}

	fn := Func{Name: name, Line: line, Type: tu, ParamNames: paramNames}
	for p.peekClause("local") {
		p.next()
		p.next()
		if err := p.parseLocalClause(&fn); err != nil {
			return err
		}
	}

	body, err := p.parseInstrs()
	if err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	fn.Body = append(body, Instr{Opcode: OpEnd})

	idx := p.importCount(KindFunc) + uint32(len(p.mod.Funcs))
	p.addExports(exports, KindFunc, idx, line)
	p.mod.Funcs = append(p.mod.Funcs, fn)
	p.noteDef()
	return nil
}

func (p *Parser) parseLocalClause(fn *Func) error {
	if name := p.parseOptName(); name != "" {
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		fn.Locals = append(fn.Locals, Local{Name: name, Type: vt})
		_, err = p.expect(RParen)
		return err
	}
	for {
		t := p.peek()
		if t == nil {
			return fmt.Errorf("unexpected end of local clause")
		}
		if t.Kind == RParen {
			p.next()
			return nil
		}
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		fn.Locals = append(fn.Locals, Local{Type: vt})
	}
}

func (p *Parser) parseImportField(line int) error {
	if err := p.checkImportPlacement(line); err != nil {
		return err
	}
	mod, err := p.parseString()
	if err != nil {
		return err
	}
	field, err := p.parseString()
	if err != nil {
		return err
	}
	if _, err := p.expect(LParen); err != nil {
		return err
	}
	kw, err := p.expect(Ident)
	if err != nil {
		return err
	}

	imp := Import{Module: string(mod), Field: string(field), Line: line}
	imp.Name = p.parseOptName()

	switch kw.Text {
	case "func":
		imp.Kind = KindFunc
		tu, _, err := p.parseTypeUse(false)
		if err != nil {
			return err
		}
		imp.Func = tu
	case "table":
		imp.Kind = KindTable
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		imp.Table = tt
	case "memory":
		imp.Kind = KindMemory
		lim, err := p.parseLimits(true)
		if err != nil {
			return err
		}
		imp.Mem = lim
	case "global":
		imp.Kind = KindGlobal
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		imp.Global = gt
	default:
		return fmt.Errorf("%d: unknown import kind %q", kw.Line, kw.Text)
	}

	if _, err := p.expect(RParen); err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	p.mod.Imports = append(p.mod.Imports, imp)
	return nil
}

// parseLimits parses "min max? shared?". Shared limits are only valid on
// memories and require an explicit max.
func (p *Parser) parseLimits(allowShared bool) (Limits, error) {
	var lim Limits
	min, err := p.parseU32()
	if err != nil {
		return lim, err
	}
	lim.Min = min
	if t := p.peek(); t != nil && t.Kind == Number {
		max, err := p.parseU32()
		if err != nil {
			return lim, err
		}
		lim.Max = max
		lim.HasMax = true
	}
	if allowShared && p.peekKeyword("shared") {
		p.next()
		if !lim.HasMax {
			return lim, fmt.Errorf("%d: shared memory must have a max size", p.line())
		}
		lim.Shared = true
	}
	return lim, nil
}

func (p *Parser) parseTableType() (TableType, error) {
	lim, err := p.parseLimits(false)
	if err != nil {
		return TableType{}, err
	}
	elem, err := p.parseRefType()
	if err != nil {
		return TableType{}, err
	}
	return TableType{Elem: elem, Limits: lim}, nil
}

func (p *Parser) parseGlobalType() (GlobalType, error) {
	if p.peekClause("mut") {
		p.next()
		p.next()
		vt, err := p.parseValType()
		if err != nil {
			return GlobalType{}, err
		}
		if _, err := p.expect(RParen); err != nil {
			return GlobalType{}, err
		}
		return GlobalType{Type: vt, Mutable: true}, nil
	}
	vt, err := p.parseValType()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{Type: vt}, nil
}

func (p *Parser) parseTableField(line int) error {
	name := p.parseOptName()
	exports, impMod, impField, imported, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	// Abbreviated form with an inline element segment fixes the limits to
	// the item count.
	if t := p.peek(); !imported && t != nil && t.Kind == Ident &&
		(t.Text == "funcref" || t.Text == "anyfunc" || t.Text == "externref") {
		refType, err := p.parseRefType()
		if err != nil {
			return err
		}
		if _, err := p.expect(LParen); err != nil {
			return err
		}
		if err := p.expectKeyword("elem"); err != nil {
			return err
		}
		elem := Elem{
			Mode:    ElemModeActive,
			Table:   Idx(p.importCount(KindTable) + uint32(len(p.mod.Tables))),
			Offset:  []Instr{{Opcode: OpI32Const, Imm: int32(0)}, {Opcode: OpEnd}},
			RefType: refType,
			Line:    line,
		}
		if err := p.parseElemItems(&elem); err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}

		n := uint32(len(elem.Items))
		idx := p.importCount(KindTable) + uint32(len(p.mod.Tables))
		p.addExports(exports, KindTable, idx, line)
		p.mod.Tables = append(p.mod.Tables, Table{
			Name: name,
			Type: TableType{Elem: refType, Limits: Limits{Min: n, Max: n, HasMax: true}},
			Line: line,
		})
		p.mod.Elems = append(p.mod.Elems, elem)
		p.noteDef()
		return nil
	}

	tt, err := p.parseTableType()
	if err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}

	if imported {
		if err := p.checkImportPlacement(line); err != nil {
			return err
		}
		idx := p.importCount(KindTable)
		p.addExports(exports, KindTable, idx, line)
		p.mod.Imports = append(p.mod.Imports, Import{
			Module: impMod, Field: impField, Kind: KindTable, Name: name, Table: tt, Line: line,
		})
		return nil
	}

	idx := p.importCount(KindTable) + uint32(len(p.mod.Tables))
	p.addExports(exports, KindTable, idx, line)
	p.mod.Tables = append(p.mod.Tables, Table{Name: name, Type: tt, Line: line})
	p.noteDef()
	return nil
}

func (p *Parser) parseMemoryField(line int) error {
	name := p.parseOptName()
	exports, impMod, impField, imported, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	// Abbreviated form with inline data sizes the memory to the payload.
	if p.peekClause("data") && !imported {
		p.next()
		p.next()
		var init []byte
		for {
			t := p.peek()
			if t == nil || t.Kind != String {
				break
			}
			b, err := p.parseString()
			if err != nil {
				return err
			}
			init = append(init, b...)
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}

		pages := (uint32(len(init)) + 65535) / 65536
		idx := p.importCount(KindMemory) + uint32(len(p.mod.Memories))
		p.addExports(exports, KindMemory, idx, line)
		p.mod.Memories = append(p.mod.Memories, Memory{
			Name:   name,
			Limits: Limits{Min: pages, Max: pages, HasMax: true},
			Line:   line,
		})
		p.mod.Data = append(p.mod.Data, DataSegment{
			Mem:    Idx(idx),
			Offset: []Instr{{Opcode: OpI32Const, Imm: int32(0)}, {Opcode: OpEnd}},
			Init:   init,
			Line:   line,
		})
		p.noteDef()
		return nil
	}

	lim, err := p.parseLimits(true)
	if err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}

	if imported {
		if err := p.checkImportPlacement(line); err != nil {
			return err
		}
		idx := p.importCount(KindMemory)
		p.addExports(exports, KindMemory, idx, line)
		p.mod.Imports = append(p.mod.Imports, Import{
			Module: impMod, Field: impField, Kind: KindMemory, Name: name, Mem: lim, Line: line,
		})
		return nil
	}

	idx := p.importCount(KindMemory) + uint32(len(p.mod.Memories))
	p.addExports(exports, KindMemory, idx, line)
	p.mod.Memories = append(p.mod.Memories, Memory{Name: name, Limits: lim, Line: line})
	p.noteDef()
	return nil
}

func (p *Parser) parseGlobalField(line int) error {
	name := p.parseOptName()
	exports, impMod, impField, imported, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	gt, err := p.parseGlobalType()
	if err != nil {
		return err
	}

	if imported {
		if err := p.checkImportPlacement(line); err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		idx := p.importCount(KindGlobal)
		p.addExports(exports, KindGlobal, idx, line)
		p.mod.Imports = append(p.mod.Imports, Import{
			Module: impMod, Field: impField, Kind: KindGlobal, Name: name, Global: gt, Line: line,
		})
		return nil
	}

	init, err := p.parseInstrs()
	if err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	init = append(init, Instr{Opcode: OpEnd})

	idx := p.importCount(KindGlobal) + uint32(len(p.mod.Globals))
	p.addExports(exports, KindGlobal, idx, line)
	p.mod.Globals = append(p.mod.Globals, Global{Name: name, Type: gt, Init: init, Line: line})
	p.noteDef()
	return nil
}

func (p *Parser) parseExportField(line int) error {
	field, err := p.parseString()
	if err != nil {
		return err
	}
	if _, err := p.expect(LParen); err != nil {
		return err
	}
	kw, err := p.expect(Ident)
	if err != nil {
		return err
	}

	var kind byte
	switch kw.Text {
	case "func":
		kind = KindFunc
	case "table":
		kind = KindTable
	case "memory":
		kind = KindMemory
	case "global":
		kind = KindGlobal
	default:
		return fmt.Errorf("%d: unknown export kind %q", kw.Line, kw.Text)
	}

	target, err := p.parseVar()
	if err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}

	p.mod.Exports = append(p.mod.Exports, Export{Field: string(field), Kind: kind, Target: target, Line: line})
	return nil
}

func (p *Parser) parseStart(line int) error {
	if p.mod.Start != nil {
		return fmt.Errorf("%d: multiple start fields", line)
	}
	v, err := p.parseVar()
	if err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	p.mod.Start = &v
	return nil
}

func (p *Parser) parseElemField(line int) error {
	elem := Elem{Line: line, RefType: ValTypeFuncref, Table: Idx(0)}

	// A leading $name names the segment when followed by a mode keyword,
	// a clause or the end of the field; the legacy syntax also allows a
	// bare table reference here.
	if t := p.peek(); t != nil && t.Kind == Ident && t.Text[0] == '$' {
		t2 := p.peekAt(1)
		isName := t2 == nil || t2.Kind == RParen || t2.Kind == LParen ||
			(t2.Kind == Ident && (t2.Text == "func" || t2.Text == "funcref" ||
				t2.Text == "externref" || t2.Text == "declare"))
		if isName {
			elem.Name = t.Text
			p.next()
		}
	}

	if t := p.peek(); t != nil && t.Kind == Ident {
		switch t.Text {
		case "declare":
			p.next()
			elem.Mode = ElemModeDeclarative
			if t := p.peek(); t != nil && t.Kind == Ident {
				switch t.Text {
				case "func":
					p.next()
				case "funcref", "externref":
					rt, err := p.parseRefType()
					if err != nil {
						return err
					}
					elem.RefType = rt
				}
			}
			return p.finishElemList(&elem)
		case "func":
			p.next()
			elem.Mode = ElemModePassive
			return p.finishElemList(&elem)
		case "funcref", "externref":
			elem.Mode = ElemModePassive
			rt, err := p.parseRefType()
			if err != nil {
				return err
			}
			elem.RefType = rt
			return p.finishElemList(&elem)
		}
	}

	// Legacy bare table index before the offset expression.
	if p.peekVar() {
		v, err := p.parseVar()
		if err != nil {
			return err
		}
		elem.Table = v
	}

	if p.peekClause("table") {
		p.next()
		p.next()
		v, err := p.parseVar()
		if err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		elem.Table = v
	}

	offset, err := p.parseOffsetExpr()
	if err != nil {
		return err
	}
	elem.Offset = offset

	if t := p.peek(); t != nil && t.Kind == Ident {
		switch t.Text {
		case "func":
			p.next()
		case "funcref", "externref":
			rt, err := p.parseRefType()
			if err != nil {
				return err
			}
			elem.RefType = rt
		}
	}
	return p.finishElemList(&elem)
}

func (p *Parser) finishElemList(elem *Elem) error {
	if err := p.parseElemItems(elem); err != nil {
		return err
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	p.mod.Elems = append(p.mod.Elems, *elem)
	return nil
}

// parseOffsetExpr parses "(offset expr)" or a single folded expression,
// terminating the result with an explicit end marker.
func (p *Parser) parseOffsetExpr() ([]Instr, error) {
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	if p.peekKeyword("offset") {
		p.next()
		instrs, err := p.parseInstrs()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return append(instrs, Instr{Opcode: OpEnd}), nil
	}
	// The consumed paren opens a folded instruction.
	instrs, err := p.parseFoldedExpr()
	if err != nil {
		return nil, err
	}
	return append(instrs, Instr{Opcode: OpEnd}), nil
}

func (p *Parser) parseElemItems(elem *Elem) error {
	for {
		t := p.peek()
		if t == nil || t.Kind == RParen {
			return nil
		}
		if t.Kind != LParen {
			v, err := p.parseVar()
			if err != nil {
				return err
			}
			elem.Items = append(elem.Items, ElemItem{Func: v})
			continue
		}

		p.next()
		kw, err := p.expect(Ident)
		if err != nil {
			return err
		}
		switch kw.Text {
		case "item":
			expr, err := p.parseInstrs()
			if err != nil {
				return err
			}
			if _, err := p.expect(RParen); err != nil {
				return err
			}
			elem.Items = append(elem.Items, ElemItem{Expr: append(expr, Instr{Opcode: OpEnd})})
		case "ref.func":
			v, err := p.parseVar()
			if err != nil {
				return err
			}
			if _, err := p.expect(RParen); err != nil {
				return err
			}
			elem.Items = append(elem.Items, ElemItem{Expr: []Instr{
				{Opcode: OpRefFunc, Imm: v, Line: kw.Line},
				{Opcode: OpEnd},
			}})
		case "ref.null":
			ht, err := p.parseHeapType()
			if err != nil {
				return err
			}
			if _, err := p.expect(RParen); err != nil {
				return err
			}
			elem.Items = append(elem.Items, ElemItem{Expr: []Instr{
				{Opcode: OpRefNull, Imm: ht, Line: kw.Line},
				{Opcode: OpEnd},
			}})
		default:
			return fmt.Errorf("%d: unexpected element item %q", kw.Line, kw.Text)
		}
	}
}

func (p *Parser) parseHeapType() (ValType, error) {
	t, err := p.expect(Ident)
	if err != nil {
		return 0, err
	}
	switch t.Text {
	case "func", "funcref":
		return ValTypeFuncref, nil
	case "extern", "externref":
		return ValTypeExternref, nil
	}
	return 0, fmt.Errorf("%d: expected heap type, got %q", t.Line, t.Text)
}

func (p *Parser) parseDataField(line int) error {
	seg := DataSegment{Line: line, Mem: Idx(0)}
	seg.Name = p.parseOptName()

	// Passive form: nothing but the payload strings.
	if t := p.peek(); t != nil && (t.Kind == String || t.Kind == RParen) {
		seg.Passive = true
		init, err := p.parseDataStrings()
		if err != nil {
			return err
		}
		seg.Init = init
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		p.mod.Data = append(p.mod.Data, seg)
		return nil
	}

	// Legacy bare memory index.
	if p.peekVar() {
		v, err := p.parseVar()
		if err != nil {
			return err
		}
		seg.Mem = v
	}

	if p.peekClause("memory") {
		p.next()
		p.next()
		v, err := p.parseVar()
		if err != nil {
			return err
		}
		if _, err := p.expect(RParen); err != nil {
			return err
		}
		seg.Mem = v
	}

	offset, err := p.parseOffsetExpr()
	if err != nil {
		return err
	}
	seg.Offset = offset

	init, err := p.parseDataStrings()
	if err != nil {
		return err
	}
	seg.Init = init
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	p.mod.Data = append(p.mod.Data, seg)
	return nil
}

func (p *Parser) parseDataStrings() ([]byte, error) {
	var init []byte
	for {
		t := p.peek()
		if t == nil || t.Kind != String {
			return init, nil
		}
		b, err := p.parseString()
		if err != nil {
			return nil, err
		}
		init = append(init, b...)
	}
}

// canonTypes assigns canonical type indices to every inline signature once
// all explicit type definitions are known. Signatures that reference a
// (type ...) clause keep their symbolic form for resolution.
func (p *Parser) canonTypes() {
	for i := range p.mod.Imports {
		if p.mod.Imports[i].Kind == KindFunc {
			p.canonTypeUse(&p.mod.Imports[i].Func)
		}
	}
	for i := range p.mod.Funcs {
		p.canonTypeUse(&p.mod.Funcs[i].Type)
		p.canonBody(p.mod.Funcs[i].Body)
	}
}

func (p *Parser) canonTypeUse(tu *TypeUse) {
	if tu.Type != nil {
		return
	}
	tu.Index = p.findOrAddType(FuncType{Params: tu.Params, Results: tu.Results})
}

func (p *Parser) canonBody(body []Instr) {
	for i := range body {
		switch imm := body[i].Imm.(type) {
		case BlockType:
			if imm.Type == nil && (len(imm.Params) > 0 || len(imm.Results) > 1) {
				imm.Index = int32(p.findOrAddType(FuncType{Params: imm.Params, Results: imm.Results}))
				body[i].Imm = imm
			}
		case CallIndirectImm:
			if imm.Type.Type == nil {
				imm.Type.Index = p.findOrAddType(FuncType{Params: imm.Type.Params, Results: imm.Type.Results})
				body[i].Imm = imm
			}
		}
	}
}
