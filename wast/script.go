package wast

import (
	"fmt"
	"strings"
)

// Script is a parsed test script: a sequence of module definitions,
// registrations, actions and assertions in source order.
type Script struct {
	Commands []Command
}

// Command is one top-level script form.
type Command interface {
	Pos() int
}

// ScriptModule is a module as it appears in a script: parsed text, raw
// binary bytes, or quoted source held for delayed parsing.
type ScriptModule struct {
	Text   *Module
	Name   string
	Binary []byte
	Quote  []byte
	Line   int
}

func (sm *ScriptModule) IsBinary() bool { return sm.Text == nil && sm.Binary != nil }
func (sm *ScriptModule) IsQuote() bool  { return sm.Text == nil && sm.Quote != nil }

type ModuleCommand struct {
	Module ScriptModule
}

func (c *ModuleCommand) Pos() int { return c.Module.Line }

// RegisterCommand exposes a module instance under a wire name for the
// imports of later modules. A nil Module targets the most recent one.
type RegisterCommand struct {
	As     string
	Module *Var
	Line   int
}

func (c *RegisterCommand) Pos() int { return c.Line }

type ActionKind int

const (
	ActionInvoke ActionKind = iota
	ActionGet
)

// Action names an exported function to invoke or an exported global to
// read. A nil Module targets the most recently defined module.
type Action struct {
	Kind   ActionKind
	Module *Var
	Field  string
	Args   []Const
	Line   int
}

type ActionCommand struct {
	Action Action
}

func (c *ActionCommand) Pos() int { return c.Action.Line }

// NaNPattern widens an expected float from an exact bit pattern to a
// family of NaNs.
type NaNPattern int

const (
	NaNNone NaNPattern = iota
	NaNCanonical
	NaNArithmetic
)

// Const is a typed script constant. Numeric values are stored as raw bits
// (f32 in the low half). Reference constants carry Null or, for
// ref.extern, the host value in Bits.
type Const struct {
	Type ValType
	Bits uint64
	NaN  NaNPattern
	Null bool
	Line int
}

type AssertReturnCommand struct {
	Action   Action
	Expected []Const
	Line     int
}

func (c *AssertReturnCommand) Pos() int { return c.Line }

// AssertTrapCommand checks that an action traps, or, in its module form,
// that instantiation traps in the start function.
type AssertTrapCommand struct {
	Action  Action
	Module  *ScriptModule
	Failure string
	Line    int
}

func (c *AssertTrapCommand) Pos() int { return c.Line }

type AssertExhaustionCommand struct {
	Action  Action
	Failure string
	Line    int
}

func (c *AssertExhaustionCommand) Pos() int { return c.Line }

type AssertMalformedCommand struct {
	Module  ScriptModule
	Failure string
	Line    int
}

func (c *AssertMalformedCommand) Pos() int { return c.Line }

type AssertInvalidCommand struct {
	Module  ScriptModule
	Failure string
	Line    int
}

func (c *AssertInvalidCommand) Pos() int { return c.Line }

type AssertUnlinkableCommand struct {
	Module  ScriptModule
	Failure string
	Line    int
}

func (c *AssertUnlinkableCommand) Pos() int { return c.Line }

type AssertUninstantiableCommand struct {
	Module  ScriptModule
	Failure string
	Line    int
}

func (c *AssertUninstantiableCommand) Pos() int { return c.Line }

// ParseScript parses a full test script.
func ParseScript(src string) (*Script, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := newParser(tokens)
	var s Script
	for p.peek() != nil {
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		s.Commands = append(s.Commands, cmd)
	}
	return &s, nil
}

func (p *Parser) parseCommand() (Command, error) {
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	kw, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}

	switch kw.Text {
	case "module":
		sm, err := p.parseScriptModuleRest(kw.Line)
		if err != nil {
			return nil, err
		}
		return &ModuleCommand{Module: sm}, nil

	case "register":
		name, err := p.parseString()
		if err != nil {
			return nil, err
		}
		cmd := &RegisterCommand{As: string(name), Line: kw.Line}
		if p.peekVar() {
			v, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			cmd.Module = &v
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return cmd, nil

	case "invoke", "get":
		action, err := p.parseActionRest(kw)
		if err != nil {
			return nil, err
		}
		return &ActionCommand{Action: action}, nil

	case "assert_return":
		action, err := p.parseActionClause()
		if err != nil {
			return nil, err
		}
		cmd := &AssertReturnCommand{Action: action, Line: kw.Line}
		for {
			t := p.peek()
			if t == nil || t.Kind == RParen {
				break
			}
			c, err := p.parseConstClause()
			if err != nil {
				return nil, err
			}
			cmd.Expected = append(cmd.Expected, c)
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return cmd, nil

	case "assert_trap":
		cmd := &AssertTrapCommand{Line: kw.Line}
		if p.peekClause("module") {
			p.next()
			p.next()
			sm, err := p.parseScriptModuleRest(kw.Line)
			if err != nil {
				return nil, err
			}
			cmd.Module = &sm
		} else {
			action, err := p.parseActionClause()
			if err != nil {
				return nil, err
			}
			cmd.Action = action
		}
		failure, err := p.parseString()
		if err != nil {
			return nil, err
		}
		cmd.Failure = string(failure)
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return cmd, nil

	case "assert_exhaustion":
		action, err := p.parseActionClause()
		if err != nil {
			return nil, err
		}
		failure, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return &AssertExhaustionCommand{Action: action, Failure: string(failure), Line: kw.Line}, nil

	case "assert_malformed", "assert_invalid", "assert_unlinkable", "assert_uninstantiable":
		if _, err := p.expect(LParen); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("module"); err != nil {
			return nil, err
		}
		sm, err := p.parseScriptModuleRest(kw.Line)
		if err != nil {
			return nil, err
		}
		failure, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		switch kw.Text {
		case "assert_malformed":
			return &AssertMalformedCommand{Module: sm, Failure: string(failure), Line: kw.Line}, nil
		case "assert_invalid":
			return &AssertInvalidCommand{Module: sm, Failure: string(failure), Line: kw.Line}, nil
		case "assert_unlinkable":
			return &AssertUnlinkableCommand{Module: sm, Failure: string(failure), Line: kw.Line}, nil
		default:
			return &AssertUninstantiableCommand{Module: sm, Failure: string(failure), Line: kw.Line}, nil
		}
	}

	return nil, fmt.Errorf("%d: unknown script command %q", kw.Line, kw.Text)
}

// parseScriptModuleRest parses what follows "(module": an optional name,
// then either a binary or quote payload or ordinary module fields.
func (p *Parser) parseScriptModuleRest(line int) (ScriptModule, error) {
	sm := ScriptModule{Line: line}
	sm.Name = p.parseOptName()

	switch {
	case p.peekKeyword("binary"):
		p.next()
		payload, err := p.parseDataStrings()
		if err != nil {
			return sm, err
		}
		if payload == nil {
			payload = []byte{}
		}
		sm.Binary = payload
		_, err = p.expect(RParen)
		return sm, err

	case p.peekKeyword("quote"):
		p.next()
		payload, err := p.parseDataStrings()
		if err != nil {
			return sm, err
		}
		if payload == nil {
			payload = []byte{}
		}
		sm.Quote = payload
		_, err = p.expect(RParen)
		return sm, err
	}

	mod, err := p.parseModuleRest(sm.Name)
	if err != nil {
		return sm, err
	}
	mod.Line = line
	sm.Text = mod
	return sm, nil
}

// parseActionClause parses a parenthesized invoke or get form.
func (p *Parser) parseActionClause() (Action, error) {
	if _, err := p.expect(LParen); err != nil {
		return Action{}, err
	}
	kw, err := p.expect(Ident)
	if err != nil {
		return Action{}, err
	}
	return p.parseActionRest(kw)
}

func (p *Parser) parseActionRest(kw *Token) (Action, error) {
	a := Action{Line: kw.Line}
	switch kw.Text {
	case "invoke":
		a.Kind = ActionInvoke
	case "get":
		a.Kind = ActionGet
	default:
		return a, fmt.Errorf("%d: expected invoke or get, got %q", kw.Line, kw.Text)
	}

	if t := p.peek(); t != nil && t.Kind == Ident && strings.HasPrefix(t.Text, "$") {
		v, err := p.parseVar()
		if err != nil {
			return a, err
		}
		a.Module = &v
	}

	field, err := p.parseString()
	if err != nil {
		return a, err
	}
	a.Field = string(field)

	if a.Kind == ActionInvoke {
		for {
			t := p.peek()
			if t == nil || t.Kind != LParen {
				break
			}
			c, err := p.parseConstClause()
			if err != nil {
				return a, err
			}
			a.Args = append(a.Args, c)
		}
	}

	if _, err := p.expect(RParen); err != nil {
		return a, err
	}
	return a, nil
}

// parseConstClause parses one typed constant such as (i32.const 7) or
// (f64.const nan:canonical).
func (p *Parser) parseConstClause() (Const, error) {
	if _, err := p.expect(LParen); err != nil {
		return Const{}, err
	}
	kw, err := p.expect(Ident)
	if err != nil {
		return Const{}, err
	}
	c := Const{Line: kw.Line}

	switch kw.Text {
	case "i32.const":
		t, err := p.expect(Number)
		if err != nil {
			return c, err
		}
		bits, err := parseIntLiteral(t.Text, 32)
		if err != nil {
			return c, fmt.Errorf("%d: invalid i32 constant %q", t.Line, t.Text)
		}
		c.Type = ValTypeI32
		c.Bits = bits

	case "i64.const":
		t, err := p.expect(Number)
		if err != nil {
			return c, err
		}
		bits, err := parseIntLiteral(t.Text, 64)
		if err != nil {
			return c, fmt.Errorf("%d: invalid i64 constant %q", t.Line, t.Text)
		}
		c.Type = ValTypeI64
		c.Bits = bits

	case "f32.const":
		t := p.next()
		if t == nil || (t.Kind != Number && t.Kind != Ident) {
			return c, fmt.Errorf("%d: expected f32 constant", p.line())
		}
		c.Type = ValTypeF32
		switch t.Text {
		case "nan:canonical":
			c.NaN = NaNCanonical
		case "nan:arithmetic":
			c.NaN = NaNArithmetic
		default:
			bits, err := parseF32Literal(t.Text)
			if err != nil {
				return c, fmt.Errorf("%d: %v", t.Line, err)
			}
			c.Bits = uint64(bits)
		}

	case "f64.const":
		t := p.next()
		if t == nil || (t.Kind != Number && t.Kind != Ident) {
			return c, fmt.Errorf("%d: expected f64 constant", p.line())
		}
		c.Type = ValTypeF64
		switch t.Text {
		case "nan:canonical":
			c.NaN = NaNCanonical
		case "nan:arithmetic":
			c.NaN = NaNArithmetic
		default:
			bits, err := parseF64Literal(t.Text)
			if err != nil {
				return c, fmt.Errorf("%d: %v", t.Line, err)
			}
			c.Bits = bits
		}

	case "ref.extern":
		v, err := p.parseU32()
		if err != nil {
			return c, err
		}
		c.Type = ValTypeExternref
		c.Bits = uint64(v)

	case "ref.null":
		ht, err := p.parseHeapType()
		if err != nil {
			return c, err
		}
		c.Type = ht
		c.Null = true

	case "ref.func":
		c.Type = ValTypeFuncref

	default:
		return c, fmt.Errorf("%d: unsupported constant %q", kw.Line, kw.Text)
	}

	if _, err := p.expect(RParen); err != nil {
		return c, err
	}
	return c, nil
}
