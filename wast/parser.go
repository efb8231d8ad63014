package wast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parser walks a token stream and builds the module or script AST.
// Index references stay symbolic; only lexically scoped constructs
// (inline signatures, item positions for inline exports) are settled
// during parsing.
type Parser struct {
	tokens []Token
	pos    int
	mod    *Module
	sawDef bool
}

func newParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// ParseModule parses a source text holding exactly one (module ...) form.
func ParseModule(src string) (*Module, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := newParser(tokens)
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	mod, err := p.parseModuleRest(p.parseOptName())
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil {
		return nil, fmt.Errorf("%d: unexpected %s after module", t.Line, t.Kind)
	}
	return mod, nil
}

func (p *Parser) peek() *Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) *Token {
	if p.pos+n >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+n]
}

func (p *Parser) next() *Token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

// line reports the line of the current token, falling back to the last
// token when the stream is exhausted.
func (p *Parser) line() int {
	if t := p.peek(); t != nil {
		return t.Line
	}
	if len(p.tokens) > 0 {
		return p.tokens[len(p.tokens)-1].Line
	}
	return 0
}

func (p *Parser) expect(k Kind) (*Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input, want %s", k)
	}
	if t.Kind != k {
		return nil, fmt.Errorf("%d: expected %s, got %q", t.Line, k, t.Text)
	}
	return t, nil
}

func (p *Parser) expectKeyword(kw string) error {
	t := p.next()
	if t == nil {
		return fmt.Errorf("unexpected end of input, want %q", kw)
	}
	if t.Kind != Ident || t.Text != kw {
		return fmt.Errorf("%d: expected %q, got %q", t.Line, kw, t.Text)
	}
	return nil
}

// peekKeyword reports whether the current token is the given bare keyword.
func (p *Parser) peekKeyword(kw string) bool {
	t := p.peek()
	return t != nil && t.Kind == Ident && t.Text == kw
}

// peekClause reports whether the next two tokens open the clause (kw ...).
func (p *Parser) peekClause(kw string) bool {
	t := p.peek()
	if t == nil || t.Kind != LParen {
		return false
	}
	t2 := p.peekAt(1)
	return t2 != nil && t2.Kind == Ident && t2.Text == kw
}

// parseOptName consumes an optional $name binding and returns it, or "".
func (p *Parser) parseOptName() string {
	if t := p.peek(); t != nil && t.Kind == Ident && strings.HasPrefix(t.Text, "$") {
		p.next()
		return t.Text
	}
	return ""
}

// parseVar parses an index or $name reference.
func (p *Parser) parseVar() (Var, error) {
	t := p.peek()
	if t == nil {
		return Var{}, fmt.Errorf("unexpected end of input, want index or name")
	}
	if t.Kind == Ident && strings.HasPrefix(t.Text, "$") {
		p.next()
		return Var{Name: t.Text, Line: t.Line}, nil
	}
	if t.Kind == Number {
		idx, err := p.parseU32()
		if err != nil {
			return Var{}, err
		}
		return Var{Index: idx, Line: t.Line}, nil
	}
	return Var{}, fmt.Errorf("%d: expected index or name, got %q", t.Line, t.Text)
}

// peekVar reports whether the current token could start a Var.
func (p *Parser) peekVar() bool {
	t := p.peek()
	if t == nil {
		return false
	}
	return t.Kind == Number || (t.Kind == Ident && strings.HasPrefix(t.Text, "$"))
}

func (p *Parser) parseValType() (ValType, error) {
	t, err := p.expect(Ident)
	if err != nil {
		return 0, err
	}
	switch t.Text {
	case "i32":
		return ValTypeI32, nil
	case "i64":
		return ValTypeI64, nil
	case "f32":
		return ValTypeF32, nil
	case "f64":
		return ValTypeF64, nil
	case "v128":
		return ValTypeV128, nil
	case "funcref":
		return ValTypeFuncref, nil
	case "externref":
		return ValTypeExternref, nil
	}
	return 0, fmt.Errorf("%d: expected value type, got %q", t.Line, t.Text)
}

func (p *Parser) parseRefType() (ValType, error) {
	t, err := p.expect(Ident)
	if err != nil {
		return 0, err
	}
	switch t.Text {
	case "funcref", "anyfunc":
		return ValTypeFuncref, nil
	case "externref":
		return ValTypeExternref, nil
	}
	return 0, fmt.Errorf("%d: expected funcref or externref, got %q", t.Line, t.Text)
}

func (p *Parser) parseU32() (uint32, error) {
	t, err := p.expect(Number)
	if err != nil {
		return 0, err
	}
	v, err := parseU32Literal(t.Text)
	if err != nil {
		return 0, fmt.Errorf("%d: %v", t.Line, err)
	}
	return v, nil
}

func (p *Parser) parseI32() (int32, error) {
	t, err := p.expect(Number)
	if err != nil {
		return 0, err
	}
	bits, err := parseIntLiteral(t.Text, 32)
	if err != nil {
		return 0, fmt.Errorf("%d: invalid i32 constant %q", t.Line, t.Text)
	}
	return int32(uint32(bits)), nil
}

func (p *Parser) parseI64() (int64, error) {
	t, err := p.expect(Number)
	if err != nil {
		return 0, err
	}
	bits, err := parseIntLiteral(t.Text, 64)
	if err != nil {
		return 0, fmt.Errorf("%d: invalid i64 constant %q", t.Line, t.Text)
	}
	return int64(bits), nil
}

// parseF32Bits and parseF64Bits accept Number tokens plus the inf and nan
// identifier spellings, returning raw IEEE bits so nan:0x payloads survive
// the trip through the AST untouched.
func (p *Parser) parseF32Bits() (uint32, error) {
	t := p.next()
	if t == nil || (t.Kind != Number && t.Kind != Ident) {
		return 0, fmt.Errorf("%d: expected f32 constant", p.line())
	}
	bits, err := parseF32Literal(t.Text)
	if err != nil {
		return 0, fmt.Errorf("%d: %v", t.Line, err)
	}
	return bits, nil
}

func (p *Parser) parseF64Bits() (uint64, error) {
	t := p.next()
	if t == nil || (t.Kind != Number && t.Kind != Ident) {
		return 0, fmt.Errorf("%d: expected f64 constant", p.line())
	}
	bits, err := parseF64Literal(t.Text)
	if err != nil {
		return 0, fmt.Errorf("%d: %v", t.Line, err)
	}
	return bits, nil
}

// splitSign strips underscores and a leading sign from a numeric literal.
func splitSign(s string) (body string, neg bool) {
	body = strings.ReplaceAll(s, "_", "")
	switch {
	case strings.HasPrefix(body, "+"):
		body = body[1:]
	case strings.HasPrefix(body, "-"):
		body = body[1:]
		neg = true
	}
	return body, neg
}

// parseIntLiteral parses a decimal or 0x-prefixed integer into its two's
// complement bit pattern. A literal is in range when it fits the signed
// range for negative values or the unsigned range for non-negative ones,
// so both -2147483648 and 4294967295 are valid 32-bit constants.
func parseIntLiteral(s string, bits uint) (uint64, error) {
	body, neg := splitSign(s)
	base := 10
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		base = 16
		body = body[2:]
	}
	if body == "" {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	mag, err := strconv.ParseUint(body, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		if bits < 64 && mag > 1<<(bits-1) {
			return 0, fmt.Errorf("integer %q out of range", s)
		}
		if bits == 64 && mag > 1<<63 {
			return 0, fmt.Errorf("integer %q out of range", s)
		}
		mag = -mag
	} else if bits < 64 && mag >= 1<<bits {
		return 0, fmt.Errorf("integer %q out of range", s)
	}
	if bits < 64 {
		mag &= 1<<bits - 1
	}
	return mag, nil
}

func parseU32Literal(s string) (uint32, error) {
	body, neg := splitSign(s)
	if neg {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	base := 10
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		base = 16
		body = body[2:]
	}
	v, err := strconv.ParseUint(body, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid u32 %q", s)
	}
	return uint32(v), nil
}

const (
	f32SignBit  = uint32(1) << 31
	f32InfBits  = uint32(0x7F800000)
	f32QuietNaN = uint32(0x7FC00000)
	f64SignBit  = uint64(1) << 63
	f64InfBits  = uint64(0x7FF0000000000000)
	f64QuietNaN = uint64(0x7FF8000000000000)
)

func parseF32Literal(s string) (uint32, error) {
	body, neg := splitSign(s)
	var bits uint32
	switch {
	case body == "inf":
		bits = f32InfBits
	case body == "nan":
		bits = f32QuietNaN
	case strings.HasPrefix(body, "nan:0x"):
		payload, err := strconv.ParseUint(body[6:], 16, 32)
		if err != nil || payload == 0 || payload > 0x7FFFFF {
			return 0, fmt.Errorf("invalid nan payload in %q", s)
		}
		bits = f32InfBits | uint32(payload)
	default:
		f, err := parseFloatAuto(body, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid f32 constant %q", s)
		}
		bits = math.Float32bits(float32(f))
	}
	if neg {
		bits |= f32SignBit
	}
	return bits, nil
}

func parseF64Literal(s string) (uint64, error) {
	body, neg := splitSign(s)
	var bits uint64
	switch {
	case body == "inf":
		bits = f64InfBits
	case body == "nan":
		bits = f64QuietNaN
	case strings.HasPrefix(body, "nan:0x"):
		payload, err := strconv.ParseUint(body[6:], 16, 64)
		if err != nil || payload == 0 || payload > 0xFFFFFFFFFFFFF {
			return 0, fmt.Errorf("invalid nan payload in %q", s)
		}
		bits = f64InfBits | payload
	default:
		f, err := parseFloatAuto(body, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid f64 constant %q", s)
		}
		bits = math.Float64bits(f)
	}
	if neg {
		bits |= f64SignBit
	}
	return bits, nil
}

// parseFloatAuto parses a decimal or hex float. Hex floats without a
// p-exponent are legal in the text format but not in Go syntax, so a zero
// exponent is appended before handing off to strconv.
func parseFloatAuto(body string, bitSize int) (float64, error) {
	if isHexFloat(body) && !strings.ContainsAny(body, "pP") {
		body += "p0"
	}
	return strconv.ParseFloat(body, bitSize)
}

func isHexFloat(body string) bool {
	return strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X")
}

// decodeString expands the escape sequences of a raw string literal into
// the byte sequence it denotes. Export and import names compare by these
// bytes, so decoding happens once here rather than at every lookup.
func decodeString(raw string, line int) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			return nil, fmt.Errorf("%d: truncated escape in string literal", line)
		}
		switch raw[i] {
		case 't':
			out = append(out, '\t')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case '"', '\'', '\\':
			out = append(out, raw[i])
		case 'u':
			i++
			if i >= len(raw) || raw[i] != '{' {
				return nil, fmt.Errorf("%d: malformed unicode escape", line)
			}
			end := strings.IndexByte(raw[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%d: malformed unicode escape", line)
			}
			hex := strings.ReplaceAll(raw[i+1:i+end], "_", "")
			cp, err := strconv.ParseUint(hex, 16, 32)
			if err != nil || cp > 0x10FFFF || (cp >= 0xD800 && cp <= 0xDFFF) {
				return nil, fmt.Errorf("%d: invalid unicode escape \\u{%s}", line, hex)
			}
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], rune(cp))
			out = append(out, buf[:n]...)
			i += end
		default:
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("%d: truncated hex escape in string literal", line)
			}
			b, err := strconv.ParseUint(raw[i:i+2], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%d: invalid escape \\%s", line, raw[i:i+2])
			}
			out = append(out, byte(b))
			i++
		}
	}
	return out, nil
}

// parseString consumes a string token and decodes its escapes.
func (p *Parser) parseString() ([]byte, error) {
	t, err := p.expect(String)
	if err != nil {
		return nil, err
	}
	return decodeString(t.Text, t.Line)
}

// findOrAddType canonicalizes a signature against the module type table,
// appending it when no structurally equal entry exists.
func (p *Parser) findOrAddType(ft FuncType) uint32 {
	for i, td := range p.mod.Types {
		if td.Type.Equal(ft) {
			return uint32(i)
		}
	}
	p.mod.Types = append(p.mod.Types, TypeDef{Type: ft})
	return uint32(len(p.mod.Types) - 1)
}
