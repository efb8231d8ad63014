package wast

import (
	"fmt"
)

// Kind classifies a single lexical token.
type Kind int

const (
	LParen Kind = iota
	RParen
	Ident
	Number
	String
)

func (k Kind) String() string {
	switch k {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	}
	return "unknown"
}

// Token is one lexical unit of a text-format source. String tokens hold the
// raw content between the quotes with escape sequences still encoded.
type Token struct {
	Text string
	Kind Kind
	Line int
}

type scanner struct {
	src  string
	pos  int
	line int
}

// Tokenize splits source text into tokens, stripping line and nested block
// comments. It fails on unterminated strings or comments and on characters
// that cannot start a token, so malformed input surfaces here rather than
// as a confusing parse error downstream.
func Tokenize(src string) ([]Token, error) {
	s := &scanner{src: src, line: 1}
	var tokens []Token

	for s.pos < len(s.src) {
		c := s.src[s.pos]

		switch {
		case c == '\n':
			s.line++
			s.pos++

		case c == ' ' || c == '\t' || c == '\r':
			s.pos++

		case c == ';':
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == ';' {
				s.skipLineComment()
				continue
			}
			return nil, fmt.Errorf("%d: unexpected character ';'", s.line)

		case c == '(':
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == ';' {
				if err := s.skipBlockComment(); err != nil {
					return nil, err
				}
				continue
			}
			tokens = append(tokens, Token{"(", LParen, s.line})
			s.pos++

		case c == ')':
			tokens = append(tokens, Token{")", RParen, s.line})
			s.pos++

		case c == '"':
			tok, err := s.scanString()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)

		default:
			tok, err := s.scanWord()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	}

	return tokens, nil
}

func (s *scanner) skipLineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

func (s *scanner) skipBlockComment() error {
	start := s.line
	depth := 1
	s.pos += 2
	for s.pos < len(s.src) {
		switch {
		case s.src[s.pos] == '(' && s.pos+1 < len(s.src) && s.src[s.pos+1] == ';':
			depth++
			s.pos += 2
		case s.src[s.pos] == ';' && s.pos+1 < len(s.src) && s.src[s.pos+1] == ')':
			depth--
			s.pos += 2
			if depth == 0 {
				return nil
			}
		default:
			if s.src[s.pos] == '\n' {
				s.line++
			}
			s.pos++
		}
	}
	return fmt.Errorf("%d: unterminated block comment", start)
}

// scanString captures the raw bytes between the quotes. Escape sequences are
// kept verbatim; a backslash always shields the following byte so an escaped
// quote does not end the literal. Decoding happens in decodeString.
func (s *scanner) scanString() (Token, error) {
	startLine := s.line
	s.pos++
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '"' {
			tok := Token{s.src[start:s.pos], String, startLine}
			s.pos++
			return tok, nil
		}
		if c == '\\' {
			s.pos += 2
			continue
		}
		if c < 0x20 || c == 0x7F {
			return Token{}, fmt.Errorf("%d: control character in string literal", startLine)
		}
		s.pos++
	}
	return Token{}, fmt.Errorf("%d: unterminated string literal", startLine)
}

func isWordDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', '"', ';':
		return true
	}
	return false
}

// scanWord consumes a maximal run of non-delimiter bytes and classifies it.
// Hex float literals such as 0x1p+63 keep their interior sign characters
// because only whitespace, parens, quotes and semicolons end a word.
func (s *scanner) scanWord() (Token, error) {
	start := s.pos
	for s.pos < len(s.src) && !isWordDelim(s.src[s.pos]) {
		s.pos++
	}
	word := s.src[start:s.pos]

	c := word[0]
	if c >= '0' && c <= '9' {
		return Token{word, Number, s.line}, nil
	}
	if (c == '+' || c == '-') && len(word) > 1 {
		if word[1] >= '0' && word[1] <= '9' {
			return Token{word, Number, s.line}, nil
		}
		// Signed inf and nan forms read as identifiers, same as their
		// unsigned spellings.
		return Token{word, Ident, s.line}, nil
	}
	if c == '$' || c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return Token{word, Ident, s.line}, nil
	}
	return Token{}, fmt.Errorf("%d: unexpected character %q", s.line, string(c))
}
