package compiler

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// lineComment starts a comment that runs to end of line.
const lineComment = '#'

// Scanner turns source text into tokens on demand. It holds all mutable state
// for a single pass; tokens are produced one Scan at a time and never buffered.
type Scanner struct {
	name  string
	src   []rune
	lines []string
	pos   int // index of the next rune to consume
	line  int // current 1-based line
	col   int // 1-based column of the next rune
}

// NewScanner reads all of r and prepares it for scanning. name is used in
// diagnostics only.
func NewScanner(name string, r io.Reader) (*Scanner, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return newScanner(name, string(data)), nil
}

func newScanner(name, src string) *Scanner {
	return &Scanner{
		name:  name,
		src:   []rune(src),
		lines: strings.Split(src, "\n"),
		line:  1,
		col:   1,
	}
}

// Pos returns the current scanning position together with the full text of
// the current line.
func (s *Scanner) Pos() (Position, string) {
	return s.position(), s.LineText(s.line)
}

// LineText returns the raw text of the 1-based line n, or "" when out of range.
func (s *Scanner) LineText(n int) string {
	if n < 1 || n > len(s.lines) {
		return ""
	}
	return strings.TrimRight(s.lines[n-1], "\r")
}

func (s *Scanner) position() Position {
	return Position{File: s.name, Line: s.line, Column: s.col}
}

func (s *Scanner) peek() rune {
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

func (s *Scanner) atEnd() bool {
	return s.pos >= len(s.src)
}

// advance consumes one rune and returns it.
func (s *Scanner) advance() rune {
	if s.atEnd() {
		return 0
	}
	r := s.src[s.pos]
	s.pos++
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *Scanner) errorAt(pos Position, format string, args ...any) error {
	return &Error{
		Kind:   LexicalError,
		Pos:    pos,
		Msg:    fmt.Sprintf(format, args...),
		Source: s.LineText(pos.Line),
	}
}

// skipWhite discards whitespace and line comments.
func (s *Scanner) skipWhite() {
	for !s.atEnd() {
		r := s.peek()
		switch {
		case unicode.IsSpace(r):
			s.advance()
		case r == lineComment:
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		default:
			return
		}
	}
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Scan consumes exactly the next lexical unit. At end of input it keeps
// returning an EOF token.
func (s *Scanner) Scan() (Token, error) {
	s.skipWhite()
	start := s.position()
	if s.atEnd() {
		return Token{Kind: EOF, Pos: start}, nil
	}

	r := s.peek()
	switch {
	case isDigit(r):
		return s.scanNumber(start)
	case isLetter(r):
		return s.scanIdentifier(start), nil
	case r == '"':
		return s.scanString(start)
	case r == '\'':
		return s.scanChar(start)
	}

	s.advance()
	switch r {
	case '+', '-', '*', '/', '(', ')', '{', '}', '[', ']', ',':
		return Token{Kind: Op, Text: string(r), Pos: start}, nil
	case '<', '>', '=':
		if s.peek() == '=' {
			s.advance()
			return Token{Kind: Op, Text: string(r) + "=", Pos: start}, nil
		}
		return Token{Kind: Op, Text: string(r), Pos: start}, nil
	case '!':
		if s.peek() == '=' {
			s.advance()
			return Token{Kind: Op, Text: "!=", Pos: start}, nil
		}
	}
	return Token{}, s.errorAt(start, "illegal character %q", r)
}

func (s *Scanner) scanNumber(start Position) (Token, error) {
	from := s.pos
	for isDigit(s.peek()) {
		s.advance()
	}
	lexeme := string(s.src[from:s.pos])
	val, err := strconv.ParseInt(lexeme, 10, 32)
	if err != nil {
		return Token{}, s.errorAt(start, "integer literal %s out of range", lexeme)
	}
	return Token{Kind: Int, Text: lexeme, Value: int32(val), Pos: start}, nil
}

func (s *Scanner) scanIdentifier(start Position) Token {
	from := s.pos
	for isLetter(s.peek()) || isDigit(s.peek()) {
		s.advance()
	}
	name := string(s.src[from:s.pos])
	if keywords[name] {
		return Token{Kind: Keyword, Text: name, Pos: start}
	}
	return Token{Kind: Ident, Text: name, Pos: start}
}

// scanEscape decodes the escape sequence whose backslash is at s.peek().
// Unknown escapes keep the backslash.
func (s *Scanner) scanEscape() string {
	s.advance() // backslash
	r := s.peek()
	switch r {
	case '\\':
		s.advance()
		return "\\"
	case 'n':
		s.advance()
		return "\n"
	case 't':
		s.advance()
		return "\t"
	case '"':
		s.advance()
		return "\""
	case 0, '\n':
		return "\\"
	}
	s.advance()
	return "\\" + string(r)
}

func (s *Scanner) scanString(start Position) (Token, error) {
	s.advance() // opening quote
	var sb strings.Builder
	for {
		if s.atEnd() || s.peek() == '\n' {
			return Token{}, s.errorAt(start, "unterminated string literal")
		}
		r := s.peek()
		if r == '"' {
			s.advance()
			break
		}
		if r == '\\' {
			sb.WriteString(s.scanEscape())
			continue
		}
		sb.WriteRune(s.advance())
	}
	return Token{Kind: String, Text: sb.String(), Pos: start}, nil
}

func (s *Scanner) scanChar(start Position) (Token, error) {
	s.advance() // opening quote
	var text string
	switch r := s.peek(); {
	case s.atEnd() || r == '\n':
		return Token{}, s.errorAt(start, "unterminated character literal")
	case r == '\'':
		return Token{}, s.errorAt(start, "empty character literal")
	case r == '\\':
		text = s.scanEscape()
	default:
		text = string(s.advance())
	}
	if s.peek() != '\'' {
		return Token{}, s.errorAt(start, "expected \"'\" to close character literal, found %q", s.peek())
	}
	s.advance()

	// Strings hold UTF-8 bytes, so a char is restricted to what fits in one.
	if len(text) != 1 || text[0] >= utf8.RuneSelf {
		return Token{}, s.errorAt(start, "character literal %q is not a single ASCII character", text)
	}
	return Token{Kind: Char, Text: text, Value: int32(text[0]), Pos: start}, nil
}

// ScanAll tokenises the whole input, including the final EOF token.
func (s *Scanner) ScanAll() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := s.Scan()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			return tokens, nil
		}
	}
}
