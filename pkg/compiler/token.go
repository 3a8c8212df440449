package compiler

import "fmt"

// TokenKind identifies the category of a scanned token.
type TokenKind int

const (
	EOF     TokenKind = iota // sentinel: end of input
	Ident                    // variable name
	Keyword                  // if, else, while, print
	Int                      // decimal integer literal
	Char                     // 'c'
	String                   // "..."
	Op                       // operator or punctuation
)

var tokenKindNames = [...]string{
	EOF:     "EOF",
	Ident:   "IDENT",
	Keyword: "KEYWORD",
	Int:     "INT",
	Char:    "CHAR",
	String:  "STRING",
	Op:      "OP",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// keywords is the closed set of reserved words.
var keywords = map[string]bool{
	"if":    true,
	"else":  true,
	"while": true,
	"print": true,
}

// Position locates a token in its source.
type Position struct {
	File   string
	Line   int // 1-based
	Column int // 1-based, counted in runes
}

func (p Position) String() string {
	file := p.File
	if file == "" {
		file = "<stdin>"
	}
	return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Column)
}

// Token is a single lexical unit produced by the Scanner. Tokens are values
// and never change once scanned.
//
// Text holds the identifier, keyword, operator or decoded string contents.
// Value holds the integer literal or the character code.
type Token struct {
	Kind  TokenKind
	Text  string
	Value int32
	Pos   Position
}

// Is reports whether t is the operator or keyword sym. Identifiers and
// literals never match a raw symbol, so an identifier named "print" cannot be
// mistaken for the keyword.
func (t Token) Is(sym string) bool {
	return (t.Kind == Op || t.Kind == Keyword) && t.Text == sym
}

// Equal compares kind and payload, ignoring position.
func (t Token) Equal(o Token) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case Int, Char:
		return t.Value == o.Value
	case EOF:
		return true
	default:
		return t.Text == o.Text
	}
}

func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "end of input"
	case Int:
		return fmt.Sprintf("%d", t.Value)
	case Char:
		return fmt.Sprintf("%q", rune(t.Value))
	case String:
		return fmt.Sprintf("%q", t.Text)
	case Op:
		return fmt.Sprintf("'%s'", t.Text)
	default:
		return t.Text
	}
}
