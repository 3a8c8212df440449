package compiler

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a compile failure.
type ErrorKind int

const (
	LexicalError ErrorKind = iota + 1
	SyntaxError
	TypeError
	UnknownIdentifier
	UnsupportedOperation
)

func (k ErrorKind) String() string {
	switch k {
	case LexicalError:
		return "lexical error"
	case SyntaxError:
		return "syntax error"
	case TypeError:
		return "type error"
	case UnknownIdentifier:
		return "unknown identifier"
	case UnsupportedOperation:
		return "unsupported operation"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the single failure a compilation can produce. Nothing is
// recovered: the first Error aborts the whole compilation.
type Error struct {
	Kind   ErrorKind
	Pos    Position
	Msg    string
	Source string // raw text of the offending line, if known
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Msg)
	if src := strings.TrimSpace(e.Source); src != "" {
		s += "\n  |> " + src
	}
	return s
}
