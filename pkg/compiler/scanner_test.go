package compiler

import (
	"errors"
	"strings"
	"testing"
)

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	tokens, err := newScanner("test", src).ScanAll()
	if err != nil {
		t.Fatalf("ScanAll(%q) failed: %v", src, err)
	}
	return tokens
}

func TestScan(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:     "Empty",
			input:    "",
			expected: []Token{{Kind: EOF}},
		},
		{
			name:  "Expression",
			input: "abc / 123 +cd*1",
			expected: []Token{
				{Kind: Ident, Text: "abc"},
				{Kind: Op, Text: "/"},
				{Kind: Int, Value: 123},
				{Kind: Op, Text: "+"},
				{Kind: Ident, Text: "cd"},
				{Kind: Op, Text: "*"},
				{Kind: Int, Value: 1},
				{Kind: EOF},
			},
		},
		{
			name:  "Operators",
			input: "= == != < <= > >= ( ) { } [ ] , -",
			expected: []Token{
				{Kind: Op, Text: "="},
				{Kind: Op, Text: "=="},
				{Kind: Op, Text: "!="},
				{Kind: Op, Text: "<"},
				{Kind: Op, Text: "<="},
				{Kind: Op, Text: ">"},
				{Kind: Op, Text: ">="},
				{Kind: Op, Text: "("},
				{Kind: Op, Text: ")"},
				{Kind: Op, Text: "{"},
				{Kind: Op, Text: "}"},
				{Kind: Op, Text: "["},
				{Kind: Op, Text: "]"},
				{Kind: Op, Text: ","},
				{Kind: Op, Text: "-"},
				{Kind: EOF},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "if else while print printer _tmp x1",
			expected: []Token{
				{Kind: Keyword, Text: "if"},
				{Kind: Keyword, Text: "else"},
				{Kind: Keyword, Text: "while"},
				{Kind: Keyword, Text: "print"},
				{Kind: Ident, Text: "printer"},
				{Kind: Ident, Text: "_tmp"},
				{Kind: Ident, Text: "x1"},
				{Kind: EOF},
			},
		},
		{
			name:  "Literals",
			input: `'a' '\n' "hi\tthere\"" "a\qb"`,
			expected: []Token{
				{Kind: Char, Value: 'a'},
				{Kind: Char, Value: '\n'},
				{Kind: String, Text: "hi\tthere\""},
				{Kind: String, Text: `a\qb`},
				{Kind: EOF},
			},
		},
		{
			name:  "Comments",
			input: "x # the rest is ignored = 3\ny",
			expected: []Token{
				{Kind: Ident, Text: "x"},
				{Kind: Ident, Text: "y"},
				{Kind: EOF},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanAll(t, tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d tokens, got %d: %v", len(tt.expected), len(got), got)
			}
			for i := range got {
				if !got[i].Equal(tt.expected[i]) {
					t.Errorf("token %d: expected %v (%v), got %v (%v)", i, tt.expected[i], tt.expected[i].Kind, got[i], got[i].Kind)
				}
			}
		})
	}
}

func TestScanPositions(t *testing.T) {
	tokens := scanAll(t, "x = 1\n  print x")
	want := []struct{ line, col int }{
		{1, 1}, {1, 3}, {1, 5}, {2, 3}, {2, 9},
	}
	for i, w := range want {
		if tokens[i].Pos.Line != w.line || tokens[i].Pos.Column != w.col {
			t.Errorf("token %d (%v): expected %d:%d, got %d:%d", i, tokens[i], w.line, w.col, tokens[i].Pos.Line, tokens[i].Pos.Column)
		}
	}
	if tokens[0].Pos.String() != "test:1:1" {
		t.Errorf("unexpected position string %q", tokens[0].Pos.String())
	}
}

func TestTokenIs(t *testing.T) {
	ident := Token{Kind: Ident, Text: "print"}
	if ident.Is("print") {
		t.Error("identifier must not match a keyword symbol")
	}
	op := Token{Kind: Op, Text: "+"}
	if !op.Is("+") || op.Is("-") {
		t.Error("operator comparison is wrong")
	}
	if op.Equal(Token{Kind: Ident, Text: "+"}) {
		t.Error("tokens of different kinds must not be equal")
	}
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"IllegalCharacter", "x = 1 @", "illegal character"},
		{"BareBang", "x ! y", "illegal character"},
		{"UnterminatedString", `"abc`, "unterminated string"},
		{"StringAcrossLines", "\"abc\ndef\"", "unterminated string"},
		{"EmptyChar", "''", "empty character"},
		{"UnterminatedChar", "'a", "close character literal"},
		{"WideChar", "'ab'", "close character literal"},
		{"NonASCIIChar", "'é'", "not a single ASCII character"},
		{"IntegerOverflow", "99999999999", "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newScanner("test", tt.input).ScanAll()
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			var cerr *Error
			if !errors.As(err, &cerr) || cerr.Kind != LexicalError {
				t.Fatalf("expected lexical error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("expected error containing %q, got %q", tt.msg, err.Error())
			}
		})
	}
}

func TestScanEOFRepeats(t *testing.T) {
	s := newScanner("test", "x")
	for i := 0; i < 3; i++ {
		if _, err := s.Scan(); err != nil {
			t.Fatal(err)
		}
	}
	tok, err := s.Scan()
	if err != nil || tok.Kind != EOF {
		t.Errorf("expected EOF after input, got %v, %v", tok, err)
	}
}
