package compiler

import (
	"errors"
	"strings"
	"testing"
)

func TestParseAST(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected []string
	}{
		{
			name:     "Declaration",
			src:      "x = 1 + 2 * 3",
			expected: []string{"Declare(x = (1 + (2 * 3)))"},
		},
		{
			name:     "Reassignment",
			src:      "x = 1 x = -x",
			expected: []string{"Declare(x = 1)", "Assign(x = (- x))"},
		},
		{
			name:     "LeftAssociative",
			src:      "x = 10 - 3 - 2 < 8 / 2 / 2",
			expected: []string{"Declare(x = (((10 - 3) - 2) < ((8 / 2) / 2)))"},
		},
		{
			name:     "Arrays",
			src:      "a = [[1, 2], [3],] a[0][1] = a[1][0] e = [] []int",
			expected: []string{"Declare(a = [[1, 2], [3]])", "Assign(a[0][1] = a[1][0])", "Declare(e = [] []int)"},
		},
		{
			name:     "Literals",
			src:      `s = "hi" c = 'x' print s print c`,
			expected: []string{`Declare(s = "hi")`, `Declare(c = 'x')`, `Print(s)`, `Print(c)`},
		},
		{
			name:     "ControlFlow",
			src:      "x = 0 while x < 3 { if x == 1 print x else print 0 x = x + 1 } if x print x",
			expected: []string{"Declare(x = 0)", "While((x < 3)) { If((x == 1)) Print(x) Else Print(0); Assign(x = (x + 1)) }", "If(x) Print(x)"},
		},
		{
			name:     "Empty",
			src:      "# nothing here\n",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := ParseAST("test", strings.NewReader(tt.src))
			if err != nil {
				t.Fatalf("ParseAST failed: %v", err)
			}
			if len(stmts) != len(tt.expected) {
				t.Fatalf("expected %d statements, got %d: %v", len(tt.expected), len(stmts), stmts)
			}
			for i, s := range stmts {
				if s.String() != tt.expected[i] {
					t.Errorf("statement %d: expected %s, got %s", i, tt.expected[i], s)
				}
			}
		})
	}
}

func TestParseASTNodes(t *testing.T) {
	stmts, err := ParseAST("test", strings.NewReader("a = [1] a[0] = 2"))
	if err != nil {
		t.Fatal(err)
	}
	decl, ok := stmts[0].(*Declare)
	if !ok {
		t.Fatalf("expected *Declare, got %T", stmts[0])
	}
	if _, ok := decl.Value.(*ArrayLiteral); !ok {
		t.Errorf("expected *ArrayLiteral, got %T", decl.Value)
	}
	assign, ok := stmts[1].(*Assign)
	if !ok {
		t.Fatalf("expected *Assign, got %T", stmts[1])
	}
	idx, ok := assign.Target.(*Index)
	if !ok {
		t.Fatalf("expected *Index target, got %T", assign.Target)
	}
	if id, ok := idx.Left.(*Identifier); !ok || id.Name != "a" {
		t.Errorf("unexpected index base %v", idx.Left)
	}
}

func TestParseASTErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
	}{
		{"Unknown", "print x", UnknownIdentifier},
		{"SelfReference", "x = x", UnknownIdentifier},
		{"UnknownIndexed", "a[0] = 1", UnknownIdentifier},
		{"MissingBracket", "a = [1 2]", SyntaxError},
		{"MissingType", "a = []", SyntaxError},
		{"Lexical", "x = 'ab'", LexicalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAST("test", strings.NewReader(tt.src))
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cerr.Kind != tt.kind {
				t.Errorf("expected %v, got %v", tt.kind, cerr.Kind)
			}
		})
	}
}
