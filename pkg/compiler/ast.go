package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	String() string
}

// IntLit is an integer constant.
//
//	x = 10
//	    ^^  IntLit{Value: 10}
type IntLit struct {
	Value int32
}

func (*IntLit) exprNode()        {}
func (l *IntLit) String() string { return fmt.Sprintf("%d", l.Value) }

// CharLit is a character constant 'c'.
type CharLit struct {
	Value int32
}

func (*CharLit) exprNode()        {}
func (l *CharLit) String() string { return fmt.Sprintf("%q", rune(l.Value)) }

// StringLit is a string constant "...".
type StringLit struct {
	Value string
}

func (*StringLit) exprNode()        {}
func (s *StringLit) String() string { return fmt.Sprintf("%q", s.Value) }

// Identifier is a read of a named variable.
type Identifier struct {
	Name string
}

func (*Identifier) exprNode()        {}
func (i *Identifier) String() string { return i.Name }

// BinaryOp represents Left Op Right for arithmetic and relational operators.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryOp struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryOp) exprNode() {}
func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryNeg is -Operand.
type UnaryNeg struct {
	Operand Expr
}

func (*UnaryNeg) exprNode()        {}
func (u *UnaryNeg) String() string { return fmt.Sprintf("(- %s)", u.Operand) }

// Index selects one element: Left[Index]. Chained selections nest.
//
//	a[i][j]  →  Index{Left: Index{Left: a, Index: i}, Index: j}
type Index struct {
	Left  Expr
	Index Expr
}

func (*Index) exprNode()        {}
func (e *Index) String() string { return fmt.Sprintf("%s[%s]", e.Left, e.Index) }

// ArrayLiteral is [e1, e2, ...] with at least one element.
type ArrayLiteral struct {
	Elements []Expr
}

func (*ArrayLiteral) exprNode() {}
func (l *ArrayLiteral) String() string {
	parts := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ArrayInit is the empty array literal, which names its element type.
//
//	[] int
type ArrayInit struct {
	Elem *Type
}

func (*ArrayInit) exprNode()        {}
func (a *ArrayInit) String() string { return "[] " + a.Elem.String() }

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

// Declare is the first assignment to a name, which introduces it.
type Declare struct {
	Name  string
	Value Expr
}

func (*Declare) stmtNode() {}
func (d *Declare) String() string {
	return fmt.Sprintf("Declare(%s = %s)", d.Name, d.Value)
}

// Assign stores into an existing variable or an element of one. Target is an
// *Identifier or an *Index.
type Assign struct {
	Target Expr
	Value  Expr
}

func (*Assign) stmtNode() {}
func (a *Assign) String() string {
	return fmt.Sprintf("Assign(%s = %s)", a.Target, a.Value)
}

type Print struct {
	Value Expr
}

func (*Print) stmtNode()        {}
func (p *Print) String() string { return fmt.Sprintf("Print(%s)", p.Value) }

type If struct {
	Cond Expr
	Then Stmt
}

func (*If) stmtNode() {}
func (s *If) String() string {
	return fmt.Sprintf("If(%s) %s", s.Cond, s.Then)
}

type IfElse struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

func (*IfElse) stmtNode() {}
func (s *IfElse) String() string {
	return fmt.Sprintf("If(%s) %s Else %s", s.Cond, s.Then, s.Else)
}

type While struct {
	Cond Expr
	Body Stmt
}

func (*While) stmtNode() {}
func (s *While) String() string {
	return fmt.Sprintf("While(%s) %s", s.Cond, s.Body)
}

// Block is { stmt* }. Blocks do not open a new scope.
type Block struct {
	Body []Stmt
}

func (*Block) stmtNode() {}
func (b *Block) String() string {
	parts := make([]string, len(b.Body))
	for i, s := range b.Body {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}
