package compiler

import (
	"fmt"
)

// Parser recognises the language, computes the type of every expression and
// drives the Emitter in one pass over the token stream.
//
// Grammar:
//
//	program     = statement* EOF
//	statement   = assignment | print | if | while | block
//	assignment  = IDENT ("[" expression "]")* "=" expression
//	print       = "print" expression
//	if          = "if" expression statement ("else" statement)?
//	while       = "while" expression statement
//	block       = "{" statement* "}"
//	expression  = relational
//	relational  = arithmetic (("<"|">"|"<="|">="|"=="|"!=") arithmetic)*
//	arithmetic  = product (("+"|"-") product)*
//	product     = factor (("*"|"/") factor)*
//	factor      = "-" unary | unary
//	unary       = IDENT ("[" expression "]")* | INT | CHAR | STRING
//	            | "(" expression ")" | "[" arrayCons
//	arrayCons   = "]" typeName | expression ("," expression)* ","? "]"
//	typeName    = ("[" "]")* ("int" | "char" | "string")
type Parser struct {
	scanner *Scanner
	emitter *Emitter
	locals  *Locals
	tok     Token
}

func NewParser(s *Scanner, e *Emitter) *Parser {
	return &Parser{scanner: s, emitter: e, locals: NewLocals()}
}

// Locals exposes the variable table of the compiled function.
func (p *Parser) Locals() *Locals {
	return p.locals
}

var arithmeticOps = map[string]string{
	"+": "add",
	"-": "sub",
}

var productOps = map[string]string{
	"*": "mul",
	"/": "div",
}

var relationalOps = map[string]string{
	"<":  "lt",
	">":  "gt",
	"<=": "le",
	">=": "ge",
	"==": "eq",
	"!=": "ne",
}

var typeNames = map[string]*Type{
	"int":    TypeInt,
	"char":   TypeChar,
	"string": TypeString,
}

func (p *Parser) errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{
		Kind:   kind,
		Pos:    p.tok.Pos,
		Msg:    fmt.Sprintf(format, args...),
		Source: p.scanner.LineText(p.tok.Pos.Line),
	}
}

func (p *Parser) next() error {
	tok, err := p.scanner.Scan()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// match consumes the current token if it is sym.
func (p *Parser) match(sym string) (bool, error) {
	if !p.tok.Is(sym) {
		return false, nil
	}
	return true, p.next()
}

// expect consumes sym or fails with a syntax error.
func (p *Parser) expect(sym string) error {
	if !p.tok.Is(sym) {
		return p.errorf(SyntaxError, "expected '%s', found %s", sym, p.tok)
	}
	return p.next()
}

// Top compiles the whole program as the body of main.
func (p *Parser) Top() error {
	if err := p.next(); err != nil {
		return err
	}
	p.emitter.BeginFunc("main")
	for p.tok.Kind != EOF {
		if err := p.statement(); err != nil {
			return err
		}
	}
	p.emitter.EndFunc()
	return nil
}

func (p *Parser) statement() error {
	switch {
	case p.tok.Kind == Ident:
		return p.assignment()
	case p.tok.Is("print"):
		return p.print()
	case p.tok.Is("if"):
		return p.ifStatement()
	case p.tok.Is("while"):
		return p.whileStatement()
	case p.tok.Is("{"):
		return p.block()
	}
	return p.errorf(SyntaxError, "expected statement, found %s", p.tok)
}

func (p *Parser) block() error {
	if err := p.next(); err != nil {
		return err
	}
	for !p.tok.Is("}") {
		if p.tok.Kind == EOF {
			return p.errorf(SyntaxError, "expected '}', found %s", p.tok)
		}
		if err := p.statement(); err != nil {
			return err
		}
	}
	return p.next()
}

func (p *Parser) print() error {
	if err := p.next(); err != nil {
		return err
	}
	pos := p.tok
	t, err := p.expression()
	if err != nil {
		return err
	}
	switch t.Kind {
	case KindInt:
		p.emitter.PrintInt()
	case KindChar:
		p.emitter.PrintChar()
	case KindString:
		p.emitter.PrintString()
	default:
		p.tok = pos
		return p.errorf(TypeError, "cannot print value of type %s", t)
	}
	return nil
}

// condition compiles a branch condition; it must be a scalar.
func (p *Parser) condition() error {
	start := p.tok
	t, err := p.expression()
	if err != nil {
		return err
	}
	if t.IsHeap() {
		p.tok = start
		return p.errorf(TypeError, "condition must be int or char, found %s", t)
	}
	return nil
}

func (p *Parser) ifStatement() error {
	if err := p.next(); err != nil {
		return err
	}
	if err := p.condition(); err != nil {
		return err
	}
	elseLabel := p.emitter.NewLabel()
	p.emitter.JumpIfFalse(elseLabel)
	if err := p.statement(); err != nil {
		return err
	}
	hasElse, err := p.match("else")
	if err != nil {
		return err
	}
	if !hasElse {
		p.emitter.Label(elseLabel)
		return nil
	}
	endLabel := p.emitter.NewLabel()
	p.emitter.Jump(endLabel)
	p.emitter.Label(elseLabel)
	if err := p.statement(); err != nil {
		return err
	}
	p.emitter.Label(endLabel)
	return nil
}

func (p *Parser) whileStatement() error {
	if err := p.next(); err != nil {
		return err
	}
	loopLabel := p.emitter.NewLabel()
	exitLabel := p.emitter.NewLabel()
	p.emitter.Label(loopLabel)
	if err := p.condition(); err != nil {
		return err
	}
	p.emitter.JumpIfFalse(exitLabel)
	if err := p.statement(); err != nil {
		return err
	}
	p.emitter.Jump(loopLabel)
	p.emitter.Label(exitLabel)
	return nil
}

// assignment handles both declaration and plain assignment:
//
//	x = expr
//
// If x is seen for the first time it is declared with the type of expr.
// Otherwise the type of expr must be compatible with the declared type of x,
// which never changes afterwards.
func (p *Parser) assignment() error {
	nameTok := p.tok
	if err := p.next(); err != nil {
		return err
	}
	if p.tok.Is("[") {
		return p.indexedAssignment(nameTok)
	}
	if err := p.expect("="); err != nil {
		return err
	}
	valueTok := p.tok
	t, err := p.expression()
	if err != nil {
		return err
	}

	v, ok := p.locals.Lookup(nameTok.Text)
	if !ok {
		v = p.locals.Add(nameTok.Text, t.General())
		p.emitter.Alloca(Word * p.locals.StackSize())
	} else if !Typeof(v.Type, t) {
		p.tok = valueTok
		return p.errorf(TypeError, "illegal assignment of %s to variable %s of type %s", t, v.Name, v.Type)
	}
	v.Store(p.emitter)
	return nil
}

// indexedAssignment compiles x[i] = expr. The element address is computed
// first and kept on the stack while expr is evaluated.
func (p *Parser) indexedAssignment(nameTok Token) error {
	v, err := p.lookup(nameTok)
	if err != nil {
		return err
	}
	if v.Type.Kind != KindArray {
		p.tok = nameTok
		return p.errorf(TypeError, "cannot assign to element of %s %s", v.Type, v.Name)
	}
	v.Load(p.emitter)
	t := v.Type
	for {
		if err := p.index(t); err != nil {
			return err
		}
		if !p.tok.Is("[") {
			break
		}
		if t.Elem.Kind != KindArray {
			return p.errorf(TypeError, "cannot assign to element of %s", t.Elem)
		}
		t.Elem.LoadAt(p.emitter, Word)
		t = t.Elem
	}
	p.emitter.PushPointer()

	if err := p.expect("="); err != nil {
		return err
	}
	valueTok := p.tok
	elem := t.Elem
	rt, err := p.expression()
	if err != nil {
		return err
	}
	if !Typeof(elem, rt) {
		p.tok = valueTok
		return p.errorf(TypeError, "illegal assignment of %s to element of %s %s", rt, t, v.Name)
	}
	p.emitter.PopBase("edx")
	elem.StoreAt(p.emitter, "edx", Word)
	return nil
}

// index compiles "[" expression "]" applied to the heap value of type t held
// in the pointer register. Afterwards the pointer register addresses the
// selected element minus the header.
func (p *Parser) index(t *Type) error {
	if err := p.expect("["); err != nil {
		return err
	}
	p.emitter.PushPointer()
	indexTok := p.tok
	it, err := p.expression()
	if err != nil {
		return err
	}
	if !Typeof(it, TypeInt) {
		p.tok = indexTok
		return p.errorf(TypeError, "array index must be int, found %s", it)
	}
	if err := p.expect("]"); err != nil {
		return err
	}
	p.emitter.PopPointer()
	t.AddOffset(p.emitter)
	return nil
}

func (p *Parser) lookup(tok Token) (*LocalVar, error) {
	v, ok := p.locals.Lookup(tok.Text)
	if !ok {
		p.tok = tok
		return nil, p.errorf(UnknownIdentifier, "unknown variable %s", tok.Text)
	}
	return v, nil
}

func (p *Parser) expression() (*Type, error) {
	return p.relational()
}

// binary evaluates one left-associative precedence level. The left value is
// pushed before the right operand is evaluated.
func (p *Parser) binary(ops map[string]string, operand func() (*Type, error), relational bool) (*Type, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == Op {
		name, ok := ops[p.tok.Text]
		if !ok {
			break
		}
		opTok := p.tok
		left.Push(p.emitter)
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left, err = p.operate(opTok, name, left, right, relational)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) operate(opTok Token, name string, left, right *Type, relational bool) (*Type, error) {
	result := Union(left, right)
	if result == nil {
		p.tok = opTok
		return nil, p.errorf(TypeError, "incompatible operand types %s and %s for %s", left, right, opTok.Text)
	}
	op, ok := result.Operation(name)
	if !ok {
		p.tok = opTok
		return nil, p.errorf(UnsupportedOperation, "operation %q not supported by type %s", name, result)
	}
	op(p.emitter)
	if relational {
		return TypeInt, nil
	}
	return result, nil
}

func (p *Parser) relational() (*Type, error) {
	return p.binary(relationalOps, p.arithmetic, true)
}

func (p *Parser) arithmetic() (*Type, error) {
	return p.binary(arithmeticOps, p.product, false)
}

func (p *Parser) product() (*Type, error) {
	return p.binary(productOps, p.factor, false)
}

func (p *Parser) factor() (*Type, error) {
	if !p.tok.Is("-") {
		return p.unary()
	}
	minus := p.tok
	if err := p.next(); err != nil {
		return nil, err
	}
	t, err := p.unary()
	if err != nil {
		return nil, err
	}
	op, ok := t.Operation("neg")
	if !ok {
		p.tok = minus
		return nil, p.errorf(UnsupportedOperation, "operation %q not supported by type %s", "neg", t)
	}
	op(p.emitter)
	return t, nil
}

func (p *Parser) unary() (*Type, error) {
	tok := p.tok
	switch tok.Kind {
	case Ident:
		return p.variable()
	case Int:
		p.emitter.LoadImmInt(tok.Value)
		return TypeInt.Literal(), p.next()
	case Char:
		p.emitter.LoadImmInt(tok.Value)
		return TypeChar.Literal(), p.next()
	case String:
		p.emitter.LoadAddress(p.emitter.AddString(tok.Text))
		return TypeString.Literal(), p.next()
	}

	if tok.Is("(") {
		if err := p.next(); err != nil {
			return nil, err
		}
		t, err := p.expression()
		if err != nil {
			return nil, err
		}
		return t, p.expect(")")
	}
	if tok.Is("[") {
		if err := p.next(); err != nil {
			return nil, err
		}
		return p.arrayConstructor()
	}
	return nil, p.errorf(SyntaxError, "unexpected %s", tok)
}

// variable loads a variable, applying any element selections that follow it.
func (p *Parser) variable() (*Type, error) {
	nameTok := p.tok
	v, err := p.lookup(nameTok)
	if err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	v.Load(p.emitter)
	t := v.Type
	for p.tok.Is("[") {
		elem := t.Element()
		if elem == nil {
			return nil, p.errorf(TypeError, "cannot index %s of type %s", nameTok.Text, t)
		}
		if err := p.index(t); err != nil {
			return nil, err
		}
		elem.LoadAt(p.emitter, Word)
		t = elem
	}
	return t, nil
}

// arrayConstructor compiles an array literal after its opening bracket. The
// element stores are captured first because the allocation, which needs the
// final element count, has to precede them.
func (p *Parser) arrayConstructor() (*Type, error) {
	empty, err := p.match("]")
	if err != nil {
		return nil, err
	}
	if empty {
		elem, err := p.typeName()
		if err != nil {
			return nil, err
		}
		t := ArrayOf(elem)
		t.Alloc(p.emitter, 0)
		t.SetLength(p.emitter, 0)
		return t, nil
	}

	p.emitter.Begin()
	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	elem := first.General()
	p.emitter.PeekBase("edx")
	elem.StoreAt(p.emitter, "edx", Word)

	count := 1
	for {
		done, err := p.match("]")
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		// a trailing comma is allowed
		if done, err = p.match("]"); err != nil {
			return nil, err
		} else if done {
			break
		}
		elemTok := p.tok
		t, err := p.expression()
		if err != nil {
			return nil, err
		}
		if !Typeof(elem, t) {
			p.tok = elemTok
			return nil, p.errorf(TypeError, "array element of type %s does not match element type %s", t, elem)
		}
		p.emitter.PeekBase("edx")
		elem.StoreAt(p.emitter, "edx", Word+count*elem.Sizeof())
		count++
	}
	stores := p.emitter.End()

	t := ArrayOf(elem)
	t.Alloc(p.emitter, count)
	t.SetLength(p.emitter, count)
	p.emitter.PushPointer()
	p.emitter.Splice(stores)
	p.emitter.PopPointer()
	return t, nil
}

// typeName parses the element type of an empty array literal.
func (p *Parser) typeName() (*Type, error) {
	if p.tok.Is("[") {
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		elem, err := p.typeName()
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	}
	if p.tok.Kind == Ident {
		if t, ok := typeNames[p.tok.Text]; ok {
			return t, p.next()
		}
	}
	return nil, p.errorf(SyntaxError, "expected type, found %s", p.tok)
}
