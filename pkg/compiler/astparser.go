package compiler

import (
	"fmt"
	"io"
)

// ParseAST parses a whole program into a syntax tree without generating code.
// It follows the same grammar as Parser and rejects reads of names that have
// not been assigned yet. Types are not checked.
func ParseAST(name string, src io.Reader) ([]Stmt, error) {
	s, err := NewScanner(name, src)
	if err != nil {
		return nil, err
	}
	p := &astParser{scanner: s, names: make(map[string]bool)}
	if err := p.next(); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.tok.Kind != EOF {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

type astParser struct {
	scanner *Scanner
	tok     Token
	names   map[string]bool // names declared so far
}

func (p *astParser) errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{
		Kind:   kind,
		Pos:    p.tok.Pos,
		Msg:    fmt.Sprintf(format, args...),
		Source: p.scanner.LineText(p.tok.Pos.Line),
	}
}

func (p *astParser) next() error {
	tok, err := p.scanner.Scan()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *astParser) expect(sym string) error {
	if !p.tok.Is(sym) {
		return p.errorf(SyntaxError, "expected '%s', found %s", sym, p.tok)
	}
	return p.next()
}

func (p *astParser) statement() (Stmt, error) {
	switch {
	case p.tok.Kind == Ident:
		return p.assignment()
	case p.tok.Is("print"):
		if err := p.next(); err != nil {
			return nil, err
		}
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &Print{Value: value}, nil
	case p.tok.Is("if"):
		return p.ifStatement()
	case p.tok.Is("while"):
		if err := p.next(); err != nil {
			return nil, err
		}
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		body, err := p.statement()
		if err != nil {
			return nil, err
		}
		return &While{Cond: cond, Body: body}, nil
	case p.tok.Is("{"):
		return p.block()
	}
	return nil, p.errorf(SyntaxError, "expected statement, found %s", p.tok)
}

func (p *astParser) block() (Stmt, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	b := &Block{}
	for !p.tok.Is("}") {
		if p.tok.Kind == EOF {
			return nil, p.errorf(SyntaxError, "expected '}', found %s", p.tok)
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		b.Body = append(b.Body, stmt)
	}
	return b, p.next()
}

func (p *astParser) ifStatement() (Stmt, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	then, err := p.statement()
	if err != nil {
		return nil, err
	}
	if !p.tok.Is("else") {
		return &If{Cond: cond, Then: then}, nil
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	els, err := p.statement()
	if err != nil {
		return nil, err
	}
	return &IfElse{Cond: cond, Then: then, Else: els}, nil
}

func (p *astParser) assignment() (Stmt, error) {
	nameTok := p.tok
	if err := p.next(); err != nil {
		return nil, err
	}

	var target Expr = &Identifier{Name: nameTok.Text}
	if p.tok.Is("[") {
		if !p.names[nameTok.Text] {
			p.tok = nameTok
			return nil, p.errorf(UnknownIdentifier, "unknown variable %s", nameTok.Text)
		}
		var err error
		if target, err = p.selections(target); err != nil {
			return nil, err
		}
	}
	if err := p.expect("="); err != nil {
		return nil, err
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}

	if id, ok := target.(*Identifier); ok && !p.names[id.Name] {
		p.names[id.Name] = true
		return &Declare{Name: id.Name, Value: value}, nil
	}
	return &Assign{Target: target, Value: value}, nil
}

// selections parses any number of trailing [index] on left.
func (p *astParser) selections(left Expr) (Expr, error) {
	for p.tok.Is("[") {
		if err := p.next(); err != nil {
			return nil, err
		}
		index, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		left = &Index{Left: left, Index: index}
	}
	return left, nil
}

func (p *astParser) expression() (Expr, error) {
	return p.binary(relationalOps, p.arithmetic)
}

func (p *astParser) arithmetic() (Expr, error) {
	return p.binary(arithmeticOps, p.product)
}

func (p *astParser) product() (Expr, error) {
	return p.binary(productOps, p.factor)
}

func (p *astParser) binary(ops map[string]string, operand func() (Expr, error)) (Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == Op {
		if _, ok := ops[p.tok.Text]; !ok {
			break
		}
		op := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *astParser) factor() (Expr, error) {
	if !p.tok.Is("-") {
		return p.unary()
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	operand, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &UnaryNeg{Operand: operand}, nil
}

func (p *astParser) unary() (Expr, error) {
	tok := p.tok
	switch tok.Kind {
	case Ident:
		if !p.names[tok.Text] {
			return nil, p.errorf(UnknownIdentifier, "unknown variable %s", tok.Text)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return p.selections(&Identifier{Name: tok.Text})
	case Int:
		return &IntLit{Value: tok.Value}, p.next()
	case Char:
		return &CharLit{Value: tok.Value}, p.next()
	case String:
		return &StringLit{Value: tok.Text}, p.next()
	}

	if tok.Is("(") {
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		return e, p.expect(")")
	}
	if tok.Is("[") {
		if err := p.next(); err != nil {
			return nil, err
		}
		return p.arrayConstructor()
	}
	return nil, p.errorf(SyntaxError, "unexpected %s", tok)
}

func (p *astParser) arrayConstructor() (Expr, error) {
	if p.tok.Is("]") {
		if err := p.next(); err != nil {
			return nil, err
		}
		elem, err := p.typeName()
		if err != nil {
			return nil, err
		}
		return &ArrayInit{Elem: elem}, nil
	}

	lit := &ArrayLiteral{}
	for {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, e)
		if p.tok.Is("]") {
			break
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		if p.tok.Is("]") {
			break
		}
	}
	return lit, p.next()
}

func (p *astParser) typeName() (*Type, error) {
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
