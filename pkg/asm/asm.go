package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// DataBase is the address at which the data section is loaded.
const DataBase = 0x1000

var lexdef = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: `"(\\.|[^"\\\n])*"`},
	{Name: "Label", Pattern: `[A-Za-z_][A-Za-z0-9_.]*:`},
	{Name: "Directive", Pattern: `\.[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Register", Pattern: `%[a-z]+`},
	{Name: "Int", Pattern: `[-+]?\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Punct", Pattern: `[$(),]`},
	{Name: "EOL", Pattern: `\n`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
})

var parser = participle.MustBuild[file](
	participle.Lexer(lexdef),
	participle.Elide("Comment", "Whitespace"),
)

type file struct {
	Lines []*line `@@*`
}

type line struct {
	Pos lexer.Position

	Labels      []string     `@Label*`
	Directive   *directive   `( @@`
	Instruction *instruction `| @@ )? EOL`
}

type directive struct {
	Name string `@Directive`
	Args []*arg `( @@ ( "," @@ )* )?`
}

// byteString is a string literal decoded to raw bytes. Octal and hex escapes
// name single bytes, not code points.
type byteString string

func (s *byteString) Capture(values []string) error {
	v, err := strconv.Unquote(values[0])
	if err != nil {
		return fmt.Errorf("invalid string literal %s", values[0])
	}
	*s = byteString(v)
	return nil
}

type arg struct {
	String *byteString `  @String`
	Number *int        `| @Int`
	Symbol string      `| @( Directive | Ident )`
}

type instruction struct {
	Mnemonic string     `@Ident`
	Operands []*operand `( @@ ( "," @@ )* )?`
}

type operand struct {
	Immediate *value  `  "$" @@`
	Register  string  `| @Register`
	Memory    *memory `| @@`
}

type value struct {
	Number *int   `  @Int`
	Symbol string `| @Ident`
}

// memory is disp(base), disp, or (base).
type memory struct {
	Disp     *value `( @@`
	Base     string `  ( "(" @Register ")" )?`
	Indirect string `| "(" @Register ")" )`
}

// OperandKind says how an operand is addressed.
type OperandKind int

const (
	Immediate OperandKind = iota // $n or $symbol
	Register                     // %reg
	Memory                       // disp(%base) or absolute disp
	Target                       // branch or call destination
)

// Operand is a resolved instruction operand.
type Operand struct {
	Kind   OperandKind
	Reg    string // register name without '%' (Register, and base of Memory)
	Value  int32  // immediate value, or displacement of Memory
	Symbol string // destination name of a Target
	Index  int    // instruction index of a Target, -1 when external
}

func (o Operand) String() string {
	switch o.Kind {
	case Immediate:
		return fmt.Sprintf("$%d", o.Value)
	case Register:
		return "%" + o.Reg
	case Memory:
		if o.Reg == "" {
			return fmt.Sprintf("%d", o.Value)
		}
		return fmt.Sprintf("%d(%%%s)", o.Value, o.Reg)
	}
	return o.Symbol
}

// Instr is one decoded instruction.
type Instr struct {
	Op       string
	Operands []Operand
	Line     int
}

func (i Instr) String() string {
	ops := make([]string, len(i.Operands))
	for n, o := range i.Operands {
		ops[n] = o.String()
	}
	return strings.TrimSpace(i.Op + " " + strings.Join(ops, ","))
}

// Image is an assembled program: decoded text plus an initialised data
// section loaded at DataBase.
type Image struct {
	Text     []Instr
	Data     []byte
	DataBase uint32
	Symbols  map[string]uint32 // data label -> address
	Labels   map[string]int    // text label -> instruction index
	Globals  []string
}

// arity lists the accepted mnemonics with their minimum and maximum operand
// counts.
var arity = map[string][2]int{
	"movl":   {2, 2},
	"movb":   {2, 2},
	"movzbl": {2, 2},
	"leal":   {2, 2},
	"pushl":  {1, 1},
	"popl":   {1, 1},
	"addl":   {2, 2},
	"subl":   {2, 2},
	"imull":  {1, 2},
	"idivl":  {1, 1},
	"cdq":    {0, 0},
	"negl":   {1, 1},
	"orl":    {2, 2},
	"andl":   {2, 2},
	"xorl":   {2, 2},
	"cmpl":   {2, 2},
	"shll":   {2, 2},
	"setl":   {1, 1},
	"setg":   {1, 1},
	"setle":  {1, 1},
	"setge":  {1, 1},
	"sete":   {1, 1},
	"setne":  {1, 1},
	"jmp":    {1, 1},
	"je":     {1, 1},
	"jne":    {1, 1},
	"jl":     {1, 1},
	"jg":     {1, 1},
	"jle":    {1, 1},
	"jge":    {1, 1},
	"jb":     {1, 1},
	"jae":    {1, 1},
	"call":   {1, 1},
	"ret":    {0, 0},
	"leave":  {0, 0},
	"nop":    {0, 0},
}

// IsBranch reports whether op takes a code destination.
func IsBranch(op string) bool {
	return op == "call" || strings.HasPrefix(op, "j")
}

type section int

const (
	textSection section = iota
	dataSection
)

type Assembler struct {
	labels  map[string]int
	symbols map[string]uint32
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels:  make(map[string]int),
		symbols: make(map[string]uint32),
	}
}

func Assemble(code string) (*Image, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Image, error) {
	f, err := parser.ParseString("", code+"\n")
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	if err := a.pass1(f.Lines); err != nil {
		return nil, err
	}
	return a.pass2(f.Lines)
}

// pass1 assigns every label an address (data) or instruction index (text).
func (a *Assembler) pass1(lines []*line) error {
	sect := textSection
	var size uint32
	count := 0

	for _, l := range lines {
		lineNo := l.Pos.Line
		for _, raw := range l.Labels {
			lbl := strings.TrimSuffix(raw, ":")
			if a.defined(lbl) {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			if sect == textSection {
				a.labels[lbl] = count
			} else {
				a.symbols[lbl] = DataBase + size
			}
		}

		switch {
		case l.Directive != nil:
			var err error
			sect, err = switchSection(sect, l.Directive)
			if err != nil {
				return fmt.Errorf("%w on line %d", err, lineNo)
			}
			n, err := dataSize(l.Directive, size)
			if err != nil {
				return fmt.Errorf("%w on line %d", err, lineNo)
			}
			if n > 0 && sect != dataSection {
				return fmt.Errorf("%s outside data section on line %d", l.Directive.Name, lineNo)
			}
			size += n
		case l.Instruction != nil:
			if sect != textSection {
				return fmt.Errorf("instruction outside .text on line %d: %s", lineNo, l.Instruction.Mnemonic)
			}
			count++
		}
	}
	return nil
}

func (a *Assembler) defined(lbl string) bool {
	_, inText := a.labels[lbl]
	_, inData := a.symbols[lbl]
	return inText || inData
}

func switchSection(cur section, d *directive) (section, error) {
	switch d.Name {
	case ".text":
		return textSection, nil
	case ".data", ".cstring", ".rodata":
		return dataSection, nil
	case ".section":
		if len(d.Args) == 0 || d.Args[0].Symbol == "" {
			return cur, fmt.Errorf(".section expects a name")
		}
		if d.Args[0].Symbol == ".text" {
			return textSection, nil
		}
		return dataSection, nil
	}
	return cur, nil
}

// dataSize returns the number of bytes d adds at offset.
func dataSize(d *directive, offset uint32) (uint32, error) {
	switch d.Name {
	case ".long":
		return uint32(4 * len(d.Args)), nil
	case ".byte":
		return uint32(len(d.Args)), nil
	case ".ascii", ".asciz":
		var n uint32
		for _, a := range d.Args {
			if a.String == nil {
				return 0, fmt.Errorf("%s expects string operands", d.Name)
			}
			n += uint32(len(*a.String))
			if d.Name == ".asciz" {
				n++
			}
		}
		return n, nil
	case ".align":
		if len(d.Args) != 1 || d.Args[0].Number == nil || *d.Args[0].Number <= 0 {
			return 0, fmt.Errorf(".align expects a positive number")
		}
		align := uint32(*d.Args[0].Number)
		return (align - offset%align) % align, nil
	case ".globl", ".text", ".data", ".section", ".cstring", ".rodata":
		return 0, nil
	}
	return 0, fmt.Errorf("unknown directive %s", d.Name)
}

// pass2 emits data bytes and decodes instructions with resolved operands.
func (a *Assembler) pass2(lines []*line) (*Image, error) {
	img := &Image{
		DataBase: DataBase,
		Symbols:  a.symbols,
		Labels:   a.labels,
	}

	for _, l := range lines {
		lineNo := l.Pos.Line
		if d := l.Directive; d != nil {
			if d.Name == ".globl" {
				for _, g := range d.Args {
					img.Globals = append(img.Globals, g.Symbol)
				}
				continue
			}
			data, err := a.emitData(d, uint32(len(img.Data)))
			if err != nil {
				return nil, fmt.Errorf("%w on line %d", err, lineNo)
			}
			img.Data = append(img.Data, data...)
			continue
		}
		if l.Instruction == nil {
			continue
		}

		instr, err := a.decode(l.Instruction)
		if err != nil {
			return nil, fmt.Errorf("%w on line %d", err, lineNo)
		}
		instr.Line = lineNo
		img.Text = append(img.Text, instr)
	}

	return img, nil
}

func (a *Assembler) emitData(d *directive, offset uint32) ([]byte, error) {
	var out []byte
	switch d.Name {
	case ".long":
		for _, arg := range d.Args {
			v, err := a.argValue(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		}
	case ".byte":
		for _, arg := range d.Args {
			v, err := a.argValue(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(v))
		}
	case ".ascii", ".asciz":
		for _, arg := range d.Args {
			out = append(out, string(*arg.String)...)
			if d.Name == ".asciz" {
				out = append(out, 0)
			}
		}
	case ".align":
		n, _ := dataSize(d, offset)
		out = make([]byte, n)
	}
	return out, nil
}

func (a *Assembler) argValue(arg *arg) (int32, error) {
	switch {
	case arg.Number != nil:
		return int32(*arg.Number), nil
	case arg.Symbol != "":
		if addr, ok := a.symbols[arg.Symbol]; ok {
			return int32(addr), nil
		}
		return 0, fmt.Errorf("undefined symbol '%s'", arg.Symbol)
	}
	return 0, fmt.Errorf("expected number or symbol")
}

func (a *Assembler) decode(in *instruction) (Instr, error) {
	op := in.Mnemonic
	n, ok := arity[op]
	if !ok {
		return Instr{}, fmt.Errorf("unknown instruction %s", op)
	}
	if len(in.Operands) < n[0] || len(in.Operands) > n[1] {
		if n[0] == n[1] {
			return Instr{}, fmt.Errorf("%s expects %d operands", op, n[0])
		}
		return Instr{}, fmt.Errorf("%s expects %d to %d operands", op, n[0], n[1])
	}

	instr := Instr{Op: op}
	for _, o := range in.Operands {
		var (
			resolved Operand
			err      error
		)
		if IsBranch(op) {
			resolved, err = a.target(op, o)
		} else {
			resolved, err = a.operand(o)
		}
		if err != nil {
			return Instr{}, err
		}
		instr.Operands = append(instr.Operands, resolved)
	}
	return instr, nil
}

// target resolves the destination of a branch or call. Calls may name
// routines that are not defined in the program; those are left external.
func (a *Assembler) target(op string, o *operand) (Operand, error) {
	if o.Memory == nil || o.Memory.Disp == nil || o.Memory.Disp.Symbol == "" || o.Memory.Base != "" {
		return Operand{}, fmt.Errorf("%s expects a label", op)
	}
	name := o.Memory.Disp.Symbol
	if idx, ok := a.labels[name]; ok {
		return Operand{Kind: Target, Symbol: name, Index: idx}, nil
	}
	if op != "call" {
		return Operand{}, fmt.Errorf("undefined label '%s'", name)
	}
	return Operand{Kind: Target, Symbol: name, Index: -1}, nil
}

func (a *Assembler) operand(o *operand) (Operand, error) {
	switch {
	case o.Immediate != nil:
		v, err := a.resolve(o.Immediate)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: Immediate, Value: v}, nil
	case o.Register != "":
		return Operand{Kind: Register, Reg: strings.TrimPrefix(o.Register, "%")}, nil
	}

	m := o.Memory
	res := Operand{Kind: Memory, Reg: strings.TrimPrefix(m.Base+m.Indirect, "%")}
	if m.Disp != nil {
		v, err := a.resolve(m.Disp)
		if err != nil {
			return Operand{}, err
		}
		res.Value = v
	}
	return res, nil
}

func (a *Assembler) resolve(v *value) (int32, error) {
	if v.Number != nil {
		return int32(*v.Number), nil
	}
	if addr, ok := a.symbols[v.Symbol]; ok {
		return int32(addr), nil
	}
	if _, ok := a.labels[v.Symbol]; ok {
		return 0, fmt.Errorf("cannot take the address of code label '%s'", v.Symbol)
	}
	return 0, fmt.Errorf("undefined symbol '%s'", v.Symbol)
}
