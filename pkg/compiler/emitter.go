package compiler

import (
	"fmt"
	"io"
	"strings"
)

// Word is the machine word size of the target in bytes.
const Word = 4

// boundsLabel names the routine that indexing jumps to on a failed bounds check.
const boundsLabel = "__bounds_error"

// Format labels of the fixed print-format table.
const (
	formatInt    = "FormatInt"
	formatChar   = "FormatChar"
	formatString = "FormatString"
)

// Buffer is an ordered, replayable run of instruction lines.
type Buffer struct {
	lines []string
}

// Function is a frame whose body is buffered until the frame size is final.
type Function struct {
	Name  string
	Stack int // bytes of local storage
	body  Buffer
}

type constant struct {
	label string
	value string
}

// Constants is the append-only pool of string literals. Each distinct literal
// is stored once.
type Constants struct {
	entries []constant
	byValue map[string]string
}

// Add returns the label of value, appending a new entry when it is not yet
// pooled.
func (c *Constants) Add(value string) string {
	if label, ok := c.byValue[value]; ok {
		return label
	}
	if c.byValue == nil {
		c.byValue = make(map[string]string)
	}
	label := fmt.Sprintf("S%d", len(c.entries))
	c.entries = append(c.entries, constant{label: label, value: value})
	c.byValue[value] = label
	return label
}

func (c *Constants) Len() int { return len(c.entries) }

// Emitter accumulates target instructions. All of its state (label counter,
// capture stack, constants) belongs to one compilation.
type Emitter struct {
	target    Target
	nextLabel int
	captures  []*Buffer
	fn        *Function
	funcs     []*Function
	constants Constants
}

func NewEmitter(target Target) *Emitter {
	return &Emitter{target: target}
}

func (e *Emitter) Target() Target { return e.target }

// Constants returns the string literal pool collected so far.
func (e *Emitter) Constants() *Constants { return &e.constants }

// emit formats one instruction or label line and appends it to the innermost
// capture buffer, or to the current function when nothing is being captured.
func (e *Emitter) emit(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(s, ":") {
		s = "\t" + strings.Replace(s, " ", "\t", 1)
	}
	e.append(s)
}

func (e *Emitter) append(line string) {
	if n := len(e.captures); n > 0 {
		e.captures[n-1].lines = append(e.captures[n-1].lines, line)
		return
	}
	if e.fn == nil {
		panic("emit called outside function")
	}
	e.fn.body.lines = append(e.fn.body.lines, line)
}

// BeginFunc opens a new frame; subsequent code is buffered into it.
func (e *Emitter) BeginFunc(name string) {
	e.fn = &Function{Name: name}
}

// EndFunc closes the current frame.
func (e *Emitter) EndFunc() {
	if e.fn == nil {
		return
	}
	e.funcs = append(e.funcs, e.fn)
	e.fn = nil
}

// Alloca records the total local storage of the current frame.
func (e *Emitter) Alloca(bytes int) {
	e.fn.Stack = bytes
}

// Body returns the buffered instructions of the open frame.
func (e *Emitter) Body() []string {
	if e.fn == nil {
		return nil
	}
	return e.fn.body.lines
}

// Begin starts capturing emitted code into a fresh nested buffer.
func (e *Emitter) Begin() {
	e.captures = append(e.captures, &Buffer{})
}

// End stops the innermost capture and returns what it collected.
func (e *Emitter) End() *Buffer {
	n := len(e.captures)
	if n == 0 {
		panic("End called without Begin")
	}
	b := e.captures[n-1]
	e.captures = e.captures[:n-1]
	return b
}

// Splice replays a captured buffer at the current position.
func (e *Emitter) Splice(b *Buffer) {
	for _, line := range b.lines {
		e.append(line)
	}
}

// Labels

func (e *Emitter) NewLabel() string {
	l := fmt.Sprintf("L%d", e.nextLabel)
	e.nextLabel++
	return l
}

func (e *Emitter) Label(label string) {
	e.emit("%s:", label)
}

func (e *Emitter) Jump(label string) {
	e.emit("jmp %s", label)
}

// JumpIfFalse branches when the accumulator is zero.
func (e *Emitter) JumpIfFalse(label string) {
	e.emit("orl %%eax,%%eax")
	e.emit("je %s", label)
}

// Accumulator (%eax) operations used by scalar types.

func (e *Emitter) LoadImmInt(v int32) {
	e.emit("movl $%d,%%eax", v)
}

func (e *Emitter) LoadVarInt(index int) {
	e.emit("movl %d(%%ebp),%%eax", frameOffset(index))
}

func (e *Emitter) StoreVarInt(index int) {
	e.emit("movl %%eax,%d(%%ebp)", frameOffset(index))
}

func (e *Emitter) PushAcc() {
	e.emit("pushl %%eax")
}

func (e *Emitter) NegAcc() {
	e.emit("negl %%eax")
}

func (e *Emitter) PopAdd() {
	e.emit("addl %%eax,(%%esp)")
	e.emit("popl %%eax")
}

func (e *Emitter) PopSub() {
	e.emit("subl %%eax,(%%esp)")
	e.emit("popl %%eax")
}

func (e *Emitter) PopMul() {
	e.emit("imull (%%esp)")
	e.emit("addl $%d,%%esp", Word)
}

func (e *Emitter) PopDiv() {
	e.emit("movl %%eax,%%ecx")
	e.emit("popl %%eax")
	e.emit("cdq") // sign-extend eax into edx:eax
	e.emit("idivl %%ecx")
}

// PopCompare compares the pushed left operand with the accumulator and leaves
// 1 or 0 in the accumulator. cond is an x86 condition suffix (l, g, le, ...).
func (e *Emitter) PopCompare(cond string) {
	e.emit("cmpl %%eax,(%%esp)")
	e.emit("set%s %%al", cond)
	e.emit("movzbl %%al,%%eax")
	e.emit("addl $%d,%%esp", Word)
}

// Pointer register (%esi) operations used by heap-backed types.

func (e *Emitter) LoadPointer(index int) {
	e.emit("movl %d(%%ebp),%%esi", frameOffset(index))
}

func (e *Emitter) StorePointer(index int) {
	e.emit("movl %%esi,%d(%%ebp)", frameOffset(index))
}

func (e *Emitter) PushPointer() {
	e.emit("pushl %%esi")
}

func (e *Emitter) PopPointer() {
	e.emit("popl %%esi")
}

// LoadAddress points the pointer register at a data-section label.
func (e *Emitter) LoadAddress(label string) {
	e.emit("movl $%s,%%esi", label)
}

// PeekBase copies the pushed pointer into reg without popping it.
func (e *Emitter) PeekBase(reg string) {
	e.emit("movl (%%esp),%%%s", reg)
}

// PopBase pops the pushed pointer into reg.
func (e *Emitter) PopBase(reg string) {
	e.emit("popl %%%s", reg)
}

// Heap element access. Offsets are bytes from the pointer register.

func (e *Emitter) LoadElementInt(offset int) {
	e.emit("movl %d(%%esi),%%eax", offset)
}

func (e *Emitter) LoadElementChar(offset int) {
	e.emit("movzbl %d(%%esi),%%eax", offset)
}

func (e *Emitter) LoadElementPointer(offset int) {
	e.emit("movl %d(%%esi),%%esi", offset)
}

func (e *Emitter) StoreElementInt(base string, offset int) {
	e.emit("movl %%eax,%d(%%%s)", offset, base)
}

func (e *Emitter) StoreElementChar(base string, offset int) {
	e.emit("movb %%al,%d(%%%s)", offset, base)
}

func (e *Emitter) StoreElementPointer(base string, offset int) {
	e.emit("movl %%esi,%d(%%%s)", offset, base)
}

// Alloc calls the runtime allocator for size bytes and moves the result into
// the pointer register.
func (e *Emitter) Alloc(size int) {
	e.alignCall(1)
	e.emit("pushl $%d", size)
	e.callC("malloc", 1)
	e.emit("movl %%eax,%%esi")
}

// alignCall prepares the stack for a C call taking args words when the target
// requires aligned calls. %esp is saved in %edi, which the callee preserves,
// then rounded down and padded so that it is 16-byte aligned once the
// arguments are pushed.
func (e *Emitter) alignCall(args int) {
	if !e.target.AlignCalls {
		return
	}
	e.emit("movl %%esp,%%edi")
	e.emit("andl $-16,%%esp")
	if pad := (16 - args*Word%16) % 16; pad > 0 {
		e.emit("subl $%d,%%esp", pad)
	}
}

// callC calls a C runtime routine and drops its args words of arguments.
func (e *Emitter) callC(name string, args int) {
	e.emit("call %s", e.target.Symbol(name))
	if e.target.AlignCalls {
		e.emit("movl %%edi,%%esp")
		return
	}
	e.emit("addl $%d,%%esp", args*Word)
}

// SetLength writes the element count into the header at the pointer register.
func (e *Emitter) SetLength(n int) {
	e.emit("movl $%d,(%%esi)", n)
}

// BoundsCheck fails at run time unless 0 <= %eax < length. The unsigned
// compare also rejects negative indexes.
func (e *Emitter) BoundsCheck() {
	e.emit("cmpl (%%esi),%%eax")
	e.emit("jae %s", boundsLabel)
}

// ScaleIndex multiplies the accumulator by size.
func (e *Emitter) ScaleIndex(size int) {
	if size == 1 {
		return
	}
	if shift, ok := log2(size); ok {
		e.emit("shll $%d,%%eax", shift)
		return
	}
	e.emit("imull $%d,%%eax", size)
}

func (e *Emitter) AddIndexToPointer() {
	e.emit("addl %%eax,%%esi")
}

func log2(n int) (int, bool) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, false
	}
	shift := 0
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift, true
}

// Output

func (e *Emitter) printf(format string) {
	e.alignCall(2)
	e.emit("pushl %%eax")
	e.emit("pushl $%s", format)
	e.callC("printf", 2)
}

func (e *Emitter) PrintInt() {
	e.printf(formatInt)
}

func (e *Emitter) PrintChar() {
	e.printf(formatChar)
}

// PrintString prints the NUL-terminated payload that follows the header.
func (e *Emitter) PrintString() {
	e.emit("leal %d(%%esi),%%eax", Word)
	e.printf(formatString)
}

// AddString pools a string literal and returns its label.
func (e *Emitter) AddString(value string) string {
	return e.constants.Add(value)
}

func frameOffset(index int) int {
	return -(index + 1) * Word
}

// Flush writes the finished program: the data section with the format table
// and the constants pool, then every function with its prologue and epilogue.
func (e *Emitter) Flush(w io.Writer) error {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format+"\n", args...)
	}

	line("\t%s", e.target.DataSection)
	line("%s:", formatInt)
	line("\t.asciz\t%s", quoteAsm("%d\n"))
	line("%s:", formatChar)
	line("\t.asciz\t%s", quoteAsm("%c\n"))
	line("%s:", formatString)
	line("\t.asciz\t%s", quoteAsm("%s\n"))
	for _, c := range e.constants.entries {
		line("\t.align\t%d", Word)
		line("%s:", c.label)
		line("\t.long\t%d", len(c.value))
		line("\t.asciz\t%s", quoteAsm(c.value))
	}

	line("")
	line("\t.text")
	for _, fn := range e.funcs {
		name := e.target.Symbol(fn.Name)
		line("\t.globl\t%s", name)
		line("%s:", name)
		line("\tpushl\t%%ebp")
		line("\tmovl\t%%esp,%%ebp")
		line("\tsubl\t$%d,%%esp", fn.Stack)
		for _, l := range fn.body.lines {
			sb.WriteString(l)
			sb.WriteByte('\n')
		}
		line("\tmovl\t$0,%%eax")
		line("\tleave")
		line("\tret")
	}
	line("%s:", boundsLabel)
	if e.target.AlignCalls {
		line("\tandl\t$-16,%%esp")
	}
	line("\tcall\t%s", e.target.Symbol("abort"))

	_, err := io.WriteString(w, sb.String())
	return err
}

// quoteAsm renders s as an assembler string literal. Bytes outside printable
// ASCII are written as three-digit octal escapes.
func quoteAsm(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&sb, `\%03o`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
