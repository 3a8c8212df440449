package cpu

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sofort/pkg/asm"
)

const (
	// MemorySize is the size of the flat address space in bytes.
	MemorySize = 1 << 20
	// StackSize is reserved below the top of memory; the heap never grows
	// into it.
	StackSize = 64 << 10
	// DefaultMaxSteps bounds a Run when MaxSteps is zero.
	DefaultMaxSteps = 10_000_000

	// returnSentinel is pushed as the return address of the entry point.
	// Returning to it ends the program.
	returnSentinel = 0xFFFFFFFF
)

var (
	ErrAborted   = errors.New("program aborted")
	ErrSegfault  = errors.New("segmentation fault")
	ErrStepLimit = errors.New("step limit exceeded")
	ErrDivide    = errors.New("integer division fault")
)

const (
	EAX = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

var regIndex = map[string]int{
	"eax": EAX,
	"ecx": ECX,
	"edx": EDX,
	"ebx": EBX,
	"esp": ESP,
	"ebp": EBP,
	"esi": ESI,
	"edi": EDI,
}

// CPU interprets assembled 32-bit programs. Instructions are executed from
// the decoded text of an asm.Image; data, heap and stack share one
// little-endian memory.
type CPU struct {
	Regs [8]uint32

	// PC is the index of the next instruction in Text.
	PC int

	ZF, SF, OF, CF bool

	Memory []byte
	Text   []asm.Instr
	Labels map[string]int

	heap     uint32
	Halted   bool
	Status   int
	Steps    int
	MaxSteps int

	// Output receives everything the program prints. If nil, os.Stdout is
	// used.
	Output io.Writer
}

func NewCPU() *CPU {
	c := &CPU{Memory: make([]byte, MemorySize)}
	c.Regs[ESP] = MemorySize
	return c
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

// Load copies the image's data section into memory and makes its text
// executable. The heap starts after the data.
func (c *CPU) Load(img *asm.Image) error {
	end := img.DataBase + uint32(len(img.Data))
	if end > MemorySize-StackSize {
		return fmt.Errorf("data section of %d bytes does not fit in memory", len(img.Data))
	}
	copy(c.Memory[img.DataBase:], img.Data)
	c.Text = img.Text
	c.Labels = img.Labels
	c.heap = (end + 15) &^ 15
	return nil
}

// lookup finds a text label, accepting either form of a platform symbol
// prefix.
func (c *CPU) lookup(name string) (int, bool) {
	if idx, ok := c.Labels[name]; ok {
		return idx, true
	}
	if idx, ok := c.Labels["_"+name]; ok {
		return idx, true
	}
	idx, ok := c.Labels[strings.TrimPrefix(name, "_")]
	return idx, ok
}

// Start prepares a call of entry that returns to the halt sentinel. Run
// calls it; it is exported for callers that drive Step themselves.
func (c *CPU) Start(entry string) error {
	idx, ok := c.lookup(entry)
	if !ok {
		return fmt.Errorf("entry point %s not found", entry)
	}
	if err := c.push(returnSentinel); err != nil {
		return err
	}
	c.PC = idx
	return nil
}

// Run calls entry and executes until it returns, exit is called, or an error
// occurs. The result is the program's exit status.
func (c *CPU) Run(entry string) (int, error) {
	if err := c.Start(entry); err != nil {
		return 0, err
	}

	limit := c.MaxSteps
	if limit == 0 {
		limit = DefaultMaxSteps
	}
	for !c.Halted {
		if c.Steps >= limit {
			return 0, fmt.Errorf("%w after %d instructions", ErrStepLimit, c.Steps)
		}
		if err := c.Step(); err != nil {
			return c.Status, err
		}
	}
	return c.Status, nil
}

func (c *CPU) halt(status int) {
	c.Halted = true
	c.Status = status
}

// Memory access

func (c *CPU) check(addr uint32, n uint32) error {
	if addr < asm.DataBase || uint64(addr)+uint64(n) > uint64(len(c.Memory)) {
		return fmt.Errorf("%w: access of %d bytes at 0x%x", ErrSegfault, n, addr)
	}
	return nil
}

func (c *CPU) Read32(addr uint32) (uint32, error) {
	if err := c.check(addr, 4); err != nil {
		return 0, err
	}
	m := c.Memory[addr:]
	return uint32(m[0]) | uint32(m[1])<<8 | uint32(m[2])<<16 | uint32(m[3])<<24, nil
}

func (c *CPU) Write32(addr uint32, val uint32) error {
	if err := c.check(addr, 4); err != nil {
		return err
	}
	m := c.Memory[addr:]
	m[0], m[1], m[2], m[3] = byte(val), byte(val>>8), byte(val>>16), byte(val>>24)
	return nil
}

func (c *CPU) ReadByte(addr uint32) (byte, error) {
	if err := c.check(addr, 1); err != nil {
		return 0, err
	}
	return c.Memory[addr], nil
}

func (c *CPU) WriteByte(addr uint32, val byte) error {
	if err := c.check(addr, 1); err != nil {
		return err
	}
	c.Memory[addr] = val
	return nil
}

// ReadCString reads a NUL-terminated string.
func (c *CPU) ReadCString(addr uint32) (string, error) {
	var sb strings.Builder
	for {
		b, err := c.ReadByte(addr)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b)
		addr++
	}
}

func (c *CPU) push(val uint32) error {
	c.Regs[ESP] -= 4
	return c.Write32(c.Regs[ESP], val)
}

func (c *CPU) pop() (uint32, error) {
	val, err := c.Read32(c.Regs[ESP])
	if err != nil {
		return 0, err
	}
	c.Regs[ESP] += 4
	return val, nil
}

// Operands

func (c *CPU) getReg(name string) (uint32, error) {
	if name == "al" {
		return c.Regs[EAX] & 0xFF, nil
	}
	idx, ok := regIndex[name]
	if !ok {
		return 0, fmt.Errorf("unknown register %%%s", name)
	}
	return c.Regs[idx], nil
}

func (c *CPU) setReg(name string, val uint32) error {
	if name == "al" {
		c.Regs[EAX] = c.Regs[EAX]&^0xFF | val&0xFF
		return nil
	}
	idx, ok := regIndex[name]
	if !ok {
		return fmt.Errorf("unknown register %%%s", name)
	}
	c.Regs[idx] = val
	return nil
}

func (c *CPU) address(o asm.Operand) (uint32, error) {
	if o.Kind != asm.Memory {
		return 0, fmt.Errorf("expected memory operand, found %s", o)
	}
	if o.Reg == "" {
		return uint32(o.Value), nil
	}
	base, err := c.getReg(o.Reg)
	if err != nil {
		return 0, err
	}
	return base + uint32(o.Value), nil
}

func (c *CPU) read(o asm.Operand) (uint32, error) {
	switch o.Kind {
	case asm.Immediate:
		return uint32(o.Value), nil
	case asm.Register:
		return c.getReg(o.Reg)
	}
	addr, err := c.address(o)
	if err != nil {
		return 0, err
	}
	return c.Read32(addr)
}

func (c *CPU) write(o asm.Operand, val uint32) error {
	if o.Kind == asm.Register {
		return c.setReg(o.Reg, val)
	}
	addr, err := c.address(o)
	if err != nil {
		return err
	}
	return c.Write32(addr, val)
}

func (c *CPU) read8(o asm.Operand) (byte, error) {
	switch o.Kind {
	case asm.Immediate, asm.Register:
		v, err := c.read(o)
		return byte(v), err
	}
	addr, err := c.address(o)
	if err != nil {
		return 0, err
	}
	return c.ReadByte(addr)
}

func (c *CPU) write8(o asm.Operand, val byte) error {
	if o.Kind == asm.Register {
		return c.setReg(o.Reg, uint32(val))
	}
	addr, err := c.address(o)
	if err != nil {
		return err
	}
	return c.WriteByte(addr, val)
}

// Flags

func (c *CPU) setLogicFlags(res uint32) {
	c.ZF = res == 0
	c.SF = res>>31 != 0
	c.CF = false
	c.OF = false
}

func (c *CPU) setAddFlags(a, b, res uint32) {
	c.ZF = res == 0
	c.SF = res>>31 != 0
	c.CF = res < a
	c.OF = (^(a^b)&(a^res))>>31 != 0
}

// setSubFlags sets the flags of a - b.
func (c *CPU) setSubFlags(a, b, res uint32) {
	c.ZF = res == 0
	c.SF = res>>31 != 0
	c.CF = a < b
	c.OF = ((a^b)&(a^res))>>31 != 0
}

func (c *CPU) condition(cc string) bool {
	switch cc {
	case "e":
		return c.ZF
	case "ne":
		return !c.ZF
	case "l":
		return c.SF != c.OF
	case "ge":
		return c.SF == c.OF
	case "le":
		return c.ZF || c.SF != c.OF
	case "g":
		return !c.ZF && c.SF == c.OF
	case "b":
		return c.CF
	case "ae":
		return !c.CF
	}
	return false
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC < 0 || c.PC >= len(c.Text) {
		return fmt.Errorf("%w: execution left the program at instruction %d", ErrSegfault, c.PC)
	}
	instr := c.Text[c.PC]
	c.PC++
	c.Steps++

	if err := c.execute(instr); err != nil {
		if errors.Is(err, ErrAborted) {
			return err
		}
		return fmt.Errorf("line %d: %s: %w", instr.Line, instr, err)
	}
	return nil
}

func (c *CPU) execute(in asm.Instr) error {
	ops := in.Operands

	switch in.Op {
	case "nop":

	case "movl":
		v, err := c.read(ops[0])
		if err != nil {
			return err
		}
		return c.write(ops[1], v)

	case "movb":
		v, err := c.read8(ops[0])
		if err != nil {
			return err
		}
		return c.write8(ops[1], v)

	case "movzbl":
		v, err := c.read8(ops[0])
		if err != nil {
			return err
		}
		return c.write(ops[1], uint32(v))

	case "leal":
		addr, err := c.address(ops[0])
		if err != nil {
			return err
		}
		return c.write(ops[1], addr)

	case "pushl":
		v, err := c.read(ops[0])
		if err != nil {
			return err
		}
		return c.push(v)

	case "popl":
		v, err := c.pop()
		if err != nil {
			return err
		}
		return c.write(ops[0], v)

	case "addl", "subl", "cmpl", "orl", "andl", "xorl":
		return c.arith(in.Op, ops[0], ops[1])

	case "imull":
		return c.imul(ops)

	case "idivl":
		return c.idiv(ops[0])

	case "cdq":
		if int32(c.Regs[EAX]) < 0 {
			c.Regs[EDX] = 0xFFFFFFFF
		} else {
			c.Regs[EDX] = 0
		}

	case "negl":
		v, err := c.read(ops[0])
		if err != nil {
			return err
		}
		res := -v
		c.setSubFlags(0, v, res)
		return c.write(ops[0], res)

	case "shll":
		n, err := c.read(ops[0])
		if err != nil {
			return err
		}
		v, err := c.read(ops[1])
		if err != nil {
			return err
		}
		res := v << (n & 31)
		c.ZF = res == 0
		c.SF = res>>31 != 0
		return c.write(ops[1], res)

	case "setl", "setg", "setle", "setge", "sete", "setne":
		var v byte
		if c.condition(strings.TrimPrefix(in.Op, "set")) {
			v = 1
		}
		return c.write8(ops[0], v)

	case "jmp":
		c.PC = ops[0].Index

	case "je", "jne", "jl", "jg", "jle", "jge", "jb", "jae":
		if c.condition(strings.TrimPrefix(in.Op, "j")) {
			c.PC = ops[0].Index
		}

	case "call":
		if ops[0].Index < 0 {
			return c.callExtern(ops[0].Symbol)
		}
		if err := c.push(uint32(c.PC)); err != nil {
			return err
		}
		c.PC = ops[0].Index

	case "ret":
		v, err := c.pop()
		if err != nil {
			return err
		}
		if v == returnSentinel {
			c.halt(int(int32(c.Regs[EAX])))
			return nil
		}
		c.PC = int(v)

	case "leave":
		c.Regs[ESP] = c.Regs[EBP]
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.Regs[EBP] = v

	default:
		return fmt.Errorf("unsupported instruction %s", in.Op)
	}
	return nil
}

func (c *CPU) arith(op string, src, dst asm.Operand) error {
	s, err := c.read(src)
	if err != nil {
		return err
	}
	d, err := c.read(dst)
	if err != nil {
		return err
	}

	var res uint32
	switch op {
	case "addl":
		res = d + s
		c.setAddFlags(d, s, res)
	case "subl", "cmpl":
		res = d - s
		c.setSubFlags(d, s, res)
		if op == "cmpl" {
			return nil
		}
	case "orl":
		res = d | s
		c.setLogicFlags(res)
	case "andl":
		res = d & s
		c.setLogicFlags(res)
	case "xorl":
		res = d ^ s
		c.setLogicFlags(res)
	}
	return c.write(dst, res)
}

// imul implements the one-operand form (edx:eax = eax * src) and the
// two-operand form (dst *= src).
func (c *CPU) imul(ops []asm.Operand) error {
	s, err := c.read(ops[0])
	if err != nil {
		return err
	}
	if len(ops) == 1 {
		prod := int64(int32(c.Regs[EAX])) * int64(int32(s))
		c.Regs[EAX] = uint32(prod)
		c.Regs[EDX] = uint32(uint64(prod) >> 32)
		c.CF = prod != int64(int32(prod))
		c.OF = c.CF
		return nil
	}
	d, err := c.read(ops[1])
	if err != nil {
		return err
	}
	prod := int64(int32(d)) * int64(int32(s))
	c.CF = prod != int64(int32(prod))
	c.OF = c.CF
	return c.write(ops[1], uint32(prod))
}

// idiv divides edx:eax by src, truncating toward zero.
func (c *CPU) idiv(src asm.Operand) error {
	s, err := c.read(src)
	if err != nil {
		return err
	}
	divisor := int64(int32(s))
	if divisor == 0 {
		return fmt.Errorf("%w: division by zero", ErrDivide)
	}
	dividend := int64(uint64(c.Regs[EDX])<<32 | uint64(c.Regs[EAX]))
	quot := dividend / divisor
	if quot != int64(int32(quot)) {
		return fmt.Errorf("%w: quotient overflow", ErrDivide)
	}
	c.Regs[EAX] = uint32(int32(quot))
	c.Regs[EDX] = uint32(int32(dividend % divisor))
	return nil
}
