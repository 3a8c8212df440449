package cpu

import (
	"fmt"
	"io"
	"strings"
)

// Extern is a runtime routine implemented by the host. Arguments are read
// from the stack starting at %esp, as pushed by the caller; the result goes
// to %eax.
type Extern func(c *CPU) error

var externs = map[string]Extern{
	"printf": (*CPU).printf,
	"puts":   (*CPU).puts,
	"malloc": (*CPU).malloc,
	"exit":   (*CPU).exit,
	"abort":  (*CPU).abort,
}

func (c *CPU) callExtern(name string) error {
	fn, ok := externs[strings.TrimPrefix(name, "_")]
	if !ok {
		return fmt.Errorf("call to undefined function %s", name)
	}
	return fn(c)
}

// arg returns the n-th 32-bit argument of an extern call.
func (c *CPU) arg(n int) (uint32, error) {
	return c.Read32(c.Regs[ESP] + uint32(4*n))
}

// printf supports the %d, %c, %s and %% conversions.
func (c *CPU) printf() error {
	fmtAddr, err := c.arg(0)
	if err != nil {
		return err
	}
	format, err := c.ReadCString(fmtAddr)
	if err != nil {
		return err
	}

	var sb strings.Builder
	next := 1
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 == len(format) {
			sb.WriteByte(ch)
			continue
		}
		i++
		verb := format[i]
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		v, err := c.arg(next)
		if err != nil {
			return err
		}
		next++
		switch verb {
		case 'd':
			fmt.Fprintf(&sb, "%d", int32(v))
		case 'c':
			sb.WriteByte(byte(v))
		case 's':
			s, err := c.ReadCString(v)
			if err != nil {
				return err
			}
			sb.WriteString(s)
		default:
			return fmt.Errorf("printf: unsupported conversion %%%c", verb)
		}
	}

	n, err := io.WriteString(c.outputSink(), sb.String())
	c.Regs[EAX] = uint32(n)
	return err
}

func (c *CPU) puts() error {
	addr, err := c.arg(0)
	if err != nil {
		return err
	}
	s, err := c.ReadCString(addr)
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.outputSink(), s+"\n")
	c.Regs[EAX] = 0
	return err
}

// malloc is a bump allocator; memory is never freed. It returns 0 when the
// heap would run into the stack.
func (c *CPU) malloc() error {
	size, err := c.arg(0)
	if err != nil {
		return err
	}
	start := c.heap
	end := uint64(start) + uint64(size)
	if end > MemorySize-StackSize {
		c.Regs[EAX] = 0
		return nil
	}
	c.heap = (uint32(end) + 7) &^ 7
	c.Regs[EAX] = start
	return nil
}

func (c *CPU) exit() error {
	status, err := c.arg(0)
	if err != nil {
		return err
	}
	c.halt(int(int32(status)))
	return nil
}

// abort ends the program with the status of a process killed by SIGABRT.
func (c *CPU) abort() error {
	c.halt(134)
	return ErrAborted
}
