package compiler

import (
	"fmt"
	"strings"
)

// LocalVar is a named frame slot. StackIndex is fixed at declaration.
type LocalVar struct {
	Name       string
	Type       *Type
	StackIndex int
}

func (v *LocalVar) Load(e *Emitter) {
	v.Type.Load(e, v.StackIndex)
}

func (v *LocalVar) Store(e *Emitter) {
	v.Type.Store(e, v.StackIndex)
}

// Locals maps variable names to frame slots. It only ever grows: slots are
// never reused or renumbered.
type Locals struct {
	vars      map[string]*LocalVar
	order     []*LocalVar
	stackSize int // words reserved so far
}

func NewLocals() *Locals {
	return &Locals{vars: make(map[string]*LocalVar)}
}

// Lookup returns the variable and whether it was found.
func (l *Locals) Lookup(name string) (*LocalVar, bool) {
	v, ok := l.vars[name]
	return v, ok
}

// Add declares name with type t in the next free slot. Declaring an existing
// name returns the existing variable unchanged.
func (l *Locals) Add(name string, t *Type) *LocalVar {
	if v, ok := l.vars[name]; ok {
		return v
	}
	v := &LocalVar{Name: name, Type: t, StackIndex: l.stackSize}
	l.stackSize += t.StackSize()
	l.vars[name] = v
	l.order = append(l.order, v)
	return v
}

// StackSize is the total number of words reserved.
func (l *Locals) StackSize() int {
	return l.stackSize
}

// Vars returns the variables in declaration order.
func (l *Locals) Vars() []*LocalVar {
	return l.order
}

// String returns the table in declaration order.
func (l *Locals) String() string {
	var sb strings.Builder
	if len(l.order) == 0 {
		sb.WriteString("Locals: (empty)\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Locals (%d words):\n", l.stackSize)
	for _, v := range l.order {
		fmt.Fprintf(&sb, "  %-20s  Slot: %d  Offset: %d  Type: %s\n", v.Name, v.StackIndex, frameOffset(v.StackIndex), v.Type)
	}
	return sb.String()
}
