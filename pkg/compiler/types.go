package compiler

// Kind is the closed set of value representations.
type Kind int

const (
	KindInt Kind = iota
	KindChar
	KindString
	KindArray
)

// Type describes how a runtime value is represented. Scalars (int, char) live
// in the accumulator and directly in frame slots. Heap-backed values (string,
// arrays) are handled through a pointer to a header word holding the element
// count, followed by the packed elements.
//
// A Constant type is the literal form of its kind; it is compatible with the
// general form and Union always prefers the general one.
type Type struct {
	Kind     Kind
	Elem     *Type // arrays only
	Constant bool
}

var (
	TypeInt    = &Type{Kind: KindInt}
	TypeChar   = &Type{Kind: KindChar}
	TypeString = &Type{Kind: KindString}
)

// ArrayOf returns the dynamic array type with the given element type.
func ArrayOf(elem *Type) *Type {
	return &Type{Kind: KindArray, Elem: elem.General()}
}

// Literal returns the constant form of t.
func (t *Type) Literal() *Type {
	c := *t
	c.Constant = true
	return &c
}

// General returns the non-constant form of t.
func (t *Type) General() *Type {
	if !t.Constant {
		return t
	}
	c := *t
	c.Constant = false
	return &c
}

func (t *Type) String() string {
	switch t.Kind {
	case KindInt:
		return "int"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindArray:
		return "[]" + t.Elem.String()
	}
	return "?"
}

// IsHeap reports whether values of t are held through the pointer register.
func (t *Type) IsHeap() bool {
	return t.Kind == KindString || t.Kind == KindArray
}

// Sizeof is the number of bytes one value of t occupies as an array element.
func (t *Type) Sizeof() int {
	if t.Kind == KindChar {
		return 1
	}
	return Word
}

// StackSize is the number of frame words a local of type t occupies. Heap
// values are represented by their pointer only.
func (t *Type) StackSize() int {
	return 1
}

// Element returns the type produced by indexing t, or nil if t is not
// indexable.
func (t *Type) Element() *Type {
	switch t.Kind {
	case KindString:
		return TypeChar
	case KindArray:
		return t.Elem
	}
	return nil
}

// Typeof reports whether a and b are the same kind, ignoring the constant
// marker. Arrays additionally need compatible element types.
func Typeof(a, b *Type) bool {
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindArray {
		return Typeof(a.Elem, b.Elem)
	}
	return true
}

// Union returns the type of a binary operation on a and b, or nil when they
// are incompatible. The result is constant only if both operands are.
func Union(a, b *Type) *Type {
	if !Typeof(a, b) {
		return nil
	}
	if a.Constant && !b.Constant {
		return b
	}
	return a
}

// Operation emits one operator for a type. Binary operations expect the left
// operand on the stack and the right one in the accumulator.
type Operation func(e *Emitter)

var intOperations = map[string]Operation{
	"add": (*Emitter).PopAdd,
	"sub": (*Emitter).PopSub,
	"mul": (*Emitter).PopMul,
	"div": (*Emitter).PopDiv,
	"neg": (*Emitter).NegAcc,
	"lt":  compare("l"),
	"gt":  compare("g"),
	"le":  compare("le"),
	"ge":  compare("ge"),
	"eq":  compare("e"),
	"ne":  compare("ne"),
}

var charOperations = map[string]Operation{
	"lt": compare("l"),
	"gt": compare("g"),
	"le": compare("le"),
	"ge": compare("ge"),
	"eq": compare("e"),
	"ne": compare("ne"),
}

func compare(cond string) Operation {
	return func(e *Emitter) { e.PopCompare(cond) }
}

// Operation looks up a named operation; ok is false when t does not support it.
func (t *Type) Operation(name string) (Operation, bool) {
	var table map[string]Operation
	switch t.Kind {
	case KindInt:
		table = intOperations
	case KindChar:
		table = charOperations
	default:
		return nil, false
	}
	op, ok := table[name]
	return op, ok
}

// Load brings the value in frame slot into the canonical register.
func (t *Type) Load(e *Emitter, slot int) {
	if t.IsHeap() {
		e.LoadPointer(slot)
		return
	}
	e.LoadVarInt(slot)
}

// Store writes the canonical register into frame slot.
func (t *Type) Store(e *Emitter, slot int) {
	if t.IsHeap() {
		e.StorePointer(slot)
		return
	}
	e.StoreVarInt(slot)
}

// Push saves the canonical register on the operand stack.
func (t *Type) Push(e *Emitter) {
	if t.IsHeap() {
		e.PushPointer()
		return
	}
	e.PushAcc()
}

// LoadAt loads a value of type t stored offset bytes past the pointer
// register into t's canonical register.
func (t *Type) LoadAt(e *Emitter, offset int) {
	switch {
	case t.IsHeap():
		e.LoadElementPointer(offset)
	case t.Kind == KindChar:
		e.LoadElementChar(offset)
	default:
		e.LoadElementInt(offset)
	}
}

// StoreAt stores t's canonical register offset bytes past base.
func (t *Type) StoreAt(e *Emitter, base string, offset int) {
	switch {
	case t.IsHeap():
		e.StoreElementPointer(base, offset)
	case t.Kind == KindChar:
		e.StoreElementChar(base, offset)
	default:
		e.StoreElementInt(base, offset)
	}
}

// Alloc allocates a heap value with room for length elements and leaves its
// address in the pointer register.
func (t *Type) Alloc(e *Emitter, length int) {
	e.Alloc(Word + length*t.Element().Sizeof())
}

// SetLength writes n into the header of the value in the pointer register.
func (t *Type) SetLength(e *Emitter, n int) {
	e.SetLength(n)
}

// AddOffset consumes the index in the accumulator, checks it against the
// header length and advances the pointer register to the element. The element
// itself is then Word bytes further on.
func (t *Type) AddOffset(e *Emitter) {
	e.BoundsCheck()
	e.ScaleIndex(t.Element().Sizeof())
	e.AddIndexToPointer()
}
