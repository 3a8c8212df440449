package compiler

import "testing"

var allTypes = []*Type{
	TypeInt,
	TypeChar,
	TypeString,
	ArrayOf(TypeInt),
	ArrayOf(TypeChar),
	ArrayOf(ArrayOf(TypeInt)),
	TypeInt.Literal(),
	TypeString.Literal(),
}

func TestUnionProperties(t *testing.T) {
	for _, a := range allTypes {
		if !Typeof(a, a) {
			t.Errorf("Typeof(%s, %s) must hold", a, a)
		}
		if u := Union(a, a); u != a {
			t.Errorf("Union(%s, %s) = %v, expected the same type", a, a, u)
		}
		for _, b := range allTypes {
			ab, ba := Union(a, b), Union(b, a)
			if (ab == nil) != (ba == nil) {
				t.Errorf("Union(%s, %s) is not symmetric", a, b)
				continue
			}
			if ab != nil && (!Typeof(ab, ba) || ab.Constant != ba.Constant) {
				t.Errorf("Union(%s, %s) = %s but Union(%s, %s) = %s", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestUnionPrefersGeneral(t *testing.T) {
	lit := TypeInt.Literal()
	if u := Union(lit, TypeInt); u.Constant {
		t.Errorf("Union(int literal, int) must be general")
	}
	if u := Union(TypeInt, lit); u.Constant {
		t.Errorf("Union(int, int literal) must be general")
	}
	if u := Union(lit, TypeInt.Literal()); !u.Constant {
		t.Errorf("Union of two literals stays constant")
	}
}

func TestTypeofArrays(t *testing.T) {
	if Typeof(ArrayOf(TypeInt), ArrayOf(TypeChar)) {
		t.Error("[]int and []char must be incompatible")
	}
	if !Typeof(ArrayOf(TypeInt.Literal()), ArrayOf(TypeInt)) {
		t.Error("element constness must not matter")
	}
	if Typeof(TypeString, ArrayOf(TypeChar)) {
		t.Error("string and []char are different types")
	}
	if Union(TypeInt, TypeChar) != nil {
		t.Error("int and char must be incompatible")
	}
}

func TestTypeLayout(t *testing.T) {
	tests := []struct {
		typ  *Type
		name string
		size int
		heap bool
		elem *Type
	}{
		{TypeInt, "int", 4, false, nil},
		{TypeChar, "char", 1, false, nil},
		{TypeString, "string", 4, true, TypeChar},
		{ArrayOf(TypeChar), "[]char", 4, true, TypeChar},
		{ArrayOf(ArrayOf(TypeInt)), "[][]int", 4, true, ArrayOf(TypeInt)},
	}
	for _, tt := range tests {
		if tt.typ.String() != tt.name {
			t.Errorf("expected name %s, got %s", tt.name, tt.typ)
		}
		if tt.typ.Sizeof() != tt.size {
			t.Errorf("%s: expected size %d, got %d", tt.name, tt.size, tt.typ.Sizeof())
		}
		if tt.typ.IsHeap() != tt.heap {
			t.Errorf("%s: IsHeap = %v", tt.name, tt.typ.IsHeap())
		}
		if tt.typ.StackSize() != 1 {
			t.Errorf("%s: every type occupies one stack word", tt.name)
		}
		if el := tt.typ.Element(); (el == nil) != (tt.elem == nil) || (el != nil && !Typeof(el, tt.elem)) {
			t.Errorf("%s: unexpected element type %v", tt.name, el)
		}
	}
}

func TestOperations(t *testing.T) {
	for _, name := range []string{"add", "sub", "mul", "div", "neg", "lt", "gt", "le", "ge", "eq", "ne"} {
		if _, ok := TypeInt.Operation(name); !ok {
			t.Errorf("int must support %s", name)
		}
	}
	if _, ok := TypeChar.Operation("add"); ok {
		t.Error("char must not support add")
	}
	if _, ok := TypeChar.Operation("lt"); !ok {
		t.Error("char must support comparisons")
	}
	if _, ok := TypeString.Operation("eq"); ok {
		t.Error("string supports no operations")
	}
	if _, ok := ArrayOf(TypeInt).Operation("add"); ok {
		t.Error("arrays support no operations")
	}
}
