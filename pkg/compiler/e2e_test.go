package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"sofort/pkg/asm"
	"sofort/pkg/cpu"
)

// runProgram compiles src, assembles the result and runs it on the emulator.
// It returns everything the program printed.
func runProgram(t *testing.T, src string, target Target) (string, error) {
	t.Helper()
	assembly, err := CompileString(src, Options{Target: target})
	if err != nil {
		return "", err
	}

	img, err := asm.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assemble failed: %v\nAssembly:\n%s", err, assembly)
	}

	vm := cpu.NewCPU()
	vm.MaxSteps = 1_000_000
	var out bytes.Buffer
	vm.Output = &out
	if err := vm.Load(img); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	status, err := vm.Run(target.Symbol("main"))
	if err == nil && status != 0 {
		t.Errorf("main returned %d", status)
	}
	return out.String(), err
}

func expectOutput(t *testing.T, src, want string) {
	t.Helper()
	got, err := runProgram(t, src, TargetLinux)
	if err != nil {
		t.Fatalf("program failed: %v\nSource:\n%s", err, src)
	}
	if got != want {
		t.Errorf("expected output %q, got %q\nSource:\n%s", want, got, src)
	}
}

func TestE2EWhileLoop(t *testing.T) {
	expectOutput(t, "x = 1 while x < 5 { print x x = x + 1 }", "1\n2\n3\n4\n")
}

func TestE2EArrayIndex(t *testing.T) {
	expectOutput(t, "a = [1, 2, 3] print a[1]", "2\n")
	expectOutput(t, "a = [1, 2, 3] print a[0] print a[2]", "1\n3\n")
}

func TestE2EBoundsCheck(t *testing.T) {
	tests := []struct {
		name string
		src  string
		out  string
	}{
		{"PastEnd", "a = [1, 2, 3] print a[5]", ""},
		{"Length", "a = [1, 2, 3] print a[3]", ""},
		{"Negative", "a = [1, 2, 3] print a[-1]", ""},
		{"AfterOutput", "a = [1, 2, 3] print 7 print a[3]", "7\n"},
		{"Store", "a = [1] a[1] = 2 print 0", ""},
		{"Empty", "a = [] int print a[0]", ""},
		{"String", `s = "ab" print s[2]`, ""},
		{"Inner", "m = [[1], [2, 3]] print m[0][1]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runProgram(t, tt.src, TargetLinux)
			if !errors.Is(err, cpu.ErrAborted) {
				t.Fatalf("expected abort, got %v", err)
			}
			if out != tt.out {
				t.Errorf("expected output %q before abort, got %q", tt.out, out)
			}
		})
	}
}

func TestE2EIncompatibleReassignment(t *testing.T) {
	_, err := runProgram(t, `x = 1 x = "s"`, TargetLinux)
	if err == nil {
		t.Fatal("expected compile error")
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != TypeError {
		t.Errorf("expected type error, got %v", err)
	}
}

func TestE2EArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want int32
	}{
		{"1 + 2", 1 + 2},
		{"2 + 3 * 4", 2 + 3*4},
		{"(2 + 3) * 4", (2 + 3) * 4},
		{"10 - 4 - 3", 10 - 4 - 3},
		{"100 / 10 / 5", 100 / 10 / 5},
		{"7 / 2", 7 / 2},
		{"-7 / 2", -7 / 2},
		{"7 / -2", 7 / -2},
		{"7 - 10", 7 - 10},
		{"-(3 - 8) * 2", -(3 - 8) * 2},
		{"3 - -2", 3 - -2},
		{"1000000 * 1000", 1000000 * 1000},
		{"2147483647 - 1", 2147483647 - 1},
		{"12 / 4 * 3 + 1 - 6 / 2", 12/4*3 + 1 - 6/2},
		{"1 < 2", 1},
		{"2 < 1", 0},
		{"3 <= 3", 1},
		{"4 >= 5", 0},
		{"5 > -5", 1},
		{"6 == 6", 1},
		{"6 != 6", 0},
		{"1 + 1 == 2", 1},
		{"'a' < 'b'", 1},
		{"'z' == 'z'", 1},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expectOutput(t, "print "+tt.expr, fmt.Sprintf("%d\n", tt.want))
		})
	}
}

func TestE2EIndexEdges(t *testing.T) {
	expectOutput(t, "a = [10, 20, 30, 40] print a[0] print a[3]", "10\n40\n")
	expectOutput(t, "a = [10, 20, 30, 40] i = 0 while i < 4 { a[i] = a[i] * 2 i = i + 1 } print a[0] print a[3]", "20\n80\n")
}

func TestE2EStringsAndChars(t *testing.T) {
	expectOutput(t, `s = "hello" print s print s[1]`, "hello\ne\n")
	expectOutput(t, "c = 'z' print c", "z\n")
	expectOutput(t, `print "tab\there \"q\""`, "tab\there \"q\"\n")
	expectOutput(t, `print ""`, "\n")
	expectOutput(t, `s = "abc" s = "longer string" print s`, "longer string\n")
	expectOutput(t, `s = "héllo" print s`, "héllo\n")
	expectOutput(t, `s = "é" print s[0] print s[1]`, "\xc3\n\xa9\n")
}

func TestE2EIfElse(t *testing.T) {
	src := `
# classify a few numbers
x = 0
while x < 4 {
	if x == 1 print "one"
	else if x > 2 print "big"
	else print x
	x = x + 1
}
if 0 print "never"
if 'a' print 'y'
`
	expectOutput(t, src, "0\none\n2\nbig\ny\n")
}

func TestE2EArrays(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"Strings", `n = ["ab", "cd",] print n[1] n[0] = "zz" print n[0]`, "cd\nzz\n"},
		{"Chars", "cs = ['a', 'b', 'c'] cs[1] = 'x' print cs[1] print cs[2] print cs[0]", "x\nc\na\n"},
		{"Nested", "m = [[1, 2], [3, 4, 5]] m[1][2] = 9 print m[1][2] print m[0][1]", "9\n2\n"},
		{"ComputedElements", "x = 4 a = [x, x * x, x + 1] print a[1] print a[2]", "16\n5\n"},
		{"IndexExpression", "a = [5, 6, 7] i = 1 print a[i + 1] print a[a[0] - 5]", "7\n5\n"},
		{"Reassign", "a = [1] a = [7, 8] print a[1]", "8\n"},
		{"EmptyThenFilled", "a = [] int a = [3] print a[0]", "3\n"},
		{"NestedLiteralStrings", `m = [["x"], ["y", "z"]] print m[1][1]`, "z\n"},
		{"ArrayInArrayIndex", "a = [0, 1] b = [[4, 5], [6, 7]] print b[a[1]][a[0]]", "6\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.src, tt.want)
		})
	}
}

func TestE2EManyLocals(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "v%d = %d\n", i, i*i)
	}
	sb.WriteString("print v0 + v19 print v10")
	expectOutput(t, sb.String(), "361\n100\n")
}

func TestE2ETargets(t *testing.T) {
	src := `a = ["x", "y"] i = 0 while i < 2 { print a[i] i = i + 1 }`
	for _, target := range []Target{TargetLinux, TargetWindows, TargetDarwin} {
		t.Run(target.Name, func(t *testing.T) {
			out, err := runProgram(t, src, target)
			if err != nil {
				t.Fatal(err)
			}
			if out != "x\ny\n" {
				t.Errorf("unexpected output %q", out)
			}
		})
	}
}

func TestE2EAlignedCallsOnDarwin(t *testing.T) {
	src := `a = [1, 2] x = 3 print x + a[1] print "s" print 'c'`
	assembly, err := CompileString(src, Options{Target: TargetDarwin})
	if err != nil {
		t.Fatal(err)
	}
	img, err := asm.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	vm := cpu.NewCPU()
	var out bytes.Buffer
	vm.Output = &out
	if err := vm.Load(img); err != nil {
		t.Fatal(err)
	}
	if err := vm.Start("_main"); err != nil {
		t.Fatal(err)
	}
	calls := 0
	for !vm.Halted {
		if instr := vm.Text[vm.PC]; instr.Op == "call" {
			calls++
			if vm.Regs[cpu.ESP]%16 != 0 {
				t.Errorf("line %d: %%esp %#x not 16-byte aligned at call", instr.Line, vm.Regs[cpu.ESP])
			}
		}
		if err := vm.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 4 {
		t.Errorf("expected 4 runtime calls, got %d", calls)
	}
	if out.String() != "5\ns\nc\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestE2EDivideByZero(t *testing.T) {
	_, err := runProgram(t, "x = 0 print 1 / x", TargetLinux)
	if !errors.Is(err, cpu.ErrDivide) {
		t.Errorf("expected division fault, got %v", err)
	}
}
