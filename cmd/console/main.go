package main

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"sofort/pkg/asm"
	"sofort/pkg/compiler"
	"sofort/pkg/cpu"
	"sofort/pkg/utils"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: console <file> [--show-asm] [--trace]")
	}
	filename := os.Args[1]
	showAsm := false
	trace := false
	for _, arg := range os.Args[2:] {
		switch arg {
		case "--show-asm":
			showAsm = true
		case "--trace":
			trace = true
		}
	}

	fullPath, baseDir, err := utils.GetPathInfo(filename)
	if err != nil {
		log.Fatalf("Failed to resolve path: %v", err)
	}
	sourceBytes, err := os.ReadFile(fullPath)
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}

	print("Compiling source file:", fullPath, "\n")
	print("Base directory:", baseDir, "\n")

	target := compiler.DefaultTarget()
	assembly, err := compiler.Compile(fullPath, bytes.NewReader(sourceBytes), compiler.Options{Target: target})
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}

	if showAsm {
		print("Generated Assembly:\n", assembly, "\n")
	}

	img, err := asm.Assemble(assembly)
	if err != nil {
		log.Print(assembly)
		log.Fatalf("Assembly failed: %v", err)
	}

	vm := cpu.NewCPU()
	if err := vm.Load(img); err != nil {
		log.Fatalf("Load failed: %v", err)
	}

	if trace {
		status, err := traceRun(vm, target.Symbol("main"))
		report(vm, status, err)
		return
	}
	status, err := vm.Run(target.Symbol("main"))
	report(vm, status, err)
}

// traceRun is Run with every executed instruction logged to stderr.
func traceRun(vm *cpu.CPU, entry string) (int, error) {
	if err := vm.Start(entry); err != nil {
		return 0, err
	}
	for !vm.Halted && vm.PC >= 0 && vm.PC < len(vm.Text) {
		instr := vm.Text[vm.PC]
		log.Printf("%4d  %-28s eax=%08x esi=%08x esp=%08x", instr.Line, instr, vm.Regs[cpu.EAX], vm.Regs[cpu.ESI], vm.Regs[cpu.ESP])
		if err := vm.Step(); err != nil {
			return vm.Status, err
		}
	}
	if !vm.Halted {
		return 0, vm.Step()
	}
	return vm.Status, nil
}

func report(vm *cpu.CPU, status int, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed after %d instructions: %v\n", vm.Steps, err)
		if status == 0 {
			status = 1
		}
		os.Exit(status)
	}
	fmt.Fprintf(os.Stderr, "run complete: %d instructions, exit status %d\n", vm.Steps, status)
	os.Exit(status)
}
