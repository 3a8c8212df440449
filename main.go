package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"sofort/pkg/asm"
	"sofort/pkg/compiler"
	"sofort/pkg/cpu"
	"sofort/pkg/utils"
)

func main() {
	outPath := flag.String("o", "", "output assembly file path (default: input with .s extension, or stdout when reading stdin)")
	targetName := flag.String("target", compiler.DefaultTarget().Name, "target platform: linux, windows or darwin")
	runProgram := flag.Bool("run", false, "run the generated program on the emulator instead of writing it")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: sofort [-o out.s] [-target linux|windows|darwin] [-run] [file]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	target, ok := compiler.LookupTarget(*targetName)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown target %q\n", *targetName)
		os.Exit(2)
	}

	inPath := flag.Arg(0)
	assembly, err := compileInput(inPath, target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *runProgram {
		status, err := run(assembly, target, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			if status == 0 {
				status = 1
			}
		}
		os.Exit(status)
	}

	output := *outPath
	if output == "" && inPath != "" {
		output = utils.AssemblyPath(inPath)
	}
	if output == "" || output == "-" {
		fmt.Print(assembly)
		return
	}
	if err := os.WriteFile(output, []byte(assembly), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write assembly file %q: %v\n", output, err)
		os.Exit(1)
	}
}

// compileInput compiles the named file, or stdin when path is empty.
func compileInput(path string, target compiler.Target) (string, error) {
	var src io.Reader = os.Stdin
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read input file %q: %w", path, err)
		}
		src = bytes.NewReader(data)
	}
	return compiler.Compile(path, src, compiler.Options{Target: target})
}

// run assembles the program and executes it on the emulator.
func run(assembly string, target compiler.Target, out io.Writer) (int, error) {
	img, err := asm.Assemble(assembly)
	if err != nil {
		return 0, fmt.Errorf("assembly failed: %w", err)
	}
	vm := cpu.NewCPU()
	vm.Output = out
	if err := vm.Load(img); err != nil {
		return 0, err
	}
	return vm.Run(target.Symbol("main"))
}
