package main

import (
	"fmt"
	"os"
	"strings"

	"sofort/pkg/compiler"
)

const testSource = `x = 10
a = [x, 20]
print a[1]
`

func main() {
	src := testSource
	name := "<builtin>"
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		name = os.Args[1]
	}

	fmt.Printf("Source:\n%s\n", src)

	// Scan
	scanner, err := compiler.NewScanner(name, strings.NewReader(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}
	tokens, err := scanner.ScanAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan error:", err)
		os.Exit(1)
	}

	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Printf("  %-8s %-12s %s\n", tok.Kind, tok, tok.Pos)
	}
	fmt.Println()

	// Parse
	stmts, err := compiler.ParseAST(name, strings.NewReader(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	fmt.Println("AST")
	for _, s := range stmts {
		fmt.Println(" ", s)
	}
	fmt.Println()

	// Code generation
	scanner, err = compiler.NewScanner(name, strings.NewReader(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}
	emitter := compiler.NewEmitter(compiler.DefaultTarget())
	parser := compiler.NewParser(scanner, emitter)
	if err := parser.Top(); err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	fmt.Printf("Generated Assembly (target %s, %d string constants)\n", emitter.Target().Name, emitter.Constants().Len())
	if err := emitter.Flush(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "write error:", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Print(parser.Locals())
}
