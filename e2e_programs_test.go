package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sofort/pkg/compiler"
	"sofort/pkg/cpu"
)

// TestPrograms compiles and runs every testdata/programs/*.sf file and
// compares its output with the matching .out file. Programs whose name
// starts with "bounds" are expected to abort.
func TestPrograms(t *testing.T) {
	files, err := filepath.Glob("testdata/programs/*.sf")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no programs found")
	}

	for _, srcPath := range files {
		name := strings.TrimSuffix(filepath.Base(srcPath), ".sf")
		t.Run(name, func(t *testing.T) {
			want, err := os.ReadFile(strings.TrimSuffix(srcPath, ".sf") + ".out")
			if err != nil {
				t.Fatalf("Failed to read expected output: %v", err)
			}

			assembly, err := compileInput(srcPath, compiler.TargetLinux)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}

			var output bytes.Buffer
			status, err := run(assembly, compiler.TargetLinux, &output)
			if strings.HasPrefix(name, "bounds") {
				if !errors.Is(err, cpu.ErrAborted) {
					t.Errorf("expected abort, got status %d, %v", status, err)
				}
			} else if err != nil || status != 0 {
				t.Fatalf("Run failed with status %d: %v\nAssembly:\n%s", status, err, assembly)
			}

			if output.String() != string(want) {
				t.Errorf("output mismatch\nexpected:\n%s\ngot:\n%s", want, output.String())
			}
		})
	}
}
