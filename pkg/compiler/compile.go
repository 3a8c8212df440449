package compiler

import (
	"fmt"
	"io"
	"strings"
)

// Options controls code generation.
type Options struct {
	// Target selects the platform conventions. The zero value means the
	// host platform.
	Target Target
}

// Compile translates a whole program read from src into assembly text.
// name is used in error positions only. Nothing is returned when the program
// contains an error.
func Compile(name string, src io.Reader, opts Options) (string, error) {
	target := opts.Target
	if target.Name == "" {
		target = DefaultTarget()
	}

	scanner, err := NewScanner(name, src)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", displayName(name), err)
	}

	emitter := NewEmitter(target)
	if err := NewParser(scanner, emitter).Top(); err != nil {
		return "", err
	}

	var out strings.Builder
	if err := emitter.Flush(&out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// CompileString is Compile for in-memory source.
func CompileString(src string, opts Options) (string, error) {
	return Compile("", strings.NewReader(src), opts)
}

func displayName(name string) string {
	if name == "" {
		return "<stdin>"
	}
	return name
}
