package compiler

import "runtime"

// Target captures the platform differences of the emitted assembly: how C
// runtime symbols are named, which directive opens read-only data and whether
// %esp must be 16-byte aligned at every call into the C runtime.
type Target struct {
	Name         string
	SymbolPrefix string
	DataSection  string
	AlignCalls   bool
}

var (
	TargetLinux   = Target{Name: "linux", DataSection: ".section .rodata"}
	TargetWindows = Target{Name: "windows", SymbolPrefix: "_", DataSection: `.section .rdata,"dr"`}
	TargetDarwin  = Target{Name: "darwin", SymbolPrefix: "_", DataSection: ".data", AlignCalls: true}
)

var targets = map[string]Target{
	TargetLinux.Name:   TargetLinux,
	TargetWindows.Name: TargetWindows,
	TargetDarwin.Name:  TargetDarwin,
}

// LookupTarget returns the target registered under name.
func LookupTarget(name string) (Target, bool) {
	t, ok := targets[name]
	return t, ok
}

// DefaultTarget picks the target matching the host OS, falling back to linux.
func DefaultTarget() Target {
	if t, ok := targets[runtime.GOOS]; ok {
		return t
	}
	return TargetLinux
}

// Symbol applies the platform naming convention to a C symbol.
func (t Target) Symbol(name string) string {
	return t.SymbolPrefix + name
}
