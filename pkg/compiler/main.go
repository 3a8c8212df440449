// Package compiler translates sofort programs into 32-bit AT&T x86
// assembly.
//
// Pipeline: source → Scanner → Parser (type check + Emitter) → assembly text
//
// The Parser is single pass: it type-checks each expression and drives the
// Emitter while it recognises it, with no intermediate tree. ParseAST builds
// a syntax tree of the same grammar for tooling.
package compiler
