// Package vm implements the kestrel execution core.
//
// This package contains:
//   - Tagged 64-bit value representation
//   - Generational heap with mark/sweep collection and a scope lock
//   - Type registry with single inheritance and attribute tables
//   - Frame-based bytecode interpreter with loop and try blocks
//   - Builtin types, functions and the exception hierarchy
package vm
