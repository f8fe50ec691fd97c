// Package vm implements the loom execution core.
//
// This package contains:
//   - Fixed-width bytecode encoding and disassembly
//   - Compiled methods, classes, instances and trait delegation
//   - Fibers: flat locals, frame pointers, operand stack, suspension queue
//   - The dispatch loop and the adaptive host call cache
//   - Host types and the primitive Integer/Float/String/Boolean/List/Dictionary methods
package vm
