// Package ir holds the serializable artifacts of a compilation: compile
// specs, invocation descriptors, calling conventions, and the canonical
// encoding used to derive content-addressed identities from them.
//
// ir imports nothing internal. Every other package may import it.
//
// Constraints:
//   - Canonical encodings never contain floats; float payloads are carried
//     by their IEEE-754 bit patterns.
//   - All JSON tags use snake_case.
package ir
