// Package aot runs the ahead-of-time compilation pipeline: freeze the
// module, clean and specialize each compiled method's graph, optimize it to
// a fixpoint, compile it to a native kernel, and package the kernels with
// their invocation descriptors into a compiled module.
//
// Every failure is reported as a *CompileError whose Kind says which class
// of problem stopped the run. Nothing is persisted by this package; the
// caller writes the returned module and listing.
package aot
