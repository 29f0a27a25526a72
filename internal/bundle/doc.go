// Package bundle assembles the deployable compiled module: the serialized
// compilation unit keyed by its compile spec, the kernel artifacts the unit
// refers to, and metadata about the frozen module it came from.
package bundle
