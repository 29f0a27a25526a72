// Package unit names compiled kernels and packs their invocation
// descriptors into the serialized compilation unit the runtime loads.
//
// A kernel id has four colon-separated parts:
//
//	model_name:model_version:method:build_token
//
// The build token is derived from the optimized graph, the target triple and
// the compiler and IR versions, so a kernel whose semantics change also
// changes its id and entry symbol.
package unit
