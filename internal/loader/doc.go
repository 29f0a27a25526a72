// Package loader reads model descriptions from disk and builds the
// graph.Module the compiler consumes.
//
// Two encodings share one schema: YAML (.yaml, .yml) and CUE (.cue). A
// description names the module class, lists its attributes (parameters,
// buffers, constants and submodules) and gives each method body in the
// textual graph form accepted by graph.Parse:
//
//	class: Relu
//	methods:
//	  forward: |
//	    graph(%self : Relu, %x : Tensor):
//	      %y : Tensor = aten::relu(%x)
//	      return (%y)
//
// CUE descriptions are checked against the embedded schema.cue before they
// are decoded.
package loader
