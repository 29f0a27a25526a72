// Package harness runs conformance scenarios against the compiler.
//
// A scenario names a model file, the compile settings, and what must hold
// for the result: an expected error kind, kernel executions with expected
// outputs, and assertions over the optimized graph, the descriptors and the
// assembly listing.
//
// # Scenario Format
//
//	name: relu
//	description: "relu lowers to one vector instruction"
//	model: ../models/relu.yaml
//	model_name: relu
//	model_version: "1.0"
//	input_dims: "1,4"
//	build_token: VERTOKEN
//	expect:
//	  kernel_id: relu:1.0:forward:VERTOKEN
//	runs:
//	  - input: [-1, 2, -3, 4]
//	    output: [0, 2, 0, 4]
//	assertions:
//	  - type: op_count
//	    op: aten::relu
//	    count: 1
//	  - type: listing_contains
//	    text: vrelu.f32x8
//
// Paths are relative to the scenario file. A scenario that expects an error
// (expect.error set to an error kind such as UNSUPPORTED_OPERATOR) must not
// list runs or assertions.
//
// # Assertion Types
//
//   - op_absent: no node of the given kind survives optimization
//   - op_count: exactly count nodes of the given kind survive
//   - output_sizes: the descriptor's output sizes
//   - listing_contains: the assembly listing contains text
//   - matches_reference: the kernel agrees with the interpreter on a ramp input
//
// # Golden Listings
//
// RunWithGolden compares the assembly listing with golden/<name>.golden
// next to the scenario files. Scenarios compared this way should pin the
// build token so the listing does not change with the graph digest.
package harness
