// Package passes implements the graph rewrites of the compilation pipeline.
//
// Every pass takes ownership of the graph it is given and returns it (or a
// replacement) together with whether anything changed. Callers that need
// the input afterwards must Clone it first.
package passes
