// Package codegen is the "nnc" kernel backend. Elementwise operators lower
// to vector instructions; heavy operators lower to calls into the fixed
// nnc_aten_* runtime. The result is a binary object plus a readable
// listing of the same instruction stream.
package codegen
