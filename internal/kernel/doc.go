// Package kernel turns a fully shaped graph into a single fused kernel.
//
// The core is backend independent: it checks shapes, fixes the calling
// convention, assigns buffers and orders the compute steps. A Backend then
// lowers that Plan into native code for one target.
package kernel
