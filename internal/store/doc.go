// Package store provides SQLite-backed storage for compiled modules.
//
// The same schema serves two roles:
//   - Container: a compiled model file holding one module row, its method
//     rows, and the kernels they bind to. Containers are written to a
//     temporary file and renamed into place, so a failed write leaves
//     nothing behind.
//   - Kernel cache: a long-lived database of kernels keyed by kernel id.
//     Kernel ids embed a content-derived build token, so a hit always
//     refers to the same compiled code.
//
// # Database Configuration
//
//   - WAL mode for the cache, rollback journal for containers (a container
//     is a single self-contained file)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Structured columns hold RFC 8785 canonical JSON produced by package ir.
package store
