// Package config builds the immutable configuration of one compiler run
// from command-line values and an optional YAML file.
//
// Precedence, highest first: explicit flags, the config file, defaults.
// A Config is a plain value; the pipeline receives a copy and never reads
// process-wide state.
package config
