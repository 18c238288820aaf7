// Package config loads persistq settings from YAML or TOML files and
// validates them against an embedded CUE schema.
//
// Loading starts from Default(), so keys absent from a file keep their
// default values. Command-line flags are applied on top by the CLI before
// Validate is called.
package config
