package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks the configuration against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	value := ctx.Encode(c.schemaView())
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// schemaView flattens the config into the field names used by schema.cue.
func (c Config) schemaView() map[string]any {
	return map[string]any{
		"path":             c.Path,
		"table":            c.Table,
		"variant":          c.Variant,
		"auto_commit":      c.AutoCommit,
		"serializer":       c.Serializer,
		"driver":           c.Driver,
		"trace":            c.Trace,
		"busy_timeout_ms":  c.BusyTimeout.Milliseconds(),
		"poll_interval_ms": c.PollInterval.Milliseconds(),
	}
}
