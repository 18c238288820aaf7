package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds every recognized queue option.
type Config struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path" toml:"path"`

	// Table overrides the variant's default table name.
	Table string `yaml:"table" toml:"table"`

	// Variant is fifo, lifo (filo) or unique.
	Variant string `yaml:"variant" toml:"variant"`

	// AutoCommit deletes records as they are read. When false, reads advance
	// a cursor and records are deleted by an explicit Done.
	AutoCommit bool `yaml:"auto_commit" toml:"auto_commit"`

	// Serializer names the payload codec: json, canonical or yaml.
	Serializer string `yaml:"serializer" toml:"serializer"`

	// Driver selects the SQLite driver: sqlite3 (cgo) or sqlite (pure Go).
	Driver string `yaml:"driver" toml:"driver"`

	// Trace logs every SQL statement at debug level for this queue only.
	Trace bool `yaml:"trace" toml:"trace"`

	BusyTimeout  Duration `yaml:"busy_timeout" toml:"busy_timeout"`
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Path:         "persistq.db",
		Variant:      "fifo",
		AutoCommit:   true,
		Serializer:   "json",
		Driver:       "sqlite3",
		BusyTimeout:  Duration{5 * time.Second},
		PollInterval: Duration{time.Second},
	}
}

// Normalize trims whitespace and lowercases enumerated fields.
func (c *Config) Normalize() {
	c.Path = strings.TrimSpace(c.Path)
	c.Table = strings.TrimSpace(c.Table)
	c.Variant = strings.ToLower(strings.TrimSpace(c.Variant))
	c.Serializer = strings.ToLower(strings.TrimSpace(c.Serializer))
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
}

// Duration is a time.Duration written as a string ("250ms", "5s") in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML and TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
