package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/persistq/internal/codec"
	"github.com/roach88/persistq/internal/config"
	"github.com/roach88/persistq/internal/store"
)

// Scenario defines a queue test scenario: a queue configuration and the
// steps to run against it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Variant is fifo (default), lifo/filo or unique.
	Variant string `yaml:"variant,omitempty"`

	// AutoCommit selects delete-on-get. Nil means true.
	AutoCommit *bool `yaml:"auto_commit,omitempty"`

	// Serializer names the payload codec. Empty uses the queue default.
	Serializer string `yaml:"serializer,omitempty"`

	// Steps run in order against one queue.
	Steps []Step `yaml:"steps"`
}

// Step is one queue operation with an optional expectation.
type Step struct {
	// Op is the operation: put, get, peek, done, remove, size or reopen.
	Op string `yaml:"op"`

	// Value is the item for put.
	Value any `yaml:"value,omitempty"`

	// ID targets a record for get and remove.
	ID int64 `yaml:"id,omitempty"`

	// Block makes get wait for an item.
	Block bool `yaml:"block,omitempty"`

	// Timeout bounds a blocking get, e.g. "100ms".
	Timeout config.Duration `yaml:"timeout,omitempty"`

	// Expect validates the step outcome. If nil, no validation is performed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the outcome fields a step must match. Unset fields are not
// checked.
type Expect struct {
	// Value is compared by canonical JSON encoding, so 1 matches 1.0.
	Value any `yaml:"value,omitempty"`

	ID      *int64 `yaml:"id,omitempty"`
	Size    *int   `yaml:"size,omitempty"`
	Removed *int64 `yaml:"removed,omitempty"`

	// Empty expects get or peek to find nothing.
	Empty bool `yaml:"empty,omitempty"`

	// Rejected expects put to be refused as a duplicate.
	Rejected bool `yaml:"rejected,omitempty"`

	// Missing expects remove to find no record.
	Missing bool `yaml:"missing,omitempty"`
}

// Step operations.
const (
	OpPut    = "put"
	OpGet    = "get"
	OpPeek   = "peek"
	OpDone   = "done"
	OpRemove = "remove"
	OpSize   = "size"
	OpReopen = "reopen"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// autoCommit resolves the AutoCommit default.
func (s *Scenario) autoCommit() bool {
	return s.AutoCommit == nil || *s.AutoCommit
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := store.ParsePolicy(s.Variant); err != nil {
		return err
	}

	if s.Serializer != "" {
		if _, err := codec.Lookup(s.Serializer); err != nil {
			return err
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpPut:
		if st.Expect != nil && (st.Expect.Empty || st.Expect.Missing) {
			return fmt.Errorf("steps[%d]: put cannot expect empty or missing", index)
		}
	case OpGet, OpPeek:
		if st.Op == OpPeek && (st.Block || st.ID != 0) {
			return fmt.Errorf("steps[%d]: peek takes no block or id", index)
		}
		if st.Timeout.Duration < 0 {
			return fmt.Errorf("steps[%d]: timeout must be non-negative", index)
		}
	case OpRemove:
		if st.ID <= 0 {
			return fmt.Errorf("steps[%d]: id is required for remove", index)
		}
	case OpDone, OpSize, OpReopen:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.Op != OpPut && st.Value != nil {
		return fmt.Errorf("steps[%d]: value is only valid for put", index)
	}

	return nil
}
