package codec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML encodes values as YAML documents.
// Map keys are emitted in sorted order by yaml.v3.
type YAML struct{}

// Name implements Codec.
func (YAML) Name() string { return NameYAML }

// Marshal implements Codec.
func (YAML) Marshal(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}

// Unmarshal implements Codec.
func (YAML) Unmarshal(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return v, nil
}
