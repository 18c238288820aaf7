package codec

import (
	"fmt"
	"sort"
)

// Codec encodes application values into payload bytes and back.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string

	// Marshal encodes v. Errors mean the value cannot be represented.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes a payload produced by Marshal.
	Unmarshal(data []byte) (any, error)
}

// Codec names accepted by Lookup.
const (
	NameJSON      = "json"
	NameCanonical = "canonical"
	NameYAML      = "yaml"
)

var registry = map[string]Codec{
	NameJSON:      JSON{},
	NameCanonical: Canonical{},
	NameYAML:      YAML{},
}

// Lookup returns the codec registered under name.
// An empty name selects JSON.
func Lookup(name string) (Codec, error) {
	if name == "" {
		return JSON{}, nil
	}
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown serializer %q: must be one of %v", name, Names())
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
