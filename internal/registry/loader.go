package registry

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the conventional location of a registry override inside a
// checkout.
const DefaultPath = ".ci/premerge-registry.yaml"

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in llvm-project registry.
func Default() Definition {
	def, err := ParseDefinitionYAML(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("registry: built-in definition is invalid: %v", err))
	}
	return def
}

// DefaultYAML returns the source of the built-in registry.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// ParseDefinitionYAML decodes a registry from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("registry: definition payload is empty")
	}
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("registry: decode definition: %w", err)
	}
	return def.Normalized()
}

// LoadDefinitionReader reads registry data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("registry: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a registry from an explicit file path.
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("registry: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("registry: %s: %w", path, parseErr)
	}
	return def, nil
}
