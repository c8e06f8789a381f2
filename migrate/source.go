package migrate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MapSource is an in-memory Source, mainly for tests and for callers
// that already hold the legacy values.
type MapSource map[string]any

// Lookup implements Source.
func (m MapSource) Lookup(key string) (any, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// FileSource reads legacy preferences from a YAML export (the common
// interchange format for dumped preference plists).
type FileSource struct {
	values map[string]any
}

// OpenYAML loads a YAML preference export from path.
func OpenYAML(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migrate: read source %s: %w", path, err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("migrate: parse source %s: %w", path, err)
	}
	return &FileSource{values: values}, nil
}

// Lookup implements Source.
func (s *FileSource) Lookup(key string) (any, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}
