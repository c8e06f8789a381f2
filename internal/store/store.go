// Package store provides crash-safe reads and writes of the serialized
// key-value map to a single backing file, plus a cheap generation token
// identifying an exact on-disk file state.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/satchelkv/satchel/internal/codec"
)

// ErrNotFound reports that the backing file does not exist. Callers
// decide whether that means bootstrap-as-empty or a real failure.
var ErrNotFound = errors.New("store: map file not found")

// ReadMap loads and decodes the full map from path. Decode failures
// propagate codec.ErrMalformed / codec.ErrTypeMismatch unchanged.
func ReadMap(path string) (map[string][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	return codec.DecodeMap(data)
}

// WriteMapAtomic encodes m and replaces the file at path atomically via
// a temp file and rename, so a concurrent reader or a crash never
// observes a partially written map.
func WriteMapAtomic(path string, m map[string][]byte) error {
	data, err := codec.EncodeMap(m)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// CreateEmptyIfAbsent ensures dir and an empty map file at path exist.
// It reports whether the file was created. The directory already
// existing (including a race with another process) is not an error.
func CreateEmptyIfAbsent(dir, path string) (bool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("store: create directory %s: %w", dir, err)
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("store: stat %s: %w", path, err)
	}
	if err := WriteMapAtomic(path, map[string][]byte{}); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the backing file, tolerating an already-absent file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: remove %s: %w", path, err)
	}
	return nil
}

// CurrentGeneration returns the generation token for the file's current
// on-disk identity, or the deleted generation if the file is absent.
func CurrentGeneration(path string) (Generation, error) {
	gen, err := statGeneration(path)
	if err != nil {
		return Generation{}, fmt.Errorf("store: stat %s: %w", filepath.Clean(path), err)
	}
	return gen, nil
}
