// Package migrate copies values out of a legacy preference store into a
// satchel engine. Each legacy value is mapped onto the store's tagged
// variant model; keys that are absent from the source or whose values do
// not fit any variant (heterogeneous arrays, collections nested more
// than one level deep) are skipped with a diagnostic while the rest of
// the migration proceeds. The whole batch lands in the destination via
// a single BulkPut.
package migrate

import (
	"fmt"
	"sort"

	"github.com/satchelkv/satchel/internal/codec"
	"github.com/satchelkv/satchel/internal/logging"
)

// Source provides read access to a legacy preference store.
type Source interface {
	// Lookup returns the native value for key and reports whether the
	// key exists in the source.
	Lookup(key string) (any, bool, error)
}

// Destination accepts the migrated batch. *satchel.Engine satisfies it.
type Destination interface {
	BulkPut(items map[string][]byte, skipIfPresent bool) ([]string, error)
}

// Result summarizes one migration run.
type Result struct {
	// Applied is the number of keys whose stored bytes changed.
	Applied int
	// Skipped lists requested keys that were not migrated, sorted.
	Skipped []string
}

// Run migrates the keys named in plan from src into dst. Keys in
// plan.BooleanKeys are coerced to the boolean variant first, matching
// legacy stores that persist flags as 0/1 integers. Unless
// plan.Overwrite is set, keys already present in the destination are
// left untouched.
func Run(dst Destination, src Source, plan *Plan, logger logging.Logger) (*Result, error) {
	if plan == nil {
		return nil, fmt.Errorf("migrate: nil plan")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	result := &Result{}
	items := make(map[string][]byte, len(plan.Keys)+len(plan.BooleanKeys))

	for _, key := range plan.Keys {
		v, err := convertKey(src, key, false, logger)
		if err != nil {
			return nil, err
		}
		if v == nil {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		items[key] = v
	}
	for _, key := range plan.BooleanKeys {
		v, err := convertKey(src, key, true, logger)
		if err != nil {
			return nil, err
		}
		if v == nil {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		items[key] = v
	}

	if len(items) > 0 {
		changed, err := dst.BulkPut(items, !plan.Overwrite)
		if err != nil {
			return nil, fmt.Errorf("migrate: apply batch: %w", err)
		}
		result.Applied = len(changed)
	}
	sort.Strings(result.Skipped)
	logging.Logf(logger, logging.LevelInfo, "migrated %d keys, skipped %d", result.Applied, len(result.Skipped))
	return result, nil
}

// convertKey encodes one source key, returning nil bytes when the key
// should be skipped. Only source read failures are returned as errors.
func convertKey(src Source, key string, asBool bool, logger logging.Logger) ([]byte, error) {
	native, ok, err := src.Lookup(key)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %q from source: %w", key, err)
	}
	if !ok {
		logging.Logf(logger, logging.LevelWarn, "skipping %q: not present in source", key)
		return nil, nil
	}

	var val codec.Value
	if asBool {
		b, cerr := coerceBool(native)
		if cerr != nil {
			logging.Logf(logger, logging.LevelWarn, "skipping %q: %v", key, cerr)
			return nil, nil
		}
		val = codec.BoolValue(b)
	} else {
		val, err = codec.FromNative(native)
		if err != nil {
			logging.Logf(logger, logging.LevelWarn, "skipping %q: %v", key, err)
			return nil, nil
		}
	}

	enc, err := codec.EncodeValue(val)
	if err != nil {
		logging.Logf(logger, logging.LevelWarn, "skipping %q: %v", key, err)
		return nil, nil
	}
	return enc, nil
}

// coerceBool maps the representations legacy stores use for flags onto
// a boolean.
func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		switch t {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("string %q is not a boolean", t)
	default:
		return false, fmt.Errorf("%T is not coercible to a boolean", v)
	}
}
