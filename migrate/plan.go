package migrate

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Plan names the keys to migrate and how conflicts are handled.
type Plan struct {
	// Keys are migrated with their source type mapped onto the variant
	// model as-is.
	Keys []string `toml:"keys"`
	// BooleanKeys are coerced to the boolean variant regardless of how
	// the source persisted them.
	BooleanKeys []string `toml:"boolean_keys"`
	// Overwrite replaces keys that already exist in the destination.
	Overwrite bool `toml:"overwrite"`
}

// LoadPlan reads a migration plan from a TOML file.
func LoadPlan(path string) (*Plan, error) {
	var plan Plan
	if _, err := toml.DecodeFile(path, &plan); err != nil {
		return nil, fmt.Errorf("migrate: load plan %s: %w", path, err)
	}
	if len(plan.Keys) == 0 && len(plan.BooleanKeys) == 0 {
		return nil, fmt.Errorf("migrate: plan %s names no keys", path)
	}
	return &plan, nil
}
