package staticsite

import (
	"fmt"

	"dario.cat/mergo"
)

// Merge deep-merges overrides into defaults in place. Values from overrides win,
// nested maps are merged key by key, and slices are replaced wholesale.
func Merge(defaults, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := mergo.Merge(&defaults, overrides, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge overrides: %w", err)
	}
	return nil
}
