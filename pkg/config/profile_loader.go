package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadProfile overlays a YAML profile file onto cfg. Keys absent from the
// file keep their current values. Unrecognized keys in the file are
// ignored so that shared deployment profiles carrying chat_*, billing_*
// or b2b_* settings load cleanly.
func LoadProfile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config profile read: %w", err)
	}

	overlay := *cfg
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config profile parse: %w", err)
	}

	*cfg = overlay
	return nil
}
