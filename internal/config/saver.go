package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Save marshals the RuleFile to YAML and writes it to the specified path.
func Save(rf *RuleFile, path string) error {
	if rf == nil {
		return fmt.Errorf("rule file cannot be nil")
	}
	ApplyDefaults(rf)

	data, err := yaml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("marshaling rule file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing rule file to %s: %w", path, err)
	}
	return nil
}
