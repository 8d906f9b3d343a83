package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// LoadFile layers a JSON5 config file over cfg. Keys present in the file
// override cfg, zero values included; absent keys leave cfg untouched.
// cfg is unchanged when the file cannot be decoded.
func LoadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	merged := *cfg
	if err := json5.Unmarshal(raw, &merged); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*cfg = merged
	return nil
}
