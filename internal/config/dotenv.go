package config

import (
	"fmt"
	"os"
	"strings"
)

// LoadDotEnv loads KEY=VALUE pairs from a .env style file into the process
// environment. Existing variables are never overridden, so the real
// environment wins over the file. A missing file is not an error.
func LoadDotEnv(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}

	for i, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("env file line %d: missing '='", i+1)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("env file line %d: empty key", i+1)
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return nil
}
