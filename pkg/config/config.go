// Package config loads the differentiator's optional JSON configuration:
// extra type coercions layered on top of the default environment, and a
// verbosity switch for the CLI driver.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// CoercionEntry names one additional implicit conversion to register beside
// the built-in int/float/double/long/unknown coercions.
type CoercionEntry struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Config is the differentiator's configuration file shape.
type Config struct {
	ExtraCoercions []CoercionEntry `json:"extra_coercions"`
	Verbose        bool            `json:"verbose"`
}

// DefaultConfig returns the configuration used when no file is present: no
// extra coercions, non-verbose.
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig reads filename as JSON. A missing file is not an error: it
// warns and falls back to DefaultConfig, matching the teacher's tolerance
// for an absent config file. A present-but-malformed file is an error.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Printf("WARNING: Failed to read config file '%s': %v. Using default configuration.\n", filename, err)
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filename, err)
	}

	fmt.Printf("INFO: Successfully loaded configuration from '%s'.\n", filename)
	return &cfg, nil
}
