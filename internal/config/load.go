package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Override adjusts a decoded configuration before defaults and validation run.
type Override func(*Config)

// WithToVersion overrides the target version when v is not empty.
func WithToVersion(v string) Override {
	return func(c *Config) {
		if v != "" {
			c.ToVersion = v
		}
	}
}

// LoadFile reads, defaults and validates the configuration from a YAML file.
func LoadFile(path string, overrides ...Override) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, overrides...)
}

// Parse decodes YAML configuration bytes, applies overrides and defaults and
// validates the result.
func Parse(data []byte, overrides ...Override) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	for _, o := range overrides {
		o(&cfg)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
