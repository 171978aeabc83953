// Package config loads the COSE test-harness's non-cryptographic-policy
// settings: default output encoding, verbose level, and where generated
// test vectors live. It never carries an "accepted algorithm list" -- the
// engine itself enforces no such policy (pkg/cose's scope explicitly
// excludes it), and the harness must not smuggle one in through config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the harness's cose.yaml settings.
type Config struct {
	// OutputEncoding is how the harness prints encoded COSE messages:
	// "base64" (default) or "hex".
	OutputEncoding string `yaml:"output_encoding"`

	// Verbose sets the default logrus level when --verbose isn't passed
	// explicitly on the command line.
	Verbose bool `yaml:"verbose"`

	// TestVectorDir is a directory setting for test vectors; it is loaded
	// from cose.yaml but no command reads it.
	TestVectorDir string `yaml:"test_vector_dir"`
}

// Default returns the harness's built-in defaults, used when no cose.yaml
// is present.
func Default() *Config {
	return &Config{OutputEncoding: "base64", TestVectorDir: "./testvectors"}
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.OutputEncoding {
	case "base64", "hex":
	default:
		return fmt.Errorf("output_encoding must be \"base64\" or \"hex\", got %q", c.OutputEncoding)
	}
	return nil
}
