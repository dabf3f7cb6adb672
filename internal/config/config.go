// Package config provides configuration loading and validation for
// meshtalk.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lanvoice/meshtalk/internal/api"
	"github.com/lanvoice/meshtalk/internal/logging"
	"github.com/lanvoice/meshtalk/internal/mesh"
)

// Config is the root meshtalk configuration.
type Config struct {
	// NodeID pins the local node ID; empty means a random ID per run.
	NodeID string `yaml:"node_id,omitempty" json:"node_id,omitempty"`

	// Mesh contains the mesh session settings.
	Mesh mesh.Config `yaml:"mesh" json:"mesh"`

	// API contains the local status API settings.
	API api.Config `yaml:"api" json:"api"`

	// Logging contains log settings.
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	return Config{
		Mesh:    mesh.DefaultConfig(),
		API:     api.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.Mesh.Validate(); err != nil {
		return err
	}
	return c.API.Validate()
}

// Load reads and parses a configuration file into the given struct.
// Environment variables in the file are expanded before parsing.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Save writes a configuration struct to a file.
func Save(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validator is implemented by configurations that can self-validate.
type Validator interface {
	Validate() error
}

// LoadAndValidate loads a configuration file and validates it when the
// target implements Validator.
func LoadAndValidate(path string, v any) error {
	if err := Load(path, v); err != nil {
		return err
	}
	if validator, ok := v.(Validator); ok {
		return validator.Validate()
	}
	return nil
}

// SampleYAML is the config template written by "meshtalk config init".
const SampleYAML = `# meshtalk configuration

# node_id: ""            # pin the node ID; empty = random per run

mesh:
  display_name: "my-node"
  control_port: 8888      # audio plane uses control_port+1
  discovery_interval: 10s
  heartbeat_interval: 5s
  maintenance_interval: 5s
  node_timeout: 30s
  max_route_age: 60s

api:
  enabled: false
  listen: "127.0.0.1:9090"

logging:
  level: info             # debug, info, warn, error
  format: text            # text, json
  output: stdout          # stdout, stderr, or a file path
`
