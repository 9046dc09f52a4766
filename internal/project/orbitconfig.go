package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OrbitConfig represents the optional .orbit/config.yaml file.
//
// It carries CLI defaults so a team can commit its preferred hosting mode
// alongside the project.
type OrbitConfig struct {
	// Defaults contains session defaults applied when flags are absent.
	Defaults OrbitDefaults `yaml:"defaults,omitempty"`

	// AssetFields overrides the manifest asset field schema. Each entry is a
	// gjson path into the app config (e.g. "icon", "splash.image").
	AssetFields []string `yaml:"asset_fields,omitempty"`
}

// OrbitDefaults contains default session settings.
type OrbitDefaults struct {
	// Host is the default host type (tunnel, lan, localhost, redirect).
	Host string `yaml:"host,omitempty"`

	// Dev is the default dev-mode flag.
	Dev *bool `yaml:"dev,omitempty"`

	// Minify is the default minify flag.
	Minify *bool `yaml:"minify,omitempty"`

	// HTTPS is the default https flag.
	HTTPS *bool `yaml:"https,omitempty"`
}

// LoadOrbitConfig loads .orbit/config.yaml from a project root.
//
// Parameters:
//   - projectRoot: The project root directory
//
// Returns:
//   - *OrbitConfig: The parsed config, or an empty config if the file is absent
//   - error: Any parse or read error other than the file not existing
func LoadOrbitConfig(projectRoot string) (*OrbitConfig, error) {
	path := filepath.Join(projectRoot, ".orbit", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OrbitConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read .orbit/config.yaml: %w", err)
	}

	var cfg OrbitConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse .orbit/config.yaml: %w", err)
	}
	return &cfg, nil
}
