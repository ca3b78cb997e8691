package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategy Config `yaml:"strategy"`
}

// LoadConfig reads the default strategy parameters from a YAML file. Fields
// absent from the file keep their built-in defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), err
	}

	file := ConfigFile{Strategy: DefaultConfig()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}
	if err := file.Strategy.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("%s: %w", path, err)
	}
	return file.Strategy, nil
}
