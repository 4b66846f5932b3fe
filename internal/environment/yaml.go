package environment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads an environment from a YAML file. A missing file yields an
// empty environment.
func LoadFile(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	env := New()
	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	env.ensureMaps()
	return env, nil
}

// SaveFile writes the environment as YAML.
func (e *Environment) SaveFile(path string) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal environment: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write environment: %w", err)
	}
	return nil
}
