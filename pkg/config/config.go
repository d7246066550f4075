// Package config loads YAML configuration files for graft. Values may
// reference environment variables with $VAR or ${VAR} syntax; they are
// expanded before parsing, so secrets like auth tokens can stay out of the
// file itself.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by config types that check themselves after
// loading.
type Validator interface {
	Validate() error
}

// Load reads filename, expands environment references, and unmarshals the
// result into target. When target implements Validator, validation runs as
// part of the load.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("parse config file %s: %w", filename, err)
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}

// LoadWithDefaults loads filename, falling back to defaultFile when filename
// does not exist.
func LoadWithDefaults[T any](filename, defaultFile string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if defaultFile != "" {
			return Load(defaultFile, target)
		}
		return fmt.Errorf("config file not found: %s", filename)
	}
	return Load(filename, target)
}

// MustLoad is Load for initialization paths where a bad config is fatal.
func MustLoad[T any](filename string, target *T) {
	if err := Load(filename, target); err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
}
