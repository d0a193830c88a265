package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the run settings that can be kept in a YAML file. Flags given on the
// command line take precedence.
type Config struct {
	MaxSteps       uint64    `yaml:"max_steps"`
	StackSize      uint64    `yaml:"stack_size"`
	InfoAt         string    `yaml:"info_at"`
	LinuxOpenFlags bool      `yaml:"linux_open_flags"`
	Env            []string  `yaml:"env"`
	Log            LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads a config file. Unknown keys are rejected so typos do not pass silently.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	if cfg.Log.Level != "" {
		if _, err := ParseLevel(cfg.Log.Level); err != nil {
			return nil, err
		}
	}
	if cfg.InfoAt != "" {
		if err := new(StepMatcherFlag).Set(cfg.InfoAt); err != nil {
			return nil, fmt.Errorf("info_at: %w", err)
		}
	}
	return &cfg, nil
}
