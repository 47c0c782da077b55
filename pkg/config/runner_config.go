// Package config provides configuration loading for the runner process.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPassInterval = 30 * time.Second
	defaultIntakeQueue  = "relay:events"
)

// RunnerConfig drives the runner process: how often the scheduling passes
// run and where business events come in from.
type RunnerConfig struct {
	// PassInterval is the delay between scheduling/resume/retry passes.
	PassInterval time.Duration `yaml:"pass_interval"`

	Intake IntakeConfig `yaml:"intake"`
}

type IntakeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Queue      string            `yaml:"queue"`
	Connection map[string]string `yaml:"connection"`
}

// LoadRunnerConfig loads runner configuration from a YAML file.
func LoadRunnerConfig(filepath string) (RunnerConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return RunnerConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var config RunnerConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return RunnerConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&config)

	return config, nil
}

// LoadRunnerConfigOrDefault attempts to load runner config from file,
// falling back to defaults if the file doesn't exist.
func LoadRunnerConfigOrDefault(filepath string) RunnerConfig {
	config, err := LoadRunnerConfig(filepath)
	if err != nil {
		config = RunnerConfig{}
		applyDefaults(&config)
	}

	return config
}

func applyDefaults(config *RunnerConfig) {
	if config.PassInterval <= 0 {
		config.PassInterval = defaultPassInterval
	}

	if config.Intake.Queue == "" {
		config.Intake.Queue = defaultIntakeQueue
	}
}

// ValidateRunnerConfig validates the runner configuration.
func ValidateRunnerConfig(config RunnerConfig) error {
	if config.PassInterval < time.Second {
		return fmt.Errorf("pass_interval must be at least one second, got %s", config.PassInterval)
	}

	if config.Intake.Enabled && config.Intake.Queue == "" {
		return fmt.Errorf("intake queue is required when intake is enabled")
	}

	return nil
}
