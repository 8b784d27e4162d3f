// Package config handles kernel configuration loading and validation
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kestrel-os/kestrel/pkg/types"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a JSON or YAML file, fills defaults and validates.
func (m *Manager) LoadConfig(path string) (*types.KernelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return m.ParseConfig(data)
}

// ParseConfig decodes raw config bytes. JSON is tried first, then YAML.
func (m *Manager) ParseConfig(data []byte) (*types.KernelConfig, error) {
	var cfg types.KernelConfig

	if err := json.Unmarshal(data, &cfg); err != nil {
		cfg = types.KernelConfig{}
		if yerr := yaml.Unmarshal(data, &cfg); yerr != nil {
			return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", yerr)
		}
	}

	cfg.ApplyDefaults()
	if err := m.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(cfg *types.KernelConfig) error {
	if cfg.Version != "1.0" {
		return fmt.Errorf("%w: unsupported config version: %s", ErrInvalidConfig, cfg.Version)
	}
	if cfg.MaxThreads < 1 {
		return fmt.Errorf("%w: maxThreads must be at least 1, got %d", ErrInvalidConfig, cfg.MaxThreads)
	}
	if cfg.StackSize < types.MinStackSize {
		return fmt.Errorf("%w: stackSize must be at least %d, got %d", ErrInvalidConfig, types.MinStackSize, cfg.StackSize)
	}
	if cfg.HeapLimit < cfg.StackSize {
		return fmt.Errorf("%w: heapLimit %d cannot hold a single stack of %d", ErrInvalidConfig, cfg.HeapLimit, cfg.StackSize)
	}
	if _, err := types.ParseSchedulerPolicy(string(cfg.Scheduler)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Quantum < 0 {
		return fmt.Errorf("%w: quantum cannot be negative", ErrInvalidConfig)
	}
	if cfg.IdleTimeout < 0 {
		return fmt.Errorf("%w: idleTimeout cannot be negative", ErrInvalidConfig)
	}
	if !types.ValidLogLevel(cfg.LogLevel) {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.LogLevel)
	}
	return nil
}

// GetDefaultConfig returns the configuration used when no file is given
func (m *Manager) GetDefaultConfig() *types.KernelConfig {
	enabled := false
	cfg := &types.KernelConfig{
		Notifications: &types.NotificationConfig{
			Enabled: &enabled,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// SaveConfig writes cfg as indented JSON, or YAML when path ends in .yaml/.yml.
func (m *Manager) SaveConfig(path string, cfg *types.KernelConfig) error {
	var (
		data []byte
		err  error
	)
	if isYAMLPath(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func isYAMLPath(path string) bool {
	n := len(path)
	return (n > 5 && path[n-5:] == ".yaml") || (n > 4 && path[n-4:] == ".yml")
}
