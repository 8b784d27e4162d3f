package cli

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/kestrel-os/kestrel/pkg/config"
	"github.com/kestrel-os/kestrel/pkg/loader"
	"github.com/kestrel-os/kestrel/pkg/types"
)

// DefaultConfigNames are tried in the working directory when --config is not given.
var DefaultConfigNames = []string{"kestrel.config.json", "kestrel.config.yaml", "kestrel.config.yml"}

// Config holds the CLI's own settings.
type Config struct {
	ConfigFile string
	ProgramDir string
	Verbosity  string
	Version    string
}

// NewConfig creates a CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		Verbosity: "info",
		Version:   "dev",
	}
}

// ExitError carries a nonzero exit code of a user program out of Execute.
type ExitError struct {
	Program string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with %d", e.Program, e.Code)
}

// configPath returns the config file in effect, or "" when defaults apply.
func (c *CLI) configPath() string {
	if p := c.viper.GetString("config"); p != "" {
		return p
	}
	for _, name := range DefaultConfigNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// kernelConfig loads the config file, if any, and applies flag and
// environment overrides on top of it.
func (c *CLI) kernelConfig() (*types.KernelConfig, error) {
	mgr := config.NewManager()

	var cfg *types.KernelConfig
	if p := c.configPath(); p != "" {
		loaded, err := mgr.LoadConfig(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		cfg = loaded
	} else {
		cfg = mgr.GetDefaultConfig()
	}

	v := c.viper
	if v.IsSet("programs") {
		cfg.ProgramDir = v.GetString("programs")
	}
	if v.IsSet("max-threads") {
		cfg.MaxThreads = v.GetInt("max-threads")
	}
	if v.IsSet("stack-size") {
		cfg.StackSize = v.GetInt("stack-size")
	}
	if v.IsSet("heap-limit") {
		cfg.HeapLimit = v.GetInt("heap-limit")
	}
	if v.IsSet("scheduler") {
		cfg.Scheduler = types.SchedulerPolicy(v.GetString("scheduler"))
	}
	if v.IsSet("seed") {
		cfg.RandomSeed = v.GetInt64("seed")
	}
	if v.IsSet("quantum") {
		cfg.Quantum = v.GetInt("quantum")
	}
	if v.IsSet("idle-timeout") {
		cfg.IdleTimeout = v.GetInt("idle-timeout")
	}
	if v.IsSet("verbosity") {
		cfg.LogLevel = types.LogLevel(v.GetString("verbosity"))
	}

	if err := mgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// programPath maps a command-line program name to its path in the
// program directory: "hello" and "hello.kx.yaml" both become "/hello.kx.yaml".
func programPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty program name")
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if !strings.Contains(path.Base(name), ".") {
		name += loader.Extension
	}
	return name, nil
}
