// Package config loads named command targets from a YAML file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/transport"
	"gopkg.in/yaml.v3"
)

// DefaultCleanupDelay is how long pushed artifacts live before deletion.
const DefaultCleanupDelay = 10 * time.Second

// Built-in target names.
const (
	TargetPlugin = "plugin"
	TargetExport = "export"
)

// ErrUnknownTarget is returned by Resolve for a name that is neither
// configured nor a parseable address.
var ErrUnknownTarget = errors.New("unknown target")

// Target is a named listener plus how to talk to it.
type Target struct {
	Name    string        `yaml:"-" json:"name"`
	Network string        `yaml:"network,omitempty" json:"network,omitempty"`
	Host    string        `yaml:"host,omitempty" json:"host,omitempty"`
	Port    int           `yaml:"port,omitempty" json:"port,omitempty"`
	Path    string        `yaml:"path,omitempty" json:"path,omitempty"`
	URL     string        `yaml:"url,omitempty" json:"url,omitempty"`
	Policy  string        `yaml:"policy,omitempty" json:"policy,omitempty"`
	Format  string        `yaml:"format,omitempty" json:"format,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Address returns the transport address of the target.
func (t Target) Address() transport.Address {
	return transport.Address{
		Network: t.Network,
		Host:    t.Host,
		Port:    t.Port,
		Path:    t.Path,
		URL:     t.URL,
	}
}

// SendPolicy returns the parsed failure policy.
func (t Target) SendPolicy() (transport.Policy, error) {
	return transport.ParsePolicy(t.Policy)
}

// CommandFormat returns the parsed line format.
func (t Target) CommandFormat() (command.Format, error) {
	return command.ParseFormat(t.Format)
}

// Validate checks address, policy and format.
func (t Target) Validate() error {
	if err := t.Address().Validate(); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	if _, err := t.SendPolicy(); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	if _, err := t.CommandFormat(); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	return nil
}

// Config is the resolved cmdport configuration.
type Config struct {
	DefaultTarget string            `yaml:"default_target,omitempty"`
	CleanupDelay  time.Duration     `yaml:"cleanup_delay,omitempty"`
	TempDir       string            `yaml:"temp_dir,omitempty"`
	Targets       map[string]Target `yaml:"targets,omitempty"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`
}

// Env holds environment overrides.
type Env struct {
	ConfigPath   string        `env:"CMDPORT_CONFIG"`
	Target       string        `env:"CMDPORT_TARGET"`
	Timeout      time.Duration `env:"CMDPORT_TIMEOUT"`
	CleanupDelay time.Duration `env:"CMDPORT_CLEANUP_DELAY"`
	Policy       string        `env:"CMDPORT_POLICY"`
}

// Default returns the built-in configuration: a plugin loader that reports
// failures and an export channel that swallows them.
func Default() Config {
	return Config{
		DefaultTarget: TargetPlugin,
		CleanupDelay:  DefaultCleanupDelay,
		Targets: map[string]Target{
			TargetPlugin: {
				Name:    TargetPlugin,
				Network: transport.NetworkTCP,
				Host:    "localhost",
				Port:    7001,
				Policy:  string(transport.PolicyPropagate),
				Format:  string(command.FormatPlain),
			},
			TargetExport: {
				Name:    TargetExport,
				Network: transport.NetworkTCP,
				Host:    "localhost",
				Port:    7002,
				Policy:  string(transport.PolicySwallow),
				Format:  string(command.FormatPlain),
			},
		},
	}
}

// DefaultPath returns the XDG-compliant config file path.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "cmdport", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmdport", "config.yaml")
	}
	return filepath.Join(home, ".config", "cmdport", "config.yaml")
}

// ParseEnv reads environment overrides.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Load builds the configuration from defaults, the config file and the
// environment. An explicit path (argument or CMDPORT_CONFIG) must exist; the
// default path is optional.
func Load(path string) (Config, error) {
	e, err := ParseEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	explicit := path != "" || e.ConfigPath != ""
	if path == "" {
		path = e.ConfigPath
	}
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.merge(data); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv(e)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge overlays YAML data onto the receiver. Targets with a built-in name
// replace the built-in entirely.
func (c *Config) merge(data []byte) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}

	if file.DefaultTarget != "" {
		c.DefaultTarget = file.DefaultTarget
	}
	if file.CleanupDelay > 0 {
		c.CleanupDelay = file.CleanupDelay
	}
	if file.TempDir != "" {
		c.TempDir = file.TempDir
	}
	for name, t := range file.Targets {
		t.Name = name
		if t.Network == "" {
			t.Network = transport.NetworkTCP
		}
		c.Targets[name] = t
	}
	return nil
}

func (c *Config) applyEnv(e Env) {
	if e.Target != "" {
		c.DefaultTarget = e.Target
	}
	if e.CleanupDelay > 0 {
		c.CleanupDelay = e.CleanupDelay
	}
	for name, t := range c.Targets {
		if e.Timeout > 0 {
			t.Timeout = e.Timeout
		}
		if e.Policy != "" {
			t.Policy = e.Policy
		}
		c.Targets[name] = t
	}
}

// Validate checks every target.
func (c Config) Validate() error {
	for _, name := range c.TargetNames() {
		if err := c.Targets[name].Validate(); err != nil {
			return err
		}
	}
	if c.CleanupDelay < 0 {
		return fmt.Errorf("cleanup_delay must not be negative")
	}
	return nil
}

// TargetNames returns the configured target names in sorted order.
func (c Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named target. An empty name selects the default target.
// A name that is not configured but parses as an address ("host:port",
// "unix://...", "ws://...") yields an ad-hoc target with propagate policy.
func (c Config) Resolve(name string) (Target, error) {
	if name == "" {
		name = c.DefaultTarget
	}
	if t, ok := c.Targets[name]; ok {
		return t, nil
	}

	if strings.Contains(name, ":") {
		addr, err := transport.ParseAddress(name)
		if err != nil {
			return Target{}, fmt.Errorf("%w %q: %v", ErrUnknownTarget, name, err)
		}
		return Target{
			Name:    name,
			Network: addr.Network,
			Host:    addr.Host,
			Port:    addr.Port,
			Path:    addr.Path,
			URL:     addr.URL,
			Policy:  string(transport.PolicyPropagate),
		}, nil
	}

	return Target{}, fmt.Errorf("%w %q (configured: %s)", ErrUnknownTarget, name, strings.Join(c.TargetNames(), ", "))
}

// ArtifactDir returns the directory pushed artifacts are written to.
func (c Config) ArtifactDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}
