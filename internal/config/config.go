// Package config handles configuration loading and management for waypoint.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project override file searched upward from the
// working directory.
const ProjectConfigName = ".waypoint.yaml"

// EnvPrefix prefixes environment overrides, e.g. WAYPOINT_DISPATCH_POOL_SIZE.
const EnvPrefix = "WAYPOINT"

// Config holds all configuration for waypoint.
type Config struct {
	Dispatch     DispatchConfig    `mapstructure:"dispatch"`
	Context      ContextConfig     `mapstructure:"context"`
	Gateway      GatewayConfig     `mapstructure:"gateway"`
	State        StateConfig       `mapstructure:"state"`
	Logging      LoggingConfig     `mapstructure:"logging"`
	Capabilities map[string]string `mapstructure:"capabilities"`
	Catalog      string            `mapstructure:"catalog"`

	// ProjectDir is where the project config was found, or the directory
	// the search started from.
	ProjectDir string `mapstructure:"-"`
}

// DispatchConfig holds dispatcher settings.
type DispatchConfig struct {
	PoolSize int `mapstructure:"pool_size"`
	// Selection is "historical" or "in_flight".
	Selection string `mapstructure:"selection"`
}

// ContextConfig holds context store settings.
type ContextConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// GatewayConfig holds remote coordination settings.
type GatewayConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxQueue   int           `mapstructure:"max_queue"`
	SignalsDir string        `mapstructure:"signals_dir"`
	// Endpoints maps endpoint name to location.
	Endpoints map[string]string `mapstructure:"endpoints"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite database. Empty means .waypoint/state.db in the project.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging toggles.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load loads configuration for the current working directory.
// Precedence (highest to lowest):
// 1. Environment variables (WAYPOINT_*)
// 2. Project config (.waypoint.yaml in the directory or a parent)
// 3. User config (~/.config/waypoint/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration searching for the project file from dir upward.
func LoadFrom(dir string) (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectDir := dir
	if projectConfig := findProjectConfig(dir); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
		projectDir = filepath.Dir(projectConfig)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.ProjectDir = projectDir
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file only.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.ProjectDir = filepath.Dir(path)
	return cfg, nil
}

// CatalogPath returns the catalog file resolved against the project
// directory, or "" when no catalog is configured.
func (c *Config) CatalogPath() string {
	if c.Catalog == "" || filepath.IsAbs(c.Catalog) || c.ProjectDir == "" {
		return c.Catalog
	}
	return filepath.Join(c.ProjectDir, c.Catalog)
}

// StatePath returns the database path, defaulting under the project directory.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(c.ProjectDir, ".waypoint", "state.db")
}

// SignalsDir returns the gateway signals directory, defaulting under the
// project directory.
func (c *Config) SignalsDir() string {
	if c.Gateway.SignalsDir != "" {
		return c.Gateway.SignalsDir
	}
	return filepath.Join(c.ProjectDir, ".waypoint", "signals")
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("dispatch.pool_size", cfg.Dispatch.PoolSize)
	v.Set("dispatch.selection", cfg.Dispatch.Selection)
	v.Set("context.ttl", cfg.Context.TTL.String())
	v.Set("context.sweep_interval", cfg.Context.SweepInterval.String())
	v.Set("gateway.timeout", cfg.Gateway.Timeout.String())
	v.Set("gateway.pool_size", cfg.Gateway.PoolSize)
	v.Set("gateway.max_queue", cfg.Gateway.MaxQueue)
	v.Set("gateway.signals_dir", cfg.Gateway.SignalsDir)
	v.Set("gateway.endpoints", cfg.Gateway.Endpoints)
	v.Set("state.path", cfg.State.Path)
	v.Set("logging.debug", cfg.Logging.Debug)
	v.Set("capabilities", cfg.Capabilities)
	v.Set("catalog", cfg.Catalog)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config file for dir, or "".
func GetProjectConfigPath(dir string) string {
	return findProjectConfig(dir)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	for name, location := range cfg.Gateway.Endpoints {
		cfg.Gateway.Endpoints[name] = os.ExpandEnv(location)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Dispatch.PoolSize <= 0 {
		return fmt.Errorf("dispatch.pool_size must be positive, got %d", c.Dispatch.PoolSize)
	}
	switch c.Dispatch.Selection {
	case "historical", "in_flight":
	default:
		return fmt.Errorf("dispatch.selection must be historical or in_flight, got %q", c.Dispatch.Selection)
	}
	if c.Context.TTL <= 0 || c.Context.SweepInterval <= 0 {
		return fmt.Errorf("context.ttl and context.sweep_interval must be positive")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive, got %v", c.Gateway.Timeout)
	}
	if c.Gateway.PoolSize <= 0 {
		return fmt.Errorf("gateway.pool_size must be positive, got %d", c.Gateway.PoolSize)
	}
	if c.Gateway.MaxQueue <= 0 {
		return fmt.Errorf("gateway.max_queue must be positive, got %d", c.Gateway.MaxQueue)
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("dispatch.pool_size", 8)
	v.SetDefault("dispatch.selection", "historical")

	v.SetDefault("context.ttl", "30m")
	v.SetDefault("context.sweep_interval", "5m")

	v.SetDefault("gateway.timeout", "5s")
	v.SetDefault("gateway.pool_size", 4)
	v.SetDefault("gateway.max_queue", 256)
	v.SetDefault("gateway.signals_dir", "")
	v.SetDefault("gateway.endpoints", map[string]string{})

	v.SetDefault("state.path", "")
	v.SetDefault("logging.debug", false)
	v.SetDefault("capabilities", map[string]string{})
	v.SetDefault("catalog", "")
}

// getUserConfigDir returns the XDG config directory for waypoint.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "waypoint")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "waypoint")
	}
	return filepath.Join(home, ".config", "waypoint")
}

// findProjectConfig searches for .waypoint.yaml in dir and its parents.
func findProjectConfig(dir string) string {
	for {
		configPath := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{PoolSize: 8, Selection: "historical"},
		Context:  ContextConfig{TTL: 30 * time.Minute, SweepInterval: 5 * time.Minute},
		Gateway: GatewayConfig{
			Timeout:   5 * time.Second,
			PoolSize:  4,
			MaxQueue:  256,
			Endpoints: map[string]string{},
		},
		Capabilities: map[string]string{},
	}
}
