package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete roomkit configuration
type Config struct {
	Bus     BusConfig     `mapstructure:"bus" yaml:"bus"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Trace   TraceConfig   `mapstructure:"trace" yaml:"trace"`
	TUI     TUIConfig     `mapstructure:"tui" yaml:"tui"`
	Rooms   []RoomConfig  `mapstructure:"rooms" yaml:"rooms"`
}

// BusConfig controls the event bus
type BusConfig struct {
	// MaxListeners is the per-event soft cap; exceeding it only logs a
	// warning. 0 disables the warning.
	MaxListeners int `mapstructure:"max_listeners" yaml:"max_listeners"`
	// WaitTimeoutMs is the default timeout for collaborators that wait for
	// an event (0 = wait forever)
	WaitTimeoutMs int `mapstructure:"wait_timeout_ms" yaml:"wait_timeout_ms"`
}

// WaitTimeout returns WaitTimeoutMs as a time.Duration.
func (b BusConfig) WaitTimeout() time.Duration {
	return time.Duration(b.WaitTimeoutMs) * time.Millisecond
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level to record
	// Options: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the size at which roomkit.log is rotated (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// TraceConfig controls the event tracer
type TraceConfig struct {
	// Enabled attaches the tracer to the bus at startup (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Patterns are glob patterns over event names, e.g. "room:*"
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// TUIConfig controls the terminal UI
type TUIConfig struct {
	// Theme is the color theme (default: "default")
	// Options: "default", "dracula", "nord"
	Theme string `mapstructure:"theme" yaml:"theme"`
	// SidebarWidth is the width of the room list in columns
	// (default: 28, min: 20, max: 60, 0 = default)
	SidebarWidth int `mapstructure:"sidebar_width" yaml:"sidebar_width"`
}

// RoomConfig seeds the room list shown by the client
type RoomConfig struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			MaxListeners:  10,
			WaitTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Trace: TraceConfig{
			Enabled:  false,
			Patterns: []string{"*"},
		},
		TUI: TUIConfig{
			Theme:        "default",
			SidebarWidth: 28,
		},
		Rooms: []RoomConfig{
			{ID: "!abc:matrix.org", Name: "General"},
			{ID: "!dev:matrix.org", Name: "Development"},
			{ID: "!random:matrix.org", Name: "Random"},
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Bus defaults
	v.SetDefault("bus.max_listeners", defaults.Bus.MaxListeners)
	v.SetDefault("bus.wait_timeout_ms", defaults.Bus.WaitTimeoutMs)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	// Trace defaults
	v.SetDefault("trace.enabled", defaults.Trace.Enabled)
	v.SetDefault("trace.patterns", defaults.Trace.Patterns)

	// TUI defaults
	v.SetDefault("tui.theme", defaults.TUI.Theme)
	v.SetDefault("tui.sidebar_width", defaults.TUI.SidebarWidth)

	v.SetDefault("rooms", defaults.Rooms)
}

// Load reads the configuration from the global viper instance into a
// Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roomkit"
	}
	return filepath.Join(home, ".config", "roomkit")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir returns the directory roomkit.log is written to
func LogDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".roomkit", "logs")
	}
	return filepath.Join(home, ".local", "state", "roomkit")
}
