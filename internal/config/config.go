// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// Config holds all configuration settings for modbind.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Module   ModuleConfig   `toml:"module"`
	Template TemplateConfig `toml:"template"`
	Lua      LuaConfig      `toml:"lua"`
	Page     PageConfig     `toml:"page"`
	Logging  LoggingConfig  `toml:"logging"`

	logger loggerState
}

// ServerConfig holds live preview server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Dir  string `toml:"-"` // Site directory (CLI only, not in config file)
}

// ModuleConfig holds the module directive defaults.
type ModuleConfig struct {
	BaseDir          string `toml:"base_dir"`
	Initializer      string `toml:"initializer"`
	DisposeMethod    string `toml:"dispose_method"`
	TemplateProperty string `toml:"template_property"`
}

// TemplateConfig holds template engine settings.
type TemplateConfig struct {
	Path       string   `toml:"path"`        // Directory prefix for template keys
	Suffix     string   `toml:"suffix"`      // Appended to template keys
	TextPlugin string   `toml:"text_plugin"` // Name of the text loader plugin
	HotLoad    bool     `toml:"hot_load"`
	Debounce   Duration `toml:"debounce"`
}

// LuaConfig holds Lua module loader settings.
type LuaConfig struct {
	Enabled bool `toml:"enabled"`
}

// PageConfig describes the page bound by the preview server and render command.
type PageConfig struct {
	Index  string         `toml:"index"`  // Page file, relative to the site directory
	Values map[string]any `toml:"values"` // Initial root observables
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // 0=errors, 1=loads, 2=transitions, 3=template traffic
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Module: ModuleConfig{
			BaseDir:       "modules",
			Initializer:   "initialize",
			DisposeMethod: "dispose",
		},
		Template: TemplateConfig{
			Path:       "templates",
			Suffix:     ".tmpl.html",
			TextPlugin: "text",
			Debounce:   Duration(100 * time.Millisecond),
		},
		Lua: LuaConfig{
			Enabled: true,
		},
		Page: PageConfig{
			Index:  "index.html",
			Values: map[string]any{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Verbosity: 0,
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (if it exists) and
// MODBIND_* environment variables. CLI flags are applied afterwards with ApplyFlags.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadTOML(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFS is Load for a config file inside fsys, such as an embedded site.
func LoadFS(fsys fs.FS, path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFS(fsys, path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// FilePath returns the conventional config file location for a site directory.
func FilePath(dir string) string {
	if dir == "" {
		return filepath.Join("config", "config.toml")
	}
	return filepath.Join(dir, "config", "config.toml")
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// RegisterFlags adds the configuration flags to a flag set.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("dir", "", "Site directory (default: embedded example site)")
	flags.String("host", "", "Preview listen address")
	flags.Int("port", 0, "Preview listen port")
	flags.String("base-dir", "", "Module base directory")
	flags.String("template-path", "", "Template directory prefix")
	flags.Bool("lua", true, "Load modules with the Lua loader")
	flags.Bool("hot", false, "Reload templates when their files change")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.CountP("verbose", "v", "Verbosity level (use -v, -vv, or -vvv)")
}

// ApplyFlags applies flags the user actually set, overriding every other source.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) {
	if f := flags.Lookup("dir"); f != nil && f.Changed {
		c.Server.Dir = f.Value.String()
	}
	if f := flags.Lookup("host"); f != nil && f.Changed {
		c.Server.Host = f.Value.String()
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		if port, err := flags.GetInt("port"); err == nil {
			c.Server.Port = port
		}
	}
	if f := flags.Lookup("base-dir"); f != nil && f.Changed {
		c.Module.BaseDir = f.Value.String()
	}
	if f := flags.Lookup("template-path"); f != nil && f.Changed {
		c.Template.Path = f.Value.String()
	}
	if f := flags.Lookup("lua"); f != nil && f.Changed {
		c.Lua.Enabled = f.Value.String() == "true"
	}
	if f := flags.Lookup("hot"); f != nil && f.Changed {
		c.Template.HotLoad = f.Value.String() == "true"
	}
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		c.Logging.Level = f.Value.String()
	}
	if f := flags.Lookup("verbose"); f != nil && f.Changed {
		if v, err := flags.GetCount("verbose"); err == nil {
			c.Logging.Verbosity = v
		}
	}
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("MODBIND_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("MODBIND_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MODBIND_BASE_DIR"); v != "" {
		c.Module.BaseDir = v
	}
	if v := os.Getenv("MODBIND_TEMPLATE_PATH"); v != "" {
		c.Template.Path = v
	}
	if v := os.Getenv("MODBIND_LUA"); v != "" {
		c.Lua.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MODBIND_HOT"); v != "" {
		c.Template.HotLoad = v == "true" || v == "1"
	}
	if v := os.Getenv("MODBIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MODBIND_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}
