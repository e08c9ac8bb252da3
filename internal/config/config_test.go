package config

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "modules", cfg.Module.BaseDir)
	assert.Equal(t, "initialize", cfg.Module.Initializer)
	assert.Equal(t, "dispose", cfg.Module.DisposeMethod)
	assert.Equal(t, "", cfg.Module.TemplateProperty)
	assert.Equal(t, "templates", cfg.Template.Path)
	assert.Equal(t, ".tmpl.html", cfg.Template.Suffix)
	assert.Equal(t, "text", cfg.Template.TextPlugin)
	assert.True(t, cfg.Lua.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Template.Debounce.Duration())
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9000
host = "0.0.0.0"

[module]
base_dir = "views"
initializer = "setup"

[template]
path = "tmpl"
debounce = "250ms"

[page]
index = "main.html"

[page.values]
current = "people"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("MODBIND_PORT", "9100")
	t.Setenv("MODBIND_VERBOSITY", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	// env beats TOML
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Verbosity())
	// TOML beats defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "views", cfg.Module.BaseDir)
	assert.Equal(t, "setup", cfg.Module.Initializer)
	assert.Equal(t, "dispose", cfg.Module.DisposeMethod)
	assert.Equal(t, "tmpl", cfg.Template.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Template.Debounce.Duration())
	assert.Equal(t, "main.html", cfg.Page.Index)
	assert.Equal(t, "people", cfg.Page.Values["current"])

	// flags beat everything
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--port", "9200", "-vvv", "--lua=false", "--base-dir", "mods"}))
	cfg.ApplyFlags(flags)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Verbosity())
	assert.False(t, cfg.Lua.Enabled)
	assert.Equal(t, "mods", cfg.Module.BaseDir)
	// untouched flags leave values alone
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport ="), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"config/config.toml": {Data: []byte(`
[module]
base_dir = "mods"

[page.values]
title = "Example"
count = 2
`)},
	}
	cfg, err := LoadFS(fsys, "config/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "mods", cfg.Module.BaseDir)
	assert.Equal(t, "Example", cfg.Page.Values["title"])
	assert.Equal(t, int64(2), cfg.Page.Values["count"])

	cfg, err = LoadFS(fstest.MapFS{}, "config/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "modules", cfg.Module.BaseDir)
}

func TestFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("config", "config.toml"), FilePath(""))
	assert.Equal(t, filepath.Join("site", "config", "config.toml"), FilePath("site"))
}

func TestLogVerbosity(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cfg := DefaultConfig()
	cfg.SetLogger(zap.New(core))
	cfg.Logging.Verbosity = 1

	cfg.Log(0, "always %d", 0)
	cfg.Log(1, "loads %d", 1)
	cfg.Log(2, "transitions %d", 2)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "always 0", entries[0].Message)
	assert.Equal(t, "loads 1", entries[1].Message)
}

func TestLogNilConfig(t *testing.T) {
	var cfg *Config
	assert.NotPanics(t, func() { cfg.Log(0, "ignored") })
}
