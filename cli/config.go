package cli

import (
	"github.com/zot/modbind/internal/config"
)

// Re-export config types for wrapper projects
type (
	Config         = config.Config
	ServerConfig   = config.ServerConfig
	ModuleConfig   = config.ModuleConfig
	TemplateConfig = config.TemplateConfig
	LuaConfig      = config.LuaConfig
	PageConfig     = config.PageConfig
	LoggingConfig  = config.LoggingConfig
	Duration       = config.Duration
)

// Re-export config functions for wrapper projects
var (
	DefaultConfig = config.DefaultConfig
	Load          = config.Load
	LoadFS        = config.LoadFS
)
