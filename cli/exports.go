package cli

import (
	"github.com/zot/modbind/internal/app"
	"github.com/zot/modbind/internal/binding"
	"github.com/zot/modbind/internal/lua"
	"github.com/zot/modbind/internal/mcp"
	"github.com/zot/modbind/internal/server"
)

// Re-export the bound page and its front ends so wrapper commands can
// build on them.
type (
	App          = app.App
	TemplateInfo = app.TemplateInfo
	BindingInfo  = binding.BindingInfo
	Server       = server.Server
	MCPServer    = mcp.Server
)

var (
	NewApp       = app.New
	NewServer    = server.New
	NewMCPServer = mcp.NewServer
	ParseValue   = mcp.ParseValue
	LuaToGo      = lua.LuaToGo
)
