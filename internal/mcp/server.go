// Package mcp exposes a bound page to MCP clients: tools to inspect module
// bindings and templates, set root values and render the page, and resources
// for the rendered page and binding list.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/zot/modbind/internal/app"
	"github.com/zot/modbind/internal/binding"
	"github.com/zot/modbind/internal/config"
)

// Page is the bound page served to MCP clients.
type Page interface {
	HTML() (string, error)
	Set(name string, value any) error
	Values() (map[string]any, error)
	Bindings() ([]binding.BindingInfo, error)
	Templates() ([]app.TemplateInfo, error)
	Wait(ctx context.Context) error
}

// Server is an MCP server for one page.
type Server struct {
	config *config.Config
	page   Page
	mcp    *server.MCPServer
}

// NewServer creates an MCP server with the standard tools and resources.
func NewServer(cfg *config.Config, page Page, version string) *Server {
	s := &Server{
		config: cfg,
		page:   page,
		mcp: server.NewMCPServer("modbind", version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Log logs a message via the config.
func (s *Server) Log(level int, format string, args ...interface{}) {
	s.config.Log(level, format, args...)
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	s.Log(1, "mcp: serving on stdio")
	return server.ServeStdio(s.mcp)
}
