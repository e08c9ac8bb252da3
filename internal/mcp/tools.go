package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// defaultRenderWait bounds how long render_page waits for loads to settle.
const defaultRenderWait = 2 * time.Second

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_bindings",
		mcp.WithDescription("List the live module bindings with their module path, state and generation"),
	), s.handleListBindings)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List cached templates and whether each has been requested and retrieved"),
	), s.handleListTemplates)

	s.mcp.AddTool(mcp.NewTool("set_value",
		mcp.WithDescription("Set a root value of the page. Bindings that read it update"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Root value name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value as JSON; text that is not JSON is used as a string")),
	), s.handleSetValue)

	s.mcp.AddTool(mcp.NewTool("render_page",
		mcp.WithDescription("Render the bound page as HTML after pending loads settle"),
		mcp.WithNumber("wait_ms", mcp.Description("Longest time to wait for loads, in milliseconds (default 2000)")),
	), s.handleRenderPage)
}

func (s *Server) handleListBindings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bindings, err := s.page.Bindings()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(bindings)
}

func (s *Server) handleListTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates, err := s.page.Templates()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(templates)
}

func (s *Server) handleSetValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value := ParseValue(raw)
	if err := s.page.Set(name, value); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.Log(1, "mcp: set %s = %v", name, value)
	return mcp.NewToolResultText(fmt.Sprintf("set %s", name)), nil
}

func (s *Server) handleRenderPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wait := defaultRenderWait
	if ms := req.GetFloat("wait_ms", 0); ms > 0 {
		wait = time.Duration(ms) * time.Millisecond
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := s.page.Wait(waitCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return mcp.NewToolResultError(err.Error()), nil
	}

	html, err := s.page.HTML()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(html), nil
}

// ParseValue reads a tool argument as JSON, falling back to the text itself.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
