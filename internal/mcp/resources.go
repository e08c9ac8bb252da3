package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	PageURI     = "modbind://page"
	BindingsURI = "modbind://bindings"
	ValuesURI   = "modbind://values"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(PageURI, "Page",
		mcp.WithResourceDescription("The bound page as currently rendered"),
		mcp.WithMIMEType("text/html"),
	), s.readPage)

	s.mcp.AddResource(mcp.NewResource(BindingsURI, "Bindings",
		mcp.WithResourceDescription("Live module bindings"),
		mcp.WithMIMEType("application/json"),
	), s.readBindings)

	s.mcp.AddResource(mcp.NewResource(ValuesURI, "Values",
		mcp.WithResourceDescription("Root values of the page"),
		mcp.WithMIMEType("application/json"),
	), s.readValues)
}

func (s *Server) readPage(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	html, err := s.page.HTML()
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{URI: PageURI, MIMEType: "text/html", Text: html}}, nil
}

func (s *Server) readBindings(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	bindings, err := s.page.Bindings()
	if err != nil {
		return nil, err
	}
	return jsonContents(BindingsURI, bindings)
}

func (s *Server) readValues(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	values, err := s.page.Values()
	if err != nil {
		return nil, err
	}
	return jsonContents(ValuesURI, values)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)}}, nil
}
