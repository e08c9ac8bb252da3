package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zot/modbind/internal/app"
	"github.com/zot/modbind/internal/binding"
	"github.com/zot/modbind/internal/config"
	"go.uber.org/zap"
)

type fakePage struct {
	values  map[string]any
	waitErr error
	waited  bool
}

func (p *fakePage) HTML() (string, error) {
	return "<html><body>" + p.values["name"].(string) + "</body></html>", nil
}

func (p *fakePage) Set(name string, value any) error {
	if _, ok := p.values[name]; !ok {
		return errors.New("unknown value: " + name)
	}
	p.values[name] = value
	return nil
}

func (p *fakePage) Values() (map[string]any, error) { return p.values, nil }

func (p *fakePage) Bindings() ([]binding.BindingInfo, error) {
	return []binding.BindingInfo{{Name: "person", Path: "modules/person", State: "bound", Generation: 1}}, nil
}

func (p *fakePage) Templates() ([]app.TemplateInfo, error) {
	return []app.TemplateInfo{{Key: "person", Requested: true, Retrieved: false}}, nil
}

func (p *fakePage) Wait(ctx context.Context) error {
	p.waited = true
	return p.waitErr
}

func newTestServer() (*Server, *fakePage) {
	cfg := config.DefaultConfig()
	cfg.SetLogger(zap.NewNop())
	page := &fakePage{values: map[string]any{"name": "Ann", "count": 0}}
	return NewServer(cfg, page, "test"), page
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text, result.IsError
}

func TestListBindingsAndTemplates(t *testing.T) {
	s, _ := newTestServer()

	text, isErr := callTool(t, s.handleListBindings, nil)
	assert.False(t, isErr)
	var bindings []binding.BindingInfo
	require.NoError(t, json.Unmarshal([]byte(text), &bindings))
	assert.Equal(t, "modules/person", bindings[0].Path)

	text, isErr = callTool(t, s.handleListTemplates, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, `"retrieved": false`)
}

func TestSetValue(t *testing.T) {
	s, page := newTestServer()

	_, isErr := callTool(t, s.handleSetValue, map[string]any{"name": "count", "value": "3"})
	assert.False(t, isErr)
	assert.Equal(t, float64(3), page.values["count"])

	_, isErr = callTool(t, s.handleSetValue, map[string]any{"name": "name", "value": "Bob"})
	assert.False(t, isErr)
	assert.Equal(t, "Bob", page.values["name"])

	text, isErr := callTool(t, s.handleSetValue, map[string]any{"name": "nope", "value": "1"})
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown value")

	_, isErr = callTool(t, s.handleSetValue, map[string]any{"value": "1"})
	assert.True(t, isErr)
}

func TestRenderPage(t *testing.T) {
	s, page := newTestServer()
	page.waitErr = context.DeadlineExceeded

	text, isErr := callTool(t, s.handleRenderPage, map[string]any{"wait_ms": float64(10)})
	assert.False(t, isErr)
	assert.True(t, page.waited)
	assert.Equal(t, "<html><body>Ann</body></html>", text)

	page.waitErr = context.Canceled
	_, isErr = callTool(t, s.handleRenderPage, nil)
	assert.True(t, isErr)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, "plain text", ParseValue("plain text"))
	assert.Equal(t, "quoted", ParseValue(`"quoted"`))
	assert.Equal(t, true, ParseValue("true"))
	assert.Equal(t, []any{"a", float64(1)}, ParseValue(`["a", 1]`))
}

func TestResources(t *testing.T) {
	s, _ := newTestServer()

	contents, err := s.readPage(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "<html><body>Ann</body></html>", contents[0].(mcp.TextResourceContents).Text)

	contents, err = s.readValues(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ann","count":0}`, contents[0].(mcp.TextResourceContents).Text)
}

func TestToolsListed(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	resp := s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"list_bindings", "list_templates", "set_value", "render_page"} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
