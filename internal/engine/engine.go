// Package engine renders templates for bindings. Named templates come from
// inline script elements or from an append-only cache of asynchronously
// loaded sources shared by every binding that asks for the same key.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zot/modbind/internal/config"
	"github.com/zot/modbind/internal/dom"
	"github.com/zot/modbind/internal/loader"
)

// ModuleVar is the context variable holding the current module instance.
const ModuleVar = "$module"

// Engine selects, loads and renders templates.
// All methods except the HotLoader's file watching must run on the dispatcher.
type Engine struct {
	DefaultPath    string
	DefaultSuffix  string
	TextPluginName string
	Plugins        map[string]loader.TextLoader

	config  *config.Config
	sources map[string]*RemoteSource // never evicted
}

// New creates an engine with the configured path, suffix and plugin name.
func New(cfg *config.Config) *Engine {
	return &Engine{
		DefaultPath:    cfg.Template.Path,
		DefaultSuffix:  cfg.Template.Suffix,
		TextPluginName: cfg.Template.TextPlugin,
		Plugins:        map[string]loader.TextLoader{},
		config:         cfg,
		sources:        map[string]*RemoteSource{},
	}
}

// Log logs a message via the config.
func (e *Engine) Log(level int, format string, args ...interface{}) {
	e.config.Log(level, format, args...)
}

// Source returns the cached source for key, creating it on first request.
func (e *Engine) Source(key string) *RemoteSource {
	if src, ok := e.sources[key]; ok {
		return src
	}
	src := newRemoteSource(e, key)
	e.sources[key] = src
	return src
}

// Lookup returns a cached source without creating one.
func (e *Engine) Lookup(key string) (*RemoteSource, bool) {
	src, ok := e.sources[key]
	return src, ok
}

// Sources lists the cached sources by key.
func (e *Engine) Sources() []*RemoteSource {
	keys := make([]string, 0, len(e.sources))
	for k := range e.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*RemoteSource, len(keys))
	for i, k := range keys {
		out[i] = e.sources[k]
	}
	return out
}

// TemplatePath is the text plugin path for a template key.
func (e *Engine) TemplatePath(key string) string {
	return AddTrailingSlash(e.DefaultPath) + key + e.DefaultSuffix
}

// MakeTemplateSource picks the source for a template reference. A node is an
// anonymous template, or an inline template when it is a script element. A
// name is looked up as a script element id in doc first, then in the cache.
func (e *Engine) MakeTemplateSource(ref any, doc *dom.Node) (Source, error) {
	switch r := ref.(type) {
	case *dom.Node:
		if isScript(r) {
			return &ScriptSource{node: r}, nil
		}
		return &AnonymousSource{node: r}, nil
	case string:
		if doc != nil {
			if el := dom.GetElementByID(doc, r); el != nil && isScript(el) {
				return &ScriptSource{node: el}, nil
			}
		}
		return e.Source(r), nil
	case nil:
		return e.Source(""), nil
	default:
		return nil, fmt.Errorf("unknown template reference %T", ref)
	}
}

func (e *Engine) textPlugin() (loader.TextLoader, bool) {
	l, ok := e.Plugins[e.TextPluginName]
	return l, ok && l != nil
}

func isScript(n *dom.Node) bool {
	return n.Type == dom.ElementNode && n.Tag == "script"
}

// AddTrailingSlash appends "/" to a non-empty path that lacks one.
func AddTrailingSlash(path string) string {
	if path != "" && !strings.HasSuffix(path, "/") {
		return path + "/"
	}
	return path
}
