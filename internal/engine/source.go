package engine

import (
	"github.com/zot/modbind/internal/dom"
	"github.com/zot/modbind/internal/reactive"
)

// Placeholder is the content of a source whose text has not arrived.
// It is non-empty so "not loaded" differs from "loaded empty".
const Placeholder = " "

// Source supplies template text.
type Source interface {
	Key() string
	// Text returns the current text. Reading it inside a computation makes the
	// computation depend on later changes.
	Text() string
}

// RemoteSource is a cached template fetched once through the text plugin.
type RemoteSource struct {
	engine    *Engine
	key       string
	content   *reactive.Observable[string]
	requested bool
	retrieved bool
}

func newRemoteSource(e *Engine, key string) *RemoteSource {
	return &RemoteSource{
		engine:  e,
		key:     key,
		content: reactive.NewObservable(Placeholder),
	}
}

// Key implements Source.
func (s *RemoteSource) Key() string { return s.key }

// Requested reports whether the fetch has been issued.
func (s *RemoteSource) Requested() bool { return s.requested }

// Retrieved reports whether the fetched text has arrived.
func (s *RemoteSource) Retrieved() bool { return s.retrieved }

// Content is the observable holding the text.
func (s *RemoteSource) Content() *reactive.Observable[string] { return s.content }

// Text implements Source. The first read issues the fetch; an empty key has
// empty content and never fetches.
func (s *RemoteSource) Text() string {
	if !s.requested {
		if s.key == "" {
			s.content.Set("")
		} else {
			s.fetch()
		}
	}
	return s.content.Get()
}

func (s *RemoteSource) fetch() {
	s.requested = true
	plugin, ok := s.engine.textPlugin()
	if !ok {
		s.engine.Log(0, "engine: no text plugin %q for template %s", s.engine.TextPluginName, s.key)
		return
	}
	path := s.engine.TemplatePath(s.key)
	s.engine.Log(3, "engine: fetching template %s from %s", s.key, path)
	plugin.LoadText(path, s.Publish)
}

// Publish stores fetched text and marks the source retrieved.
// Publishing text equal to the placeholder still notifies readers.
func (s *RemoteSource) Publish(text string) {
	s.retrieved = true
	if s.content.Value() == text {
		s.content.Notify()
		return
	}
	s.content.Set(text)
}

// ScriptSource is a template held in a script element.
type ScriptSource struct {
	node *dom.Node
}

// Key implements Source.
func (s *ScriptSource) Key() string { return s.node.ID() }

// Text implements Source.
func (s *ScriptSource) Text() string { return dom.InnerHTML(s.node) }

// AnonymousSource is a template made of a container's own child nodes.
type AnonymousSource struct {
	node *dom.Node
}

// Key implements Source.
func (s *AnonymousSource) Key() string { return "" }

// Text implements Source.
func (s *AnonymousSource) Text() string { return dom.InnerHTML(s.node) }

// Nodes returns copies of the template nodes.
func (s *AnonymousSource) Nodes() []*dom.Node { return dom.CloneAll(s.node.Children) }

// InlineSource is a template supplied directly by a module instance.
type InlineSource struct {
	text string
}

// NewInlineSource wraps template text.
func NewInlineSource(text string) *InlineSource { return &InlineSource{text: text} }

// Key implements Source.
func (s *InlineSource) Key() string { return "" }

// Text implements Source.
func (s *InlineSource) Text() string { return s.text }
