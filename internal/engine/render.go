package engine

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/zot/modbind/internal/dom"
	"github.com/zot/modbind/internal/module"
	"github.com/zot/modbind/internal/reactive"
)

// AfterRender is called with the rendered nodes and the data they are bound to.
type AfterRender func(nodes []*dom.Node, data any)

// RenderOptions configures one template binding. The same options value is
// passed to every render of that binding.
type RenderOptions struct {
	// TemplateProperty returns the name of an instance property holding inline
	// template text. It is called while rendering, so observables it reads
	// trigger a re-render.
	TemplateProperty func() string
	AfterRender      AfterRender

	original AfterRender // set once AfterRender has been wrapped
	gate     *RemoteSource
}

// RenderTemplate selects the source for ref and renders it with ctx.
// An inline template from the module instance's TemplateProperty wins over
// the named template. While a cached source has not been retrieved the
// options' AfterRender is wrapped so it does nothing for placeholder renders.
func (e *Engine) RenderTemplate(ref any, ctx *reactive.Context, opts *RenderOptions, doc *dom.Node) ([]*dom.Node, error) {
	if opts == nil {
		opts = &RenderOptions{}
	}

	src, err := e.selectSource(ref, ctx, opts, doc)
	if err != nil {
		return nil, err
	}

	remote, _ := src.(*RemoteSource)
	opts.gate = remote
	if opts.AfterRender != nil && opts.original == nil && remote != nil && !remote.Retrieved() {
		opts.original = opts.AfterRender
		opts.AfterRender = func(nodes []*dom.Node, data any) {
			if opts.gate == nil || opts.gate.Retrieved() {
				opts.original(nodes, data)
			}
		}
	}

	return e.RenderTemplateSource(src, ctx)
}

func (e *Engine) selectSource(ref any, ctx *reactive.Context, opts *RenderOptions, doc *dom.Node) (Source, error) {
	var prop string
	if opts.TemplateProperty != nil {
		prop = opts.TemplateProperty()
	}
	if prop != "" {
		if v, ok := ctx.Lookup(ModuleVar); ok {
			if instance := reactive.Unwrap(v); instance != nil {
				text, found, err := module.TemplateText(instance, prop)
				if err != nil {
					return nil, err
				}
				if found {
					e.Log(3, "engine: inline template from property %s", prop)
					return NewInlineSource(text), nil
				}
			}
		}
	}
	return e.MakeTemplateSource(ref, doc)
}

// RenderTemplateSource renders src with ctx.Data. Anonymous templates are
// copied; text templates are executed as html/template and parsed into nodes.
func (e *Engine) RenderTemplateSource(src Source, ctx *reactive.Context) ([]*dom.Node, error) {
	if anon, ok := src.(*AnonymousSource); ok {
		return anon.Nodes(), nil
	}

	text := src.Text()
	name := src.Key()
	if name == "" {
		name = "inline"
	}
	tmpl, err := template.New(name).Funcs(templateFuncs(ctx)).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData(ctx.Data)); err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return dom.ParseFragment(buf.String())
}

func templateFuncs(ctx *reactive.Context) template.FuncMap {
	return template.FuncMap{
		"get": func(v any) any {
			return templateData(reactive.Unwrap(v))
		},
		"module": func() any {
			v, _ := ctx.Lookup(ModuleVar)
			return templateData(reactive.Unwrap(v))
		},
		"data": func() any {
			return templateData(ctx.Data)
		},
		"parent": func() any {
			return templateData(ctx.ParentData())
		},
		"root": func() any {
			return templateData(ctx.Root().Data)
		},
	}
}

func templateData(v any) any {
	v = reactive.Unwrap(v)
	if t, ok := v.(module.Templated); ok {
		return t.TemplateData()
	}
	return v
}
