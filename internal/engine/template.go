package engine

import (
	"github.com/zot/modbind/internal/dom"
	"github.com/zot/modbind/internal/module"
	"github.com/zot/modbind/internal/reactive"
)

// TemplateBinding describes a template bound into a node.
type TemplateBinding struct {
	// Name returns the template reference: a name or an anonymous template node.
	Name func() any
	// Data returns the data to render. Empty data renders nothing.
	Data    func() any
	Options *RenderOptions
	// Doc is searched for inline script templates.
	Doc *dom.Node
	// BindChildren applies bindings to rendered nodes.
	BindChildren func(nodes []*dom.Node, ctx *reactive.Context)
}

// ApplyTemplate renders a template into node and re-renders it whenever
// anything read while rendering changes. The computation is disposed when
// node is cleaned.
func (e *Engine) ApplyTemplate(node *dom.Node, ctx *reactive.Context, tb TemplateBinding) *reactive.Computation {
	opts := tb.Options
	if opts == nil {
		opts = &RenderOptions{}
	}

	comp := reactive.NewComputation(func() {
		data := tb.Data()
		if module.IsEmpty(reactive.Peek(data)) {
			dom.SetChildren(node, nil)
			return
		}

		var ref any
		if tb.Name != nil {
			ref = tb.Name()
		}
		child := ctx.CreateChild(data)
		nodes, err := e.RenderTemplate(ref, child, opts, tb.Doc)
		if err != nil {
			e.Log(0, "engine: render %v: %v", ref, err)
			dom.SetChildren(node, nil)
			return
		}
		dom.SetChildren(node, nodes)

		reactive.Ignore(func() {
			if tb.BindChildren != nil {
				tb.BindChildren(nodes, child)
			}
			if opts.AfterRender != nil {
				opts.AfterRender(nodes, data)
			}
		})
	}, nil)

	node.AddDisposeCallback(comp.Dispose)
	return comp
}
