package binding

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zot/modbind/internal/config"
	"github.com/zot/modbind/internal/dom"
	"github.com/zot/modbind/internal/engine"
	"github.com/zot/modbind/internal/loader"
	"github.com/zot/modbind/internal/module"
	"github.com/zot/modbind/internal/reactive"
)

// AttrPrefix marks binding attributes: data-module, data-text.
const AttrPrefix = "data-"

// Handler applies one directive to a node. It reports whether it took over
// binding the node's descendants.
type Handler func(node *dom.Node, ctx *reactive.Context, expr *Expression) (controlsDescendants bool, err error)

// Binder applies data-* directives to a document.
type Binder struct {
	Engine   *engine.Engine
	Engines  map[string]*engine.Engine // named engines for the templateEngine option
	Loader   loader.ModuleLoader
	Settings *Settings // nil means Defaults

	config      *config.Config
	doc         *dom.Node
	handlers    map[string]Handler
	order       []string
	controllers []*Controller
}

// NewBinder creates a binder with the module and text directives registered.
func NewBinder(cfg *config.Config, e *engine.Engine, l loader.ModuleLoader, settings *Settings) *Binder {
	b := &Binder{
		Engine:   e,
		Engines:  map[string]*engine.Engine{},
		Loader:   l,
		Settings: settings,
		config:   cfg,
		handlers: map[string]Handler{},
	}
	b.Handle("module", b.moduleHandler)
	b.Handle("text", b.textHandler)
	return b
}

// Handle registers a directive. Directives on the same node run in
// registration order.
func (b *Binder) Handle(name string, h Handler) {
	if _, exists := b.handlers[name]; !exists {
		b.order = append(b.order, name)
	}
	b.handlers[name] = h
}

// ApplyBindings binds root and its descendants to data and returns the root
// context. root is also where inline script templates are looked up.
func (b *Binder) ApplyBindings(root *dom.Node, data any) (*reactive.Context, error) {
	b.doc = root
	ctx := reactive.NewContext(data)
	return ctx, b.ApplyToNode(root, ctx)
}

// ApplyToNodes binds a list of sibling nodes.
func (b *Binder) ApplyToNodes(nodes []*dom.Node, ctx *reactive.Context) error {
	var errs []error
	for _, n := range nodes {
		if err := b.ApplyToNode(n, ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyToNode binds node and, unless a directive controls them, its descendants.
func (b *Binder) ApplyToNode(node *dom.Node, ctx *reactive.Context) error {
	var errs []error
	controlled := false
	if node.Type == dom.ElementNode {
		for _, name := range b.order {
			src, ok := node.Attr(AttrPrefix + name)
			if !ok {
				continue
			}
			expr, err := ParseExpression(src)
			if err != nil {
				errs = append(errs, fmt.Errorf("<%s %s%s>: %w", node.Tag, AttrPrefix, name, err))
				continue
			}
			ctl, err := b.handlers[name](node, ctx, expr)
			if err != nil {
				errs = append(errs, fmt.Errorf("<%s %s%s>: %w", node.Tag, AttrPrefix, name, err))
			}
			controlled = controlled || ctl
		}
	}
	if !controlled {
		for _, c := range append([]*dom.Node(nil), node.Children...) {
			if err := b.ApplyToNode(c, ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *Binder) moduleHandler(node *dom.Node, ctx *reactive.Context, expr *Expression) (bool, error) {
	value := func() any {
		v, err := expr.Eval(ctx)
		if err != nil {
			b.config.Log(0, "module: %v", err)
			return nil
		}
		return v
	}
	b.Bind(node, ctx, value)
	return true, nil
}

// Bind applies the module directive to node. value is evaluated with
// dependency tracking each time the binding transitions or renders.
func (b *Binder) Bind(node *dom.Node, ctx *reactive.Context, value func() any) *Controller {
	var anonymous *dom.Node
	if dom.IsAnonymous(node) {
		anonymous = dom.NewElement("template")
		for _, c := range dom.TakeChildren(node) {
			anonymous.AppendChild(c)
		}
	}

	var initial *Options
	reactive.Ignore(func() {
		initial, _ = AsOptions(reactive.Unwrap(value()))
	})

	ctrl := NewController(b.config, value, b.Settings, b.Loader)
	b.controllers = append(b.controllers, ctrl)
	node.AddDisposeCallback(ctrl.Dispose)

	extended := ctx.Extend(map[string]any{engine.ModuleVar: ctrl.Module()})

	tb := engine.TemplateBinding{
		Data: func() any { return ctrl.Data().Get() },
		Options: &engine.RenderOptions{
			TemplateProperty: func() string {
				return TemplateProperty(value(), b.settings())
			},
			AfterRender: b.afterRender(value, ctrl),
		},
		Doc: b.doc,
		BindChildren: func(nodes []*dom.Node, child *reactive.Context) {
			if err := b.ApplyToNodes(nodes, child); err != nil {
				b.config.Log(0, "module: binding template: %v", err)
			}
		},
	}
	if anonymous != nil {
		tb.Name = func() any { return anonymous }
	} else {
		tb.Name = func() any { return TemplateName(value()) }
	}

	b.engineFor(initial).ApplyTemplate(node, extended, tb)
	return ctrl
}

func (b *Binder) settings() *Settings {
	if b.Settings != nil {
		return b.Settings
	}
	return Defaults
}

func (b *Binder) engineFor(opts *Options) *engine.Engine {
	if opts != nil {
		switch e := reactive.Peek(opts.TemplateEngine).(type) {
		case *engine.Engine:
			return e
		case string:
			if named, ok := b.Engines[e]; ok {
				return named
			}
			b.config.Log(0, "module: unknown template engine %q", e)
		}
	}
	return b.Engine
}

// afterRender returns the binding's afterRender hook. The hook reads the
// binding's current options each time it runs, so a replaced callback applies
// from the next render. A string names a method on the instance; a missing
// method is skipped.
func (b *Binder) afterRender(value func() any, ctrl *Controller) engine.AfterRender {
	return func(nodes []*dom.Node, data any) {
		var option any
		reactive.Ignore(func() {
			if opts, ok := AsOptions(reactive.Peek(value())); ok {
				option = reactive.Peek(opts.AfterRender)
			}
		})

		switch cb := option.(type) {
		case nil:
		case engine.AfterRender:
			cb(nodes, data)
		case func([]*dom.Node, any):
			cb(nodes, data)
		case string:
			fn, ok := module.LookupMethod(ctrl.Instance(), cb)
			if !ok {
				return
			}
			if _, err := fn(nodes, data); err != nil {
				b.config.Log(0, "module: afterRender %s: %v", cb, err)
			}
		default:
			if _, err := module.Call(cb, nodes, data); err != nil {
				b.config.Log(0, "module: afterRender: %v", err)
			}
		}
	}
}

func (b *Binder) textHandler(node *dom.Node, ctx *reactive.Context, expr *Expression) (bool, error) {
	comp := reactive.NewComputation(func() {
		v, err := expr.Eval(ctx)
		if err != nil {
			b.config.Log(0, "text: %v", err)
			v = nil
		}
		dom.SetChildren(node, []*dom.Node{dom.NewText(textOf(v))})
	}, nil)
	node.AddDisposeCallback(comp.Dispose)
	return true, nil
}

func textOf(v any) string {
	v = reactive.Unwrap(v)
	if t, ok := v.(module.Templated); ok {
		v = t.TemplateData()
	}
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
	}
	return fmt.Sprint(v)
}

// BindingInfo describes a live module binding.
type BindingInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	State      string `json:"state"`
	Generation int    `json:"generation"`
}

// Controllers returns the controllers that have not been disposed.
func (b *Binder) Controllers() []*Controller {
	live := b.controllers[:0]
	for _, c := range b.controllers {
		if c.State() != Disposed {
			live = append(live, c)
		}
	}
	b.controllers = live
	return append([]*Controller(nil), live...)
}

// Bindings summarizes the live module bindings, sorted by name.
func (b *Binder) Bindings() []BindingInfo {
	var out []BindingInfo
	for _, c := range b.Controllers() {
		out = append(out, BindingInfo{
			Name:       c.Name(),
			Path:       c.Path(),
			State:      c.State().String(),
			Generation: c.Generation(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out
}
