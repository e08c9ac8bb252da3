// Package binding implements the module directive: it resolves a binding
// value to a module name and arguments, loads and instantiates the module,
// renders its template and disposes instances as the value changes.
package binding

import (
	"reflect"

	"github.com/zot/modbind/internal/reactive"
)

// Settings holds the defaults for module bindings. They are read each time a
// binding transitions, so changes apply to later transitions only.
type Settings struct {
	BaseDir          string
	Initializer      string
	DisposeMethod    string
	TemplateProperty string
}

const (
	defaultInitializer   = "initialize"
	defaultDisposeMethod = "dispose"
)

// Defaults is the process-wide Settings used by controllers created without one.
var Defaults = &Settings{
	Initializer:   defaultInitializer,
	DisposeMethod: defaultDisposeMethod,
}

// Options is the object form of a module binding value.
// Name, Data, TemplateProperty and Template may be observables.
type Options struct {
	Name             any
	Data             any
	Initializer      string
	DisposeMethod    string
	TemplateProperty any
	Template         any
	// TemplateEngine is an *engine.Engine or the name of an engine registered with the Binder.
	TemplateEngine any
	// AfterRender is an engine.AfterRender, a func or the name of an instance method.
	AfterRender any
}

// Resolved is a binding value normalized with defaults applied.
type Resolved struct {
	ModuleName       string
	Args             []any
	Initializer      string
	DisposeMethod    string
	TemplateProperty string
}

// Resolve normalizes a binding value. The value and its name and data are
// unwrapped with dependency tracking; templateProperty is read without it.
// Missing fields take their values from s, or Defaults when s is nil.
func Resolve(raw any, s *Settings) Resolved {
	if s == nil {
		s = Defaults
	}
	r := Resolved{
		Args:             []any{},
		Initializer:      orDefault(s.Initializer, defaultInitializer),
		DisposeMethod:    orDefault(s.DisposeMethod, defaultDisposeMethod),
		TemplateProperty: s.TemplateProperty,
	}

	value := reactive.Unwrap(raw)
	opts, ok := AsOptions(value)
	if !ok {
		r.ModuleName, _ = value.(string)
		return r
	}

	nameRef := opts.Name
	if nameRef == nil {
		nameRef = opts.Template
	}
	r.ModuleName, _ = reactive.Unwrap(nameRef).(string)
	r.Args = flatten(reactive.Unwrap(opts.Data))
	if opts.Initializer != "" {
		r.Initializer = opts.Initializer
	}
	if opts.DisposeMethod != "" {
		r.DisposeMethod = opts.DisposeMethod
	}
	if tp, _ := reactive.Peek(opts.TemplateProperty).(string); tp != "" {
		r.TemplateProperty = tp
	}
	return r
}

// TemplateProperty returns the templateProperty of a binding value, reading
// observables with dependency tracking.
func TemplateProperty(raw any, s *Settings) string {
	if s == nil {
		s = Defaults
	}
	if opts, ok := AsOptions(reactive.Unwrap(raw)); ok {
		if tp, _ := reactive.Unwrap(opts.TemplateProperty).(string); tp != "" {
			return tp
		}
	}
	return s.TemplateProperty
}

// TemplateName returns the template to render for a binding value: the
// template option, then the name, then the value itself when it is a string.
func TemplateName(raw any) string {
	value := reactive.Unwrap(raw)
	opts, ok := AsOptions(value)
	if !ok {
		name, _ := value.(string)
		return name
	}
	ref := opts.Template
	if reactive.Peek(ref) == nil || reactive.Peek(ref) == "" {
		ref = opts.Name
	}
	name, _ := reactive.Unwrap(ref).(string)
	return name
}

// AsOptions converts the object forms of a binding value.
func AsOptions(v any) (*Options, bool) {
	switch o := v.(type) {
	case Options:
		return &o, true
	case *Options:
		return o, o != nil
	case map[string]any:
		opts := &Options{
			Name:             o["name"],
			Data:             o["data"],
			TemplateProperty: o["templateProperty"],
			Template:         o["template"],
			TemplateEngine:   o["templateEngine"],
			AfterRender:      o["afterRender"],
		}
		opts.Initializer, _ = reactive.Peek(o["initializer"]).(string)
		opts.DisposeMethod, _ = reactive.Peek(o["disposeMethod"]).(string)
		return opts, true
	}
	return nil, false
}

// flatten turns data into constructor arguments: nil is no arguments, a
// sequence is spread and any other value is a single argument.
func flatten(data any) []any {
	if data == nil {
		return []any{}
	}
	if list, ok := data.([]any); ok {
		return append([]any{}, list...)
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		args := make([]any, rv.Len())
		for i := range args {
			args[i] = rv.Index(i).Interface()
		}
		return args
	}
	return []any{data}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
